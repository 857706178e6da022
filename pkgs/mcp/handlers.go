package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/emx-mail/mcp-email/pkgs/email"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) handlePollEmails(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.retrieve(ctx, ToolPollEmails, nil)
}

func (s *Server) handleGetEmailsByID(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args IDsArgs
	if err := parseArgs(req, &args); err != nil {
		return errorResult(err), nil
	}
	if err := checkIDs(args.IDs); err != nil {
		return errorResult(err), nil
	}
	return s.retrieve(ctx, ToolGetEmailsByID, args.IDs)
}

func (s *Server) retrieve(ctx context.Context, tool string, ids []int) (*mcp.CallToolResult, error) {
	records, err := s.mailbox.Retrieve(ctx, ids)
	if err != nil {
		s.logger.Warn("tool failed", "tool", tool, "kind", email.KindOf(err), "error", err)
		return errorResult(err), nil
	}
	if records == nil {
		records = []*email.Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return errorResult(fmt.Errorf("failed to encode records: %w", err)), nil
	}

	s.logger.Info("tool completed", "tool", tool, "records", len(records))
	return textResult(string(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))), nil
}

func (s *Server) handleDeleteEmailsByID(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args IDsArgs
	if err := parseArgs(req, &args); err != nil {
		return errorResult(err), nil
	}
	if err := checkIDs(args.IDs); err != nil {
		return errorResult(err), nil
	}
	if err := s.mailbox.Delete(ctx, args.IDs); err != nil {
		s.logger.Warn("tool failed", "tool", ToolDeleteEmailsByID, "kind", email.KindOf(err), "error", err)
		return errorResult(err), nil
	}
	s.logger.Info("tool completed", "tool", ToolDeleteEmailsByID, "ids", args.IDs)
	return textResult(""), nil
}

// sendHandler builds the handler of a send tool. Send tools never report
// a tool error; the outcome is always the result text.
func (s *Server) sendHandler(contentType string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args SendArgs
		if err := parseArgs(req, &args); err != nil {
			result := email.SendResult{Kind: email.KindSubmission, Err: err}
			return textResult(result.String()), nil
		}
		result := s.relay.Send(ctx, email.OutboundMessage{
			From:        args.FromAddress,
			To:          args.ToAddresses,
			ContentType: contentType,
			Subject:     args.Subject,
			Body:        args.Body,
		})
		return textResult(result.String()), nil
	}
}

func parseArgs(req *mcp.CallToolRequest, v any) error {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("failed to parse arguments: %w", err)
	}
	return nil
}

func checkIDs(ids []int) error {
	for _, id := range ids {
		if id < 1 {
			return &email.Error{
				Kind: email.KindNotFound,
				Op:   "check ids",
				Err:  fmt.Errorf("invalid id %d: ids start at 1", id),
			}
		}
	}
	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// errorResult reports err as a tool error whose text starts with the
// error kind when there is one.
func errorResult(err error) *mcp.CallToolResult {
	text := err.Error()
	if kind := email.KindOf(err); kind != "" {
		text = fmt.Sprintf("%s: %v", kind, err)
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
