package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/emx-mail/mcp-email/pkgs/email"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool names as constants for consistent reference.
const (
	ToolPollEmails       = "pollEmails"
	ToolGetEmailsByID    = "getEmailsById"
	ToolDeleteEmailsByID = "deleteEmailsById"
	ToolSendTextEmail    = "sendTextEmail"
	ToolSendHTMLEmail    = "sendHtmlEmail"
)

// Profile is a named set of tools a server entry point exposes.
type Profile struct {
	Name  string
	Tools []string
}

// Profiles.
var (
	ProfileFull = Profile{
		Name: "full",
		Tools: []string{
			ToolPollEmails,
			ToolGetEmailsByID,
			ToolDeleteEmailsByID,
			ToolSendTextEmail,
			ToolSendHTMLEmail,
		},
	}
	ProfileSend = Profile{
		Name:  "send",
		Tools: []string{ToolSendTextEmail, ToolSendHTMLEmail},
	}
)

// LookupProfile returns the profile called name.
func LookupProfile(name string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProfileFull.Name:
		return ProfileFull, nil
	case ProfileSend.Name:
		return ProfileSend, nil
	}
	return Profile{}, fmt.Errorf("unknown profile %q (want %q or %q)", name, ProfileFull.Name, ProfileSend.Name)
}

// NeedsMailbox reports whether any tool in p reads or deletes mail.
func (p Profile) NeedsMailbox() bool {
	for _, name := range p.Tools {
		switch name {
		case ToolPollEmails, ToolGetEmailsByID, ToolDeleteEmailsByID:
			return true
		}
	}
	return false
}

// NeedsRelay reports whether any tool in p sends mail.
func (p Profile) NeedsRelay() bool {
	for _, name := range p.Tools {
		switch name {
		case ToolSendTextEmail, ToolSendHTMLEmail:
			return true
		}
	}
	return false
}

// IDsArgs represents the input parameters for getEmailsById and
// deleteEmailsById.
type IDsArgs struct {
	// IDs are 1-based message ordinals.
	IDs []int `json:"ids"`
}

// SendArgs represents the input parameters for the send tools.
type SendArgs struct {
	FromAddress string   `json:"fromAddress"`
	ToAddresses []string `json:"toAddresses"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
}

// bodyNote describes the body encoding of retrieved records.
const bodyNote = "Bodies are decoded to UTF-8 text; bytes that are not valid UTF-8, such as binary attachments, are replaced with U+FFFD"

func emptyToolSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {}
	}`)
}

// idsToolSchema returns the JSON schema shared by the ordinal tools.
func idsToolSchema(description string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"type": "object",
		"properties": {
			"ids": {
				"type": "array",
				"description": %q,
				"items": {"type": "integer"}
			}
		},
		"required": ["ids"]
	}`, description))
}

func sendToolSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"fromAddress": {
				"type": "string",
				"description": "Sender address"
			},
			"toAddresses": {
				"type": "array",
				"description": "Recipient addresses",
				"items": {"type": "string"},
				"minItems": 1
			},
			"subject": {
				"type": "string",
				"description": "Subject line"
			},
			"body": {
				"type": "string",
				"description": "Message body"
			}
		},
		"required": ["fromAddress", "toAddresses", "subject", "body"]
	}`)
}

// toolDefinitions returns every tool the server knows, keyed by name.
func (s *Server) toolDefinitions() map[string]toolDefinition {
	return map[string]toolDefinition{
		ToolPollEmails: {
			tool: &mcp.Tool{
				Name:        ToolPollEmails,
				Description: "Fetch every message in the mailbox as normalized records (id, headers, body). " + bodyNote,
				InputSchema: emptyToolSchema(),
			},
			handler: s.handlePollEmails,
		},
		ToolGetEmailsByID: {
			tool: &mcp.Tool{
				Name:        ToolGetEmailsByID,
				Description: "Fetch the messages at the given 1-based ids, in the order given. " + bodyNote,
				InputSchema: idsToolSchema("Message ids to fetch; an empty list fetches all"),
			},
			handler: s.handleGetEmailsByID,
		},
		ToolDeleteEmailsByID: {
			tool: &mcp.Tool{
				Name:        ToolDeleteEmailsByID,
				Description: "Delete the messages at the given 1-based ids. Ids of later messages shift down afterwards",
				InputSchema: idsToolSchema("Message ids to delete"),
			},
			handler: s.handleDeleteEmailsByID,
		},
		ToolSendTextEmail: {
			tool: &mcp.Tool{
				Name:        ToolSendTextEmail,
				Description: "Send a plain text email",
				InputSchema: sendToolSchema(),
			},
			handler: s.sendHandler(email.ContentTypeText),
		},
		ToolSendHTMLEmail: {
			tool: &mcp.Tool{
				Name:        ToolSendHTMLEmail,
				Description: "Send an HTML email",
				InputSchema: sendToolSchema(),
			},
			handler: s.sendHandler(email.ContentTypeHTML),
		},
	}
}

type toolDefinition struct {
	tool    *mcp.Tool
	handler mcp.ToolHandler
}

// RegisterTools registers the tools of the server's profile.
func RegisterTools(s *Server) {
	defs := s.toolDefinitions()
	for _, name := range s.profile.Tools {
		def, ok := defs[name]
		if !ok {
			s.logger.Warn("unknown tool in profile", "profile", s.profile.Name, "tool", name)
			continue
		}
		s.mcpServer.AddTool(def.tool, def.handler)
	}
}
