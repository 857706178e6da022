package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/emx-mail/mcp-email/pkgs/email"
	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is set by build flags, defaults to "dev" for development builds.
var Version = "dev"

// Transports accepted by Run. TransportHTTP and TransportSSE share one
// listener; they differ in the endpoint announced at startup.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportSSE   = "sse"
)

// HTTP endpoints served by HTTPHandler.
const (
	PathStreamable = "/mcp"
	PathSSE        = "/sse"
	PathHealth     = "/healthz"
)

// Retriever reads and deletes messages by ordinal. *email.Mailbox
// implements it.
type Retriever interface {
	Retrieve(ctx context.Context, ordinals []int) ([]*email.Record, error)
	Delete(ctx context.Context, ordinals []int) error
}

// Sender submits outbound messages. *email.Relay implements it.
type Sender interface {
	Send(ctx context.Context, msg email.OutboundMessage) email.SendResult
}

// ServerOptions configures the MCP server behavior.
type ServerOptions struct {
	// Profile selects the registered tools, default ProfileFull.
	Profile Profile
	// Mailbox backs the retrieval and deletion tools.
	Mailbox Retriever
	// Relay backs the send tools.
	Relay Sender
	// Logger receives diagnostics. It must not write to stdout when the
	// stdio transport is used.
	Logger *slog.Logger
}

// Server wraps the MCP SDK server with the mail tools.
type Server struct {
	mcpServer *mcp.Server
	profile   Profile
	mailbox   Retriever
	relay     Sender
	logger    *slog.Logger
}

// NewServer creates a server and registers the tools of opts.Profile.
func NewServer(opts *ServerOptions) (*Server, error) {
	if opts == nil {
		opts = &ServerOptions{}
	}
	profile := opts.Profile
	if profile.Name == "" {
		profile = ProfileFull
	}
	if profile.NeedsMailbox() && opts.Mailbox == nil {
		return nil, fmt.Errorf("profile %q requires a mailbox", profile.Name)
	}
	if profile.NeedsRelay() && opts.Relay == nil {
		return nil, fmt.Errorf("profile %q requires a relay", profile.Name)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    "emx-mail",
			Version: Version,
		}, nil),
		profile: profile,
		mailbox: opts.Mailbox,
		relay:   opts.Relay,
		logger:  logger,
	}
	RegisterTools(s)
	return s, nil
}

// Run serves until ctx is cancelled or the client disconnects. addr is
// the listen address of the http transport.
func (s *Server) Run(ctx context.Context, transport, addr string) error {
	switch transport {
	case "", TransportStdio:
		s.logger.Info("starting MCP server", "transport", TransportStdio, "profile", s.profile.Name)
		err := s.mcpServer.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("server stopped", "error", err)
			return err
		}
		return nil
	case TransportHTTP:
		return s.runHTTP(ctx, addr, TransportHTTP, PathStreamable)
	case TransportSSE:
		return s.runHTTP(ctx, addr, TransportSSE, PathSSE)
	}
	return fmt.Errorf("unknown transport %q", transport)
}

func (s *Server) runHTTP(ctx context.Context, addr, transport, path string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting MCP server", "transport", transport, "addr", addr, "path", path, "profile", s.profile.Name)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info("MCP server stopped")
		return nil
	}
}

// HTTPHandler serves the streamable HTTP transport on PathStreamable, the
// SSE transport on PathSSE and a liveness probe on PathHealth.
func (s *Server) HTTPHandler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	getServer := func(*http.Request) *mcp.Server {
		return s.mcpServer
	}
	router.Any(PathStreamable, gin.WrapH(mcp.NewStreamableHTTPHandler(getServer, nil)))
	// GET opens the event stream, POST delivers messages for a session.
	router.Any(PathSSE, gin.WrapH(mcp.NewSSEHandler(getServer, nil)))
	router.GET(PathHealth, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "profile": s.profile.Name, "version": Version})
	})
	return router
}

// MCPServer returns the underlying MCP SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
