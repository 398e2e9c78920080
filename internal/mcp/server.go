package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/promptelt/promptelt/internal/broker"
	"github.com/promptelt/promptelt/internal/config"
)

// Config tunes the MCP surface.
type Config struct {
	// MaxRows caps the rows returned by execute_query. Zero means 200.
	MaxRows int
	Version string
}

// MCPServer wraps the mcp-go server with the broker's operations registered
// as tools, so AI agents can discover databases, run cached queries, ask
// questions and inspect schema drift.
type MCPServer struct {
	broker *broker.Broker
	store  *config.Store
	cfg    Config
	logger *slog.Logger
	server *server.MCPServer
}

// NewMCPServer creates an MCPServer with every tool and resource
// registered. The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(b *broker.Broker, store *config.Store, cfg Config, logger *slog.Logger) *MCPServer {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 200
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	s := &MCPServer{
		broker: b,
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "mcp"),
	}

	mcpServer := server.NewMCPServer(
		"promptelt",
		cfg.Version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio serves MCP over stdin/stdout, the mode used when a client
// launches promptelt as a subprocess. Logs must go to stderr in this mode.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the MCP server in Streamable HTTP mode, listening on
// the given address (e.g. ":3001").
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func mutatingAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:    boolPtr(false),
		DestructiveHint: boolPtr(false),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
