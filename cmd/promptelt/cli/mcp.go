package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	pmcp "github.com/promptelt/promptelt/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes the broker as tools
for AI agents: listing databases, reading schemas, running queries, asking
questions in plain language and inspecting schema drift.

In stdio mode the server speaks JSON-RPC over stdin/stdout, suitable for
desktop MCP clients. In HTTP mode it serves the streamable HTTP transport.`,
		Example: `  promptelt mcp                              # stdio mode
  promptelt mcp --transport http --port 3001  # streamable HTTP`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("transport") {
				transport = ""
			}
			return runMCP(transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http (default from mcp.transport)")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")

	return cmd
}

func runMCP(transport string, port int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.cfg.MCP.Enabled {
		return fmt.Errorf("the MCP server is disabled (mcp.enabled: false)")
	}
	if transport == "" {
		transport = a.cfg.MCP.Transport
	}
	if err := a.startup(ctx); err != nil {
		return err
	}

	mcpSrv := pmcp.NewMCPServer(a.broker, a.store, pmcp.Config{
		MaxRows: a.cfg.MCP.MaxRows,
		Version: versionString(),
	}, a.logger)

	switch transport {
	case "", "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		addr := fmt.Sprintf(":%d", port)
		a.logger.Info("starting MCP HTTP server", "addr", addr)
		return mcpSrv.ServeHTTP(addr)
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}
