package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"bidcheck/internal/logging"
	mcpserver "bidcheck/internal/mcp"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Long: `Starts an MCP server over stdin/stdout exposing run_scenario,
list_stages and get_last_run, so an agent can run the dashboard checks and
read the result table.

The server exits when its parent process goes away.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := mcpserver.NewServer(a.factory(), version)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			mcpserver.WatchParent(ctx, cancel, 2*time.Second)

			logging.New("mcp").Info("starting bidcheck MCP server over stdio (parent watchdog active)")
			return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
		},
	}
}
