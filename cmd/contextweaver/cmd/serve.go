package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/contextweaver/contextweaver/internal/config"
	"github.com/contextweaver/contextweaver/internal/mcpserver"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Long: `Start the MCP server, exposing the search and index tools to any
MCP-compatible client (e.g. an AI coding assistant) over stdio.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := config.FindProjectRoot(".")
			if err != nil {
				root, _ = os.Getwd()
			}
			return serveStdio(cmd.Context(), root)
		},
	}
	return cmd
}

func serveStdio(ctx context.Context, root string) error {
	c, err := openComponents(root)
	if err != nil {
		return fmt.Errorf("opening project: %w", err)
	}
	defer c.Close()

	srv, err := mcpserver.NewServer(c.buildEngine(), c.buildScanner(), c.buildIndexer(), c.embedder)
	if err != nil {
		return fmt.Errorf("starting mcp server: %w", err)
	}

	return srv.MCPServer().Run(ctx, &mcp.StdioTransport{})
}
