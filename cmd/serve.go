// File: cmd/serve.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/webpilot/internal/mcp"
)

// newServeCommand starts the MCP HTTP server and blocks until shutdown.
func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server hosting asynchronous browser jobs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := mcp.NewServer(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return server.Start()
		},
	}
}
