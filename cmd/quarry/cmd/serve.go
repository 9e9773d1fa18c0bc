package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quarryhq/quarry/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var offline bool
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the retrieval engine over MCP",
		Long: `Start the MCP server so AI clients can search memories and reinforce
patterns. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx, offline)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := mcp.NewServer(a.orchestrator, a.reinforcer, a.store, a.embedder, a.metrics, a.cfg)
			if err != nil {
				return err
			}
			return srv.Serve(ctx, transport)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip external services (static embeddings, local sources only)")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "MCP transport (stdio)")

	return cmd
}
