// Package cmd provides the CLI commands for Quarry.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quarryhq/quarry/internal/logging"
	"github.com/quarryhq/quarry/pkg/version"
)

var (
	debugMode      bool
	configDir      string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the quarry CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarry",
		Short: "Tiered hybrid memory retrieval engine",
		Long: `Quarry answers free-text queries over stored memories by fanning out
to keyword, semantic, and knowledge-graph backends, fusing their rankings
with Reciprocal Rank Fusion, and reranking the top candidates.

Run 'quarry serve' to expose the engine to AI clients over MCP, or
'quarry search' for one-shot queries from the shell.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.SetVersionTemplate("quarry version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.quarry/logs/")
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "Directory containing .quarry.yaml")

	cmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		cleanup, err := logging.SetupDefault(debugMode)
		if err != nil {
			return err
		}
		loggingCleanup = cleanup
		return nil
	}
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newReinforceCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute runs the CLI, canceling on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}
