package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quarryhq/quarry/internal/config"
	"github.com/quarryhq/quarry/internal/output"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			a, err := buildApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			count, err := a.store.MemoryCount(ctx)
			if err != nil {
				return err
			}

			out.Plain("data dir:   %s", a.cfg.DataDir)
			out.Plain("config:     %s", config.ConfigPath(configDir))
			out.Plain("memories:   %d", count)
			out.Plain("embedder:   %s (%d dims)", a.embedder.ModelName(), a.embedder.Dimensions())
			out.Plain("sources:    %v", a.cfg.Sources.Enabled)
			out.Plain("rrf k:      %d", a.cfg.Search.RRFConstant)
			return nil
		},
	}
	return cmd
}
