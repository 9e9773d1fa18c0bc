package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quarryhq/quarry/internal/config"
	"github.com/quarryhq/quarry/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default .quarry.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())

			if existing := config.ConfigPath(configDir); existing != "" && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", existing)
			}

			path := filepath.Join(configDir, ".quarry.yaml")

			if err := config.NewConfig().WriteYAML(path); err != nil {
				return err
			}
			out.Success(fmt.Sprintf("wrote %s", path))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
