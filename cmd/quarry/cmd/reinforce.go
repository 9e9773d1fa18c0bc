package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarryhq/quarry/internal/output"
)

func newReinforceCmd() *cobra.Command {
	var evidence []string
	var create bool
	var name string

	cmd := &cobra.Command{
		Use:   "reinforce <pattern-id>",
		Short: "Reinforce a stored pattern",
		Long: `Record another observation of a pattern: atomically increment its use
count, recompute its confidence tier, and append evidence.

With --create, the argument is treated as a pattern name and a new pattern
is registered instead.

Examples:
  quarry reinforce 4f8c1f0e-... --evidence "standup 2026-08-28"
  quarry reinforce prefers-async-standup --create`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			a, err := buildApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if create {
				patternName := args[0]
				if name != "" {
					patternName = name
				}
				p, err := a.reinforcer.Create(ctx, patternName, evidence)
				if err != nil {
					return err
				}
				out.Success(fmt.Sprintf("created pattern %s (%s)", p.ID, p.Name))
				return nil
			}

			p, err := a.reinforcer.Reinforce(ctx, args[0], evidence)
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("%s: use_count=%d confidence=%s evidence=%d",
				p.Name, p.UseCount, p.Confidence, len(p.Evidence)))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&evidence, "evidence", nil, "Evidence string to append (repeatable)")
	cmd.Flags().BoolVar(&create, "create", false, "Register a new pattern instead of reinforcing")
	cmd.Flags().StringVar(&name, "name", "", "Pattern name when creating (defaults to the argument)")

	return cmd
}
