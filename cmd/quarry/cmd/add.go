package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quarryhq/quarry/internal/output"
	"github.com/quarryhq/quarry/internal/store"
)

func newAddCmd() *cobra.Command {
	var title string
	var category string
	var entities []string

	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Store a new memory",
		Long: `Store a memory in the local hybrid store, indexing it for keyword and
vector search. Entities named with --entity are linked into the knowledge
graph.

Examples:
  quarry add "Acme prefers weekly syncs on Tuesdays" --title "acme cadence" --category client
  quarry add "Chose sqlite over postgres for zero-ops local storage" --category decision --entity sqlite`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())
			content := strings.Join(args, " ")

			a, err := buildApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			mem := &store.Memory{
				ID:       uuid.NewString(),
				Title:    title,
				Content:  content,
				Category: category,
			}
			if err := a.store.SaveMemories(ctx, []*store.Memory{mem}); err != nil {
				return err
			}
			a.categories.Invalidate()

			vec, err := a.embedder.Embed(ctx, content)
			if err != nil {
				out.Warning("embedding failed, memory is keyword-searchable only")
			} else if err := a.store.Vector().Add(ctx, []string{mem.ID}, [][]float32{vec}); err != nil {
				return fmt.Errorf("failed to index vector: %w", err)
			}

			for _, name := range entities {
				entityID, err := a.store.UpsertEntity(ctx, name, "concept")
				if err != nil {
					return err
				}
				if err := a.store.LinkMention(ctx, entityID, mem.ID); err != nil {
					return err
				}
			}

			out.Success(fmt.Sprintf("stored memory %s", mem.ID))
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Memory title")
	cmd.Flags().StringVarP(&category, "category", "c", "general", "Memory category")
	cmd.Flags().StringSliceVarP(&entities, "entity", "e", nil, "Entity to link in the knowledge graph (repeatable)")

	return cmd
}
