package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarryhq/quarry/internal/output"
	"github.com/quarryhq/quarry/internal/retrieval"
)

type searchOptions struct {
	limit   int
	tier    string
	format  string
	offline bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search stored memories",
		Long: `Run one query through the retrieval engine and print the fused,
reranked results.

Examples:
  quarry search "client patterns"
  quarry search "acme billing decisions" --tier deep
  quarry search "error handling" --format json --limit 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVar(&opts.tier, "tier", "auto", "Retrieval tier: auto, fast, adaptive, deep")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Skip external services (static embeddings, local sources only)")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	a, err := buildApp(ctx, opts.offline)
	if err != nil {
		return err
	}
	defer a.Close()

	var result retrieval.SearchResult
	switch opts.tier {
	case "fast":
		result = a.orchestrator.FastSearch(ctx, query, opts.limit)
	case "adaptive":
		result = a.orchestrator.AdaptiveSearch(ctx, query, opts.limit)
	case "deep":
		result = a.orchestrator.DeepSearch(ctx, query, opts.limit)
	case "auto":
		result = a.orchestrator.Search(ctx, query, opts.limit)
	default:
		return fmt.Errorf("unknown tier %q (expected auto, fast, adaptive, or deep)", opts.tier)
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.Error != "" {
		out.Error(result.Error)
		return fmt.Errorf("search failed: %s", result.Error)
	}

	if len(result.Matches) == 0 {
		out.Plain("No matches.")
	}
	for i, m := range result.Matches {
		tag := ""
		if len(m.SourceTags) > 0 {
			tag = m.SourceTags[0]
		}
		out.Result(i+1, m.Title, m.StableID, m.Category, tag, m.RawScore, m.Content)
	}
	if failed := len(result.SourcesAttempted) - len(result.SourcesSucceeded); failed > 0 {
		out.Warning(fmt.Sprintf("%d of %d sources unavailable, results may be incomplete",
			failed, len(result.SourcesAttempted)))
	}
	out.Summary(len(result.Matches), string(result.Tier),
		len(result.SourcesAttempted), len(result.SourcesSucceeded),
		result.Elapsed.Round(time.Millisecond).String())
	return nil
}
