package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/quarryhq/quarry/internal/config"
	"github.com/quarryhq/quarry/internal/embed"
	qerrors "github.com/quarryhq/quarry/internal/errors"
)

// hangGrace is how long the gather waits past the per-adapter timeout for
// an adapter that ignores cancellation before abandoning its goroutine.
const hangGrace = 250 * time.Millisecond

// Recorder receives per-request observability events.
type Recorder interface {
	RecordSearch(tier Tier, elapsed time.Duration, matches int, allFailed bool)
	RecordSourceFailure(source config.SourceID, status OutcomeStatus)
}

// CategoryResolver maps free-form category labels to canonical names.
// External sources report categories in whatever casing they like; the
// resolver folds them onto the store's category table.
type CategoryResolver interface {
	Resolve(ctx context.Context, raw string) string
}

// Orchestrator coordinates the full retrieval pipeline: classify, expand,
// embed, fan out, aggregate, fuse, rerank, format. The adapter set is
// fixed at construction; per-request routing never selects backends by
// string comparison.
type Orchestrator struct {
	adapters   []SourceAdapter
	classifier *Classifier
	expander   *Expander
	embedder   embed.Embedder
	reranker   *Reranker
	planner    FollowupPlanner
	search     config.SearchConfig
	tunables   func() config.Tunables
	recorder   Recorder
	categories CategoryResolver
	logger     *slog.Logger
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithEmbedder supplies the embedding client. Without one, queries run
// keyword-only.
func WithEmbedder(e embed.Embedder) OrchestratorOption {
	return func(o *Orchestrator) { o.embedder = e }
}

// WithReranker supplies the reranking step.
func WithReranker(r *Reranker) OrchestratorOption {
	return func(o *Orchestrator) { o.reranker = r }
}

// WithPlanner replaces the default follow-up planner.
func WithPlanner(p FollowupPlanner) OrchestratorOption {
	return func(o *Orchestrator) { o.planner = p }
}

// WithTunables supplies a live view of hot-reloadable parameters. The
// function is called once per request.
func WithTunables(fn func() config.Tunables) OrchestratorOption {
	return func(o *Orchestrator) { o.tunables = fn }
}

// WithRecorder attaches an observability sink.
func WithRecorder(r Recorder) OrchestratorOption {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithCategoryResolver normalizes result categories against the store's
// category table.
func WithCategoryResolver(r CategoryResolver) OrchestratorOption {
	return func(o *Orchestrator) { o.categories = r }
}

// NewOrchestrator builds the engine over a fixed adapter set.
func NewOrchestrator(adapters []SourceAdapter, search config.SearchConfig, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		adapters:   adapters,
		classifier: NewClassifier(),
		expander:   NewExpander(),
		planner:    NewHeuristicPlanner(),
		search:     search,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.reranker == nil {
		o.reranker = NewReranker(nil, logger)
	}
	if o.tunables == nil {
		static := config.Tunables{
			RRFConstant:   search.RRFConstant,
			SourceWeights: search.SourceWeights,
		}
		o.tunables = func() config.Tunables { return static }
	}
	return o
}

// Search classifies the query and routes it to the matching tier.
func (o *Orchestrator) Search(ctx context.Context, text string, limit int) SearchResult {
	switch o.classifier.TierFor(o.classifier.Classify(text)) {
	case TierDeep:
		return o.DeepSearch(ctx, text, limit)
	case TierAdaptive:
		return o.AdaptiveSearch(ctx, text, limit)
	default:
		return o.FastSearch(ctx, text, limit)
	}
}

// FastSearch fans out once with no follow-up round.
func (o *Orchestrator) FastSearch(ctx context.Context, text string, limit int) SearchResult {
	return o.run(ctx, text, limit, TierFast, o.search.FastTimeout, false)
}

// AdaptiveSearch fans out, then lets the planner issue follow-up rounds.
func (o *Orchestrator) AdaptiveSearch(ctx context.Context, text string, limit int) SearchResult {
	return o.run(ctx, text, limit, TierAdaptive, o.search.AdaptiveTimeout, false)
}

// DeepSearch always runs a second synthesis pass, even when the planner
// has no narrower queries to suggest.
func (o *Orchestrator) DeepSearch(ctx context.Context, text string, limit int) SearchResult {
	return o.run(ctx, text, limit, TierDeep, o.search.DeepTimeout, true)
}

func (o *Orchestrator) run(ctx context.Context, text string, limit int, tier Tier, masterTimeout time.Duration, forceFollowup bool) SearchResult {
	start := time.Now()
	limit = o.clampLimit(limit)

	if strings.TrimSpace(text) == "" {
		return SearchResult{
			Matches: []Match{},
			Tier:    tier,
			Error:   qerrors.New(qerrors.ErrCodeEmptyQuery, "query text is empty", nil).Error(),
		}
	}

	if masterTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, masterTimeout)
		defer cancel()
	}

	query := o.buildQuery(ctx, text)
	o.logger.Debug("search started",
		"tier", tier,
		"complexity", query.Complexity,
		"query", query.Raw,
		"expanded", query.Text != query.Raw)

	// Adapters fetch more than the final limit so fusion has overlap to
	// work with.
	fetchLimit := limit * 2
	outcomes := o.fanOut(ctx, query, fetchLimit)

	tunables := o.tunables()
	fused := Fuse(outcomes, tunables.SourceWeights, tunables.RRFConstant)

	var followups []string
	if tier != TierFast {
		followups = o.planner.PlanFollowups(query, outcomes, fused)
		if len(followups) == 0 && forceFollowup {
			// The deep tier always runs a second pass. Without narrower
			// queries it re-runs the expanded form; re-fanning identical
			// text scales every contribution uniformly, so ordering holds.
			followups = []string{query.Text}
		}
		for _, followup := range followups {
			if ctx.Err() != nil {
				break
			}
			fq := o.buildQuery(ctx, followup)
			outcomes = append(outcomes, o.fanOut(ctx, fq, fetchLimit)...)
		}
		if len(followups) > 0 {
			fused = Fuse(outcomes, tunables.SourceWeights, tunables.RRFConstant)
		}
	}

	agg := AggregateOutcomes(outcomes)

	candidatesByID := make(map[string]FusedCandidate, len(fused))
	for _, c := range fused {
		candidatesByID[c.StableID] = c
	}

	reranked := o.reranker.Rerank(ctx, query.Text, fused, o.search.RerankTopN)
	ordered := Order(reranked)

	// Candidates past the rerank window keep their fused order behind the
	// reranked slice.
	for _, c := range fused[len(reranked):] {
		ordered = append(ordered, RerankedResult{StableID: c.StableID})
	}

	matches := Format(ordered, candidatesByID, limit)
	if o.categories != nil {
		for i := range matches {
			matches[i].Category = o.categories.Resolve(ctx, matches[i].Category)
		}
	}

	result := SearchResult{
		Matches:          matches,
		SourcesAttempted: distinctSources(outcomes, nil),
		SourcesSucceeded: distinctSources(outcomes, func(out SourceOutcome) bool { return !out.Failed() }),
		Tier:             tier,
		Elapsed:          time.Since(start),
		FollowupQueries:  followups,
	}
	if agg.AllFailed {
		result.Error = "all sources failed or timed out"
		result.Matches = []Match{}
	}

	if o.recorder != nil {
		for _, out := range outcomes {
			if out.Failed() {
				o.recorder.RecordSourceFailure(out.SourceID, out.Status)
			}
		}
		o.recorder.RecordSearch(tier, result.Elapsed, len(result.Matches), agg.AllFailed)
	}
	o.logger.Info("search completed",
		"tier", tier,
		"matches", len(result.Matches),
		"attempted", len(result.SourcesAttempted),
		"succeeded", len(result.SourcesSucceeded),
		"elapsed", result.Elapsed)
	return result
}

// buildQuery expands, classifies, and embeds the text. Embedding failures
// degrade to keyword-only search.
func (o *Orchestrator) buildQuery(ctx context.Context, text string) Query {
	query := Query{
		Raw:        strings.TrimSpace(text),
		Complexity: o.classifier.Classify(text),
	}
	query.Text = o.expander.Expand(query.Raw)

	if o.embedder != nil {
		vec, err := o.embedder.Embed(ctx, query.Text)
		if err != nil {
			o.logger.Warn("query embedding failed, searching keyword-only", "error", err)
		} else {
			query.Embedding = vec
		}
	}
	return query
}

// fanOut launches every adapter concurrently and gathers whatever finishes
// inside the per-adapter timeout. A hung adapter's slot is recorded as a
// timeout; its goroutine is abandoned rather than waited on, so one stuck
// backend never stalls the round.
func (o *Orchestrator) fanOut(ctx context.Context, query Query, limit int) []SourceOutcome {
	outcomes := make([]SourceOutcome, len(o.adapters))
	timeout := o.search.AdapterTimeout

	var wg sync.WaitGroup
	for i, adapter := range o.adapters {
		wg.Add(1)
		go func(i int, adapter SourceAdapter) {
			defer wg.Done()

			ch := make(chan SourceOutcome, 1)
			started := time.Now()
			go func() {
				ch <- runAdapter(ctx, adapter, query, limit, timeout)
			}()

			var deadline <-chan time.Time
			if timeout > 0 {
				timer := time.NewTimer(timeout + hangGrace)
				defer timer.Stop()
				deadline = timer.C
			}

			select {
			case outcome := <-ch:
				outcomes[i] = outcome
			case <-deadline:
				outcomes[i] = timeoutOutcome(adapter.ID(), started)
			case <-ctx.Done():
				outcomes[i] = timeoutOutcome(adapter.ID(), started)
			}
		}(i, adapter)
	}
	wg.Wait()

	return outcomes
}

func timeoutOutcome(id config.SourceID, started time.Time) SourceOutcome {
	return SourceOutcome{
		SourceID: id,
		Status:   StatusTimeout,
		Latency:  time.Since(started),
		Err:      qerrors.New(qerrors.ErrCodeSourceTimeout, "adapter call timed out", nil),
	}
}

func (o *Orchestrator) clampLimit(limit int) int {
	if limit <= 0 {
		limit = o.search.DefaultLimit
	}
	if o.search.MaxLimit > 0 && limit > o.search.MaxLimit {
		limit = o.search.MaxLimit
	}
	if limit <= 0 {
		limit = 10
	}
	return limit
}

// distinctSources lists source ids in outcome order, optionally filtered.
func distinctSources(outcomes []SourceOutcome, keep func(SourceOutcome) bool) []config.SourceID {
	seen := make(map[config.SourceID]struct{}, len(outcomes))
	var out []config.SourceID
	for _, o := range outcomes {
		if keep != nil && !keep(o) {
			continue
		}
		if _, dup := seen[o.SourceID]; dup {
			continue
		}
		seen[o.SourceID] = struct{}{}
		out = append(out, o.SourceID)
	}
	return out
}
