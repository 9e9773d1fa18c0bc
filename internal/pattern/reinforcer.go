// Package pattern implements confidence-tier reinforcement for stored
// patterns. Reinforcement is the engine's only concurrent write path; the
// store executes it as a single atomic increment-and-return so concurrent
// callers never lose an update.
package pattern

import (
	"context"
	"log/slog"

	qerrors "github.com/quarryhq/quarry/internal/errors"
	"github.com/quarryhq/quarry/internal/store"
)

// Notifier receives successful reinforcements for best-effort side writes.
type Notifier interface {
	PatternReinforced(p *store.Pattern)
}

// Reinforcer wraps the store's atomic pattern increment with conflict
// retry and optional downstream notification.
type Reinforcer struct {
	store    *store.Store
	notifier Notifier
	logger   *slog.Logger
}

// NewReinforcer builds a reinforcer. notifier may be nil.
func NewReinforcer(s *store.Store, notifier Notifier, logger *slog.Logger) *Reinforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reinforcer{store: s, notifier: notifier, logger: logger}
}

// Reinforce increments the pattern's use count, recomputes its confidence
// tier, and appends evidence, all in one storage round trip. A storage
// conflict is retried once, then surfaced as a hard error. Returns
// NotFound when the id does not exist.
func (r *Reinforcer) Reinforce(ctx context.Context, patternID string, newEvidence []string) (*store.Pattern, error) {
	p, err := r.store.IncrementPattern(ctx, patternID, newEvidence)
	if err != nil && qerrors.GetCode(err) == qerrors.ErrCodeReinforceConflict {
		r.logger.Warn("reinforcement conflict, retrying once", "pattern_id", patternID)
		p, err = r.store.IncrementPattern(ctx, patternID, newEvidence)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Debug("pattern reinforced",
		"pattern_id", p.ID,
		"use_count", p.UseCount,
		"confidence", p.Confidence)

	if r.notifier != nil {
		r.notifier.PatternReinforced(p)
	}
	return p, nil
}

// Create registers a pattern on first observation.
func (r *Reinforcer) Create(ctx context.Context, name string, evidence []string) (*store.Pattern, error) {
	return r.store.CreatePattern(ctx, name, evidence)
}

// Get fetches a pattern by id.
func (r *Reinforcer) Get(ctx context.Context, patternID string) (*store.Pattern, error) {
	return r.store.GetPattern(ctx, patternID)
}
