package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quarryhq/quarry/internal/config"
	qerrors "github.com/quarryhq/quarry/internal/errors"
)

// SourceAdapter wraps one backend behind the common outcome shape.
//
// Implementations must never return an error from Search: every backend
// failure, malformed response, or timeout is absorbed into the returned
// SourceOutcome's status. Matches come back already ranked best-first per
// the backend's own relevance; fusion ranks by position, not raw score,
// because raw scores are not comparable across backends.
type SourceAdapter interface {
	// ID identifies the backend.
	ID() config.SourceID

	// Search runs one query against the backend.
	Search(ctx context.Context, query Query, limit int) SourceOutcome
}

// runAdapter invokes one adapter with its own timeout and converts every
// failure path, including a panicking adapter, into an outcome. This is
// the absorption boundary: nothing propagates past it.
func runAdapter(ctx context.Context, adapter SourceAdapter, query Query, limit int, timeout time.Duration) (outcome SourceOutcome) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			outcome = SourceOutcome{
				SourceID: adapter.ID(),
				Status:   StatusError,
				Latency:  time.Since(start),
				Err:      fmt.Errorf("adapter panic: %v", r),
			}
		}
	}()

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outcome = adapter.Search(callCtx, query, limit)
	outcome.SourceID = adapter.ID()
	outcome.Latency = time.Since(start)

	// A cancelled call reports timeout regardless of what the adapter
	// managed to return.
	if callCtx.Err() != nil && outcome.Status != StatusSuccess {
		outcome.Status = StatusTimeout
		if outcome.Err == nil {
			outcome.Err = qerrors.Wrap(qerrors.ErrCodeSourceTimeout, callCtx.Err())
		}
		outcome.RankedMatches = nil
	}
	return outcome
}

// outcomeFor classifies an adapter-internal error into the right status.
func outcomeFor(id config.SourceID, err error, matches []Match) SourceOutcome {
	switch {
	case err != nil:
		status := StatusError
		code := qerrors.ErrCodeSourceError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			status = StatusTimeout
			code = qerrors.ErrCodeSourceTimeout
		}
		return SourceOutcome{SourceID: id, Status: status, Err: qerrors.Wrap(code, err)}
	case len(matches) == 0:
		return SourceOutcome{SourceID: id, Status: StatusEmpty}
	default:
		return SourceOutcome{SourceID: id, Status: StatusSuccess, RankedMatches: matches}
	}
}
