package pattern

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/quarryhq/quarry/internal/errors"
	"github.com/quarryhq/quarry/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{
		DataDir:          t.TempDir(),
		KeywordBackend:   "sqlite",
		VectorDimensions: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type captureNotifier struct {
	mu       sync.Mutex
	patterns []*store.Pattern
}

func (c *captureNotifier) PatternReinforced(p *store.Pattern) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patterns = append(c.patterns, p)
}

func TestReinforceIncrementsAndNotifies(t *testing.T) {
	s := newTestStore(t)
	notifier := &captureNotifier{}
	r := NewReinforcer(s, notifier, nil)
	ctx := context.Background()

	p, err := r.Create(ctx, "prefers-bullet-summaries", []string{"email 2026-03-01"})
	require.NoError(t, err)

	updated, err := r.Reinforce(ctx, p.ID, []string{"email 2026-04-12"})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.UseCount)
	assert.Equal(t, store.ConfidenceLow, updated.Confidence)
	assert.Len(t, updated.Evidence, 2)

	require.Len(t, notifier.patterns, 1)
	assert.Equal(t, p.ID, notifier.patterns[0].ID)
}

func TestReinforceNotFound(t *testing.T) {
	r := NewReinforcer(newTestStore(t), nil, nil)

	_, err := r.Reinforce(context.Background(), "no-such-pattern", nil)
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodePatternNotFound, qerrors.GetCode(err))
}

func TestReinforceConcurrent(t *testing.T) {
	s := newTestStore(t)
	r := NewReinforcer(s, nil, nil)
	ctx := context.Background()

	p, err := r.Create(ctx, "hot", nil)
	require.NoError(t, err)

	const callers = 12
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Reinforce(ctx, p.ID, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	final, err := r.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, callers, final.UseCount)
	assert.Equal(t, store.ConfidenceHigh, final.Confidence)
}
