package async

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryhq/quarry/internal/store"
)

func testPattern(id string) *store.Pattern {
	return &store.Pattern{
		ID:         id,
		Name:       "test",
		UseCount:   3,
		Confidence: store.ConfidenceMedium,
		Evidence:   []string{"e1"},
	}
}

func TestSyncerDelivers(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/patterns/sync", r.URL.Path)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewPatternSyncer(Config{Endpoint: srv.URL}, nil)
	s.PatternReinforced(testPattern("p1"))
	s.PatternReinforced(testPattern("p2"))
	require.NoError(t, s.Close())

	assert.Equal(t, int32(2), received.Load())
	stats := s.Stats()
	assert.Equal(t, uint64(2), stats.Enqueued)
	assert.Equal(t, uint64(2), stats.Delivered)
	assert.Zero(t, stats.Failed)
}

func TestSyncerCountsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewPatternSyncer(Config{Endpoint: srv.URL}, nil)
	s.PatternReinforced(testPattern("p1"))
	require.NoError(t, s.Close())

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Zero(t, stats.Delivered)
}

func TestSyncerDropsWhenQueueFull(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-blocked
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewPatternSyncer(Config{Endpoint: srv.URL, QueueSize: 1}, nil)

	// First update occupies the worker, second fills the queue, third has
	// nowhere to go.
	s.PatternReinforced(testPattern("p1"))
	assert.Eventually(t, func() bool {
		return s.Stats().Enqueued == 1 && len(s.queue) == 0
	}, time.Second, 5*time.Millisecond)
	s.PatternReinforced(testPattern("p2"))
	s.PatternReinforced(testPattern("p3"))

	assert.Equal(t, uint64(1), s.Stats().Dropped)
	close(blocked)
	require.NoError(t, s.Close())
}
