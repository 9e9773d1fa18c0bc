// Package async runs best-effort background side-writes. Work is queued
// on a bounded channel and dropped with a counted failure when the queue
// is full; callers on the hot path never block on a secondary store.
package async

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quarryhq/quarry/internal/store"
)

// DefaultQueueSize bounds the pending sync queue.
const DefaultQueueSize = 128

// syncTimeout bounds one delivery attempt.
const syncTimeout = 10 * time.Second

// Stats is a point-in-time snapshot of syncer counters.
type Stats struct {
	Enqueued  uint64 `json:"enqueued"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// PatternSyncer mirrors reinforced patterns to the managed semantic-memory
// service so its copy of confidence tiers stays roughly current. Delivery
// is best effort: failures increment a counter and are otherwise ignored.
type PatternSyncer struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger

	queue chan *store.Pattern
	done  chan struct{}
	once  sync.Once

	enqueued  atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// Config configures the pattern syncer.
type Config struct {
	Endpoint  string
	APIKey    string
	QueueSize int
}

// NewPatternSyncer starts the background worker.
func NewPatternSyncer(cfg Config, logger *slog.Logger) *PatternSyncer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &PatternSyncer{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: syncTimeout},
		logger:   logger,
		queue:    make(chan *store.Pattern, cfg.QueueSize),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

// PatternReinforced queues a pattern for delivery. Never blocks: a full
// queue drops the update and counts it.
func (s *PatternSyncer) PatternReinforced(p *store.Pattern) {
	select {
	case s.queue <- p:
		s.enqueued.Add(1)
	default:
		s.dropped.Add(1)
		s.logger.Warn("sync queue full, dropping pattern update", "pattern_id", p.ID)
	}
}

// Stats returns current counters.
func (s *PatternSyncer) Stats() Stats {
	return Stats{
		Enqueued:  s.enqueued.Load(),
		Delivered: s.delivered.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
	}
}

// Close stops the worker after draining whatever is already queued.
func (s *PatternSyncer) Close() error {
	s.once.Do(func() {
		close(s.queue)
		<-s.done
	})
	return nil
}

func (s *PatternSyncer) loop() {
	defer close(s.done)
	for p := range s.queue {
		if err := s.deliver(p); err != nil {
			s.failed.Add(1)
			s.logger.Warn("pattern sync failed",
				"pattern_id", p.ID,
				"error", err)
			continue
		}
		s.delivered.Add(1)
	}
}

type syncRequest struct {
	PatternID  string   `json:"pattern_id"`
	Name       string   `json:"name"`
	UseCount   int      `json:"use_count"`
	Confidence string   `json:"confidence"`
	Evidence   []string `json:"evidence"`
}

func (s *PatternSyncer) deliver(p *store.Pattern) error {
	body, err := json.Marshal(syncRequest{
		PatternID:  p.ID,
		Name:       p.Name,
		UseCount:   p.UseCount,
		Confidence: string(p.Confidence),
		Evidence:   p.Evidence,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sync request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.endpoint+"/v1/patterns/sync", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sync request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sync returned status %d", resp.StatusCode)
	}
	return nil
}
