// Package telemetry collects in-process search metrics: per-tier request
// counts, latency buckets, and a ring of recent zero-result queries for
// debugging recall problems. Everything lives in memory; there is no
// metrics backend dependency.
package telemetry

import (
	"sync"
	"time"

	"github.com/quarryhq/quarry/internal/config"
	"github.com/quarryhq/quarry/internal/retrieval"
)

// latencyBuckets are upper bounds in milliseconds; the last bucket is
// unbounded.
var latencyBuckets = []int64{50, 100, 250, 500, 1000, 2500, 5000, 10000}

// zeroResultRingSize caps the retained zero-result history.
const zeroResultRingSize = 64

// TierStats aggregates requests for one tier.
type TierStats struct {
	Requests   uint64   `json:"requests"`
	AllFailed  uint64   `json:"all_failed"`
	ZeroResult uint64   `json:"zero_result"`
	Buckets    []uint64 `json:"latency_buckets"`
}

// ZeroResult records one request that returned nothing.
type ZeroResult struct {
	Tier    retrieval.Tier `json:"tier"`
	Elapsed time.Duration  `json:"elapsed"`
	At      time.Time      `json:"at"`
}

// SourceFailures counts absorbed failures for one source by kind.
type SourceFailures struct {
	Timeouts uint64 `json:"timeouts"`
	Errors   uint64 `json:"errors"`
}

// Collector implements the orchestrator's Recorder.
type Collector struct {
	mu      sync.Mutex
	tiers   map[retrieval.Tier]*TierStats
	sources map[config.SourceID]*SourceFailures

	zeroRing []ZeroResult
	zeroNext int
}

var _ retrieval.Recorder = (*Collector)(nil)

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{
		tiers:   make(map[retrieval.Tier]*TierStats),
		sources: make(map[config.SourceID]*SourceFailures),
	}
}

// RecordSearch tallies one completed request.
func (c *Collector) RecordSearch(tier retrieval.Tier, elapsed time.Duration, matches int, allFailed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.tiers[tier]
	if !ok {
		stats = &TierStats{Buckets: make([]uint64, len(latencyBuckets)+1)}
		c.tiers[tier] = stats
	}

	stats.Requests++
	if allFailed {
		stats.AllFailed++
	}
	stats.Buckets[bucketFor(elapsed)]++

	if matches == 0 && !allFailed {
		stats.ZeroResult++
		entry := ZeroResult{Tier: tier, Elapsed: elapsed, At: time.Now()}
		if len(c.zeroRing) < zeroResultRingSize {
			c.zeroRing = append(c.zeroRing, entry)
		} else {
			c.zeroRing[c.zeroNext] = entry
			c.zeroNext = (c.zeroNext + 1) % zeroResultRingSize
		}
	}
}

// RecordSourceFailure tallies one absorbed source failure.
func (c *Collector) RecordSourceFailure(source config.SourceID, status retrieval.OutcomeStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	failures, ok := c.sources[source]
	if !ok {
		failures = &SourceFailures{}
		c.sources[source] = failures
	}
	if status == retrieval.StatusTimeout {
		failures.Timeouts++
	} else {
		failures.Errors++
	}
}

// SourceFailureSnapshot copies per-source failure counts.
func (c *Collector) SourceFailureSnapshot() map[config.SourceID]SourceFailures {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[config.SourceID]SourceFailures, len(c.sources))
	for source, failures := range c.sources {
		out[source] = *failures
	}
	return out
}

// Snapshot copies current per-tier stats.
func (c *Collector) Snapshot() map[retrieval.Tier]TierStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[retrieval.Tier]TierStats, len(c.tiers))
	for tier, stats := range c.tiers {
		copied := *stats
		copied.Buckets = append([]uint64(nil), stats.Buckets...)
		out[tier] = copied
	}
	return out
}

// RecentZeroResults returns retained zero-result entries, oldest first.
func (c *Collector) RecentZeroResults() []ZeroResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.zeroRing) < zeroResultRingSize {
		return append([]ZeroResult(nil), c.zeroRing...)
	}
	out := make([]ZeroResult, 0, zeroResultRingSize)
	out = append(out, c.zeroRing[c.zeroNext:]...)
	out = append(out, c.zeroRing[:c.zeroNext]...)
	return out
}

func bucketFor(elapsed time.Duration) int {
	ms := elapsed.Milliseconds()
	for i, bound := range latencyBuckets {
		if ms <= bound {
			return i
		}
	}
	return len(latencyBuckets)
}
