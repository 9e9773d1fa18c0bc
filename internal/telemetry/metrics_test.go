package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryhq/quarry/internal/config"
	"github.com/quarryhq/quarry/internal/retrieval"
)

func TestCollectorTallies(t *testing.T) {
	c := NewCollector()

	c.RecordSearch(retrieval.TierFast, 40*time.Millisecond, 3, false)
	c.RecordSearch(retrieval.TierFast, 800*time.Millisecond, 0, false)
	c.RecordSearch(retrieval.TierDeep, 3*time.Second, 0, true)

	snap := c.Snapshot()
	fast := snap[retrieval.TierFast]
	require.Equal(t, uint64(2), fast.Requests)
	assert.Equal(t, uint64(1), fast.ZeroResult)
	assert.Zero(t, fast.AllFailed)
	assert.Equal(t, uint64(1), fast.Buckets[0], "40ms lands in the <=50ms bucket")

	deep := snap[retrieval.TierDeep]
	assert.Equal(t, uint64(1), deep.AllFailed)
	assert.Zero(t, deep.ZeroResult, "all-failed requests do not count as zero-result")
}

func TestCollectorSourceFailures(t *testing.T) {
	c := NewCollector()

	c.RecordSourceFailure(config.SourceSemantic, retrieval.StatusTimeout)
	c.RecordSourceFailure(config.SourceSemantic, retrieval.StatusTimeout)
	c.RecordSourceFailure(config.SourceSemantic, retrieval.StatusError)
	c.RecordSourceFailure(config.SourceGraph, retrieval.StatusError)

	snap := c.SourceFailureSnapshot()
	assert.Equal(t, uint64(2), snap[config.SourceSemantic].Timeouts)
	assert.Equal(t, uint64(1), snap[config.SourceSemantic].Errors)
	assert.Equal(t, uint64(1), snap[config.SourceGraph].Errors)
	assert.NotContains(t, snap, config.SourceRelational)
}

func TestCollectorZeroResultRing(t *testing.T) {
	c := NewCollector()
	for i := 0; i < zeroResultRingSize+10; i++ {
		c.RecordSearch(retrieval.TierFast, time.Millisecond, 0, false)
	}

	recent := c.RecentZeroResults()
	assert.Len(t, recent, zeroResultRingSize)
	for i := 1; i < len(recent); i++ {
		assert.False(t, recent[i].At.Before(recent[i-1].At), "entries are oldest first")
	}
}

func TestBucketFor(t *testing.T) {
	assert.Equal(t, 0, bucketFor(10*time.Millisecond))
	assert.Equal(t, 4, bucketFor(700*time.Millisecond))
	assert.Equal(t, len(latencyBuckets), bucketFor(time.Minute))
}
