package pipeline

import (
	"github.com/rmcolq/charon/internal/entry"
	"github.com/rmcolq/charon/internal/seqio"
	"github.com/rmcolq/charon/internal/stats"
)

// cachedRead pairs a post-processed ReadEntry with the raw records it
// came from, so extraction sinks still have sequence/quality data
// available once the entry is replayed out of the cache.
type cachedRead struct {
	entry   *entry.ReadEntry
	records []seqio.Record
}

// trainingCache holds reads whose category can't yet be decided
// because the StatsModel isn't ready, implementing the cache half of
// add_read (§4.7): every unclassified read is buffered here until
// AddReadToTrainingData reports the model is ready, at which point
// Pipeline drains the whole cache through the now-ready model.
//
// capacity bounds memory: once full, Pipeline forces readiness rather
// than growing the cache further (the Capacity error kind, §7).
type trainingCache struct {
	capacity int
	reads    []cachedRead
}

func newTrainingCache(capacity int) *trainingCache {
	return &trainingCache{capacity: capacity}
}

// offer feeds one entry's unique proportions into the StatsModel's
// training data, appends the read to the cache, and reports whether
// the model just became ready and whether the cache is now full
// (forcing readiness is the caller's call, not this method's).
func (c *trainingCache) offer(e *entry.ReadEntry, records []seqio.Record, sm *stats.StatsModel) (becameReady bool, full bool) {
	becameReady = sm.AddReadToTrainingData(e.UniqueProportions())
	c.reads = append(c.reads, cachedRead{entry: e, records: records})
	full = c.capacity > 0 && len(c.reads) >= c.capacity
	return becameReady, full
}

// drain empties the cache and returns everything that was buffered, in
// original arrival order (§4.7's classify_cache replay).
func (c *trainingCache) drain() []cachedRead {
	out := c.reads
	c.reads = nil
	return out
}
