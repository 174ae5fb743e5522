// Package pipeline is the chunked, thread-parallel loop that hashes
// records, queries the filter, accumulates ReadEntry feature vectors,
// and routes them through the training cache or straight to
// classification, emitting assignments and optional extractions. The
// worker pool follows this codebase's usual channel-and-semaphore
// shape for fanning record-level work across goroutines.
package pipeline

import (
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rmcolq/charon/internal/entry"
	"github.com/rmcolq/charon/internal/filter"
	"github.com/rmcolq/charon/internal/ibindex"
	"github.com/rmcolq/charon/internal/minhash"
	"github.com/rmcolq/charon/internal/seqio"
	"github.com/rmcolq/charon/internal/stats"
)

// Mode selects which DecisionEngine mode entries are routed through.
type Mode int

const (
	ModeClassify Mode = iota
	ModeDehost
)

// Config bundles everything the driver needs beyond the StatsModel
// and Summary it is handed at construction.
type Config struct {
	Mode       Mode
	HostIndex  int // only meaningful when Mode == ModeDehost

	ChunkSize int
	Threads   int

	ExtractCategory string // "", a category name, or "all"
	ExtractPrefix   string

	Logger *log.Logger
	Out    io.Writer // assignment lines (e.g. os.Stdout)
}

// Pipeline drives classification of a stream of records against a
// built Index's filter and a StatsModel.
type Pipeline struct {
	cfg     Config
	summary *ibindex.InputSummary
	sm      *stats.StatsModel
	f       *filter.Filter
	hasher  *minhash.Hasher

	sinks *sinkSet

	outMu sync.Mutex

	cache *trainingCache

	// summary counters (§5 shared-resource policy: one mutex/atomic
	// set covers all of them)
	nClassified uint64
	nUnclassified uint64
	nRejected   uint64
}

// New builds a Pipeline ready to process records.
func New(cfg Config, summary *ibindex.InputSummary, sm *stats.StatsModel, f *filter.Filter, hasher *minhash.Hasher) (*Pipeline, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("pipeline: invalid config: chunk_size must be > 0")
	}
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}

	var sinks *sinkSet
	if cfg.ExtractCategory != "" {
		var err error
		sinks, err = newSinkSet(summary, cfg.ExtractCategory, cfg.ExtractPrefix)
		if err != nil {
			return nil, err
		}
	}

	// Cache capacity is N_fit * C * 4 (§4.7): enough room that every
	// category can accumulate its full pos/neg training buffers before
	// the cache fills and forces readiness early.
	capacity := sm.NumReadsToFit() * sm.NumCategories() * 4
	if capacity <= 0 {
		capacity = 4
	}

	return &Pipeline{
		cfg:     cfg,
		summary: summary,
		sm:      sm,
		f:       f,
		hasher:  hasher,
		sinks:   sinks,
		cache:   newTrainingCache(capacity),
	}, nil
}

// task is one record (or paired-record set) flowing through the
// worker pool, carrying everything needed for add_read after feature
// extraction completes.
type task struct {
	e       *entry.ReadEntry
	records []seqio.Record // 1 for single, 2 for paired
	err     error
}

// ProcessSingle drives unpaired records from r in chunks of ChunkSize,
// with a global barrier between chunks (§5).
func (p *Pipeline) ProcessSingle(r seqio.Reader) error {
	for {
		chunk, done, err := readChunk(r, p.cfg.ChunkSize)
		if err != nil {
			return err
		}
		if err := p.processChunk(chunk, nil); err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// ProcessPaired zips r1/r2 positionally within each chunk (§4.7's
// paired-read handling): ids are trimmed of their trailing /1 or /2
// suffix and compared; a mismatch is fatal.
func (p *Pipeline) ProcessPaired(r1, r2 seqio.Reader) error {
	for {
		chunk1, done1, err := readChunk(r1, p.cfg.ChunkSize)
		if err != nil {
			return err
		}
		chunk2, done2, err := readChunk(r2, p.cfg.ChunkSize)
		if err != nil {
			return err
		}
		if len(chunk1) != len(chunk2) {
			return fmt.Errorf("pipeline: paired input length mismatch: mate 1 has %d records, mate 2 has %d in this chunk", len(chunk1), len(chunk2))
		}
		if err := p.processChunk(chunk1, chunk2); err != nil {
			return err
		}
		if done1 != done2 {
			return fmt.Errorf("pipeline: paired input files have different lengths")
		}
		if done1 {
			return nil
		}
	}
}

func readChunk(r seqio.Reader, size int) ([]seqio.Record, bool, error) {
	chunk := make([]seqio.Record, 0, size)
	for i := 0; i < size; i++ {
		rec, ok, err := r.Next()
		if err != nil {
			return chunk, false, err
		}
		if !ok {
			return chunk, true, nil
		}
		chunk = append(chunk, rec)
	}
	return chunk, false, nil
}

func trimMateSuffix(id string) string {
	if len(id) >= 2 {
		return id[:len(id)-2]
	}
	return id
}

// processChunk fans a chunk of records out over the worker pool
// (record-level tasks, §5), waits for the whole chunk, then hands each
// entry to addRead in the chunk's input order.
func (p *Pipeline) processChunk(chunk1, chunk2 []seqio.Record) error {
	n := len(chunk1)
	if n == 0 {
		return nil
	}

	results := make([]task, n)
	sem := make(chan struct{}, p.cfg.Threads)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			if chunk2 == nil {
				results[i] = p.buildEntrySingle(chunk1[i])
				return
			}
			results[i] = p.buildEntryPaired(chunk1[i], chunk2[i])
		}(i)
	}
	wg.Wait()

	for _, t := range results {
		if t.err != nil {
			return t.err
		}
		if t.e == nil {
			// Rejected at feature-extraction time (e.g. n_hashes==0,
			// oversized read); counted, not a fatal error.
			atomic.AddUint64(&p.nRejected, 1)
			continue
		}
		if err := p.addRead(t.e, t.records); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) buildEntrySingle(rec seqio.Record) task {
	e, err := p.buildEntry(rec.ID, rec.Sequence, rec.Qualities)
	if err != nil {
		return task{err: err}
	}
	return task{e: e, records: []seqio.Record{rec}}
}

func (p *Pipeline) buildEntryPaired(rec1, rec2 seqio.Record) task {
	id1 := trimMateSuffix(rec1.ID)
	id2 := trimMateSuffix(rec2.ID)
	if id1 != id2 {
		return task{err: fmt.Errorf("pipeline: paired id mismatch: %q vs %q", rec1.ID, rec2.ID)}
	}

	combinedSeq := rec1.Sequence + rec2.Sequence
	combinedQual := combineQuality(rec1.Qualities, rec2.Qualities)

	length := uint32(len(combinedSeq))
	if length == 0 || length > 1<<32-1 {
		return task{}
	}
	meanQ := meanQuality(combinedQual)
	compression := compressionRatio(combinedSeq)

	e := entry.New(id1, length, meanQ, compression, p.summary)
	agent := p.f.NewAgent()
	for _, h := range p.hasher.Hashes([]byte(rec1.Sequence)) {
		e.Update(agent.BulkContains(h))
	}
	for _, h := range p.hasher.Hashes([]byte(rec2.Sequence)) {
		e.Update(agent.BulkContains(h))
	}
	if e.NumHashes() == 0 {
		return task{}
	}
	if err := e.PostProcess(p.summary); err != nil {
		return task{err: err}
	}
	return task{e: e, records: []seqio.Record{rec1, rec2}}
}

func (p *Pipeline) buildEntry(id, seq, qual string) (*entry.ReadEntry, error) {
	length := uint32(len(seq))
	if length == 0 || length > 1<<32-1 {
		return nil, nil // rejected: B1/B2, counted by the caller
	}

	meanQ := meanQuality(qual)
	compression := compressionRatio(seq)

	e := entry.New(id, length, meanQ, compression, p.summary)
	agent := p.f.NewAgent()
	for _, h := range p.hasher.Hashes([]byte(seq)) {
		e.Update(agent.BulkContains(h))
	}
	if e.NumHashes() == 0 {
		return nil, nil
	}
	if err := e.PostProcess(p.summary); err != nil {
		return nil, err
	}
	return e, nil
}

func meanQuality(qual string) float32 {
	if len(qual) == 0 {
		return 0
	}
	var sum int
	for _, c := range []byte(qual) {
		sum += int(c) - 33 // Phred+33
	}
	return float32(sum) / float32(len(qual))
}

func combineQuality(q1, q2 string) string {
	return q1 + q2
}

// compressionRatio implements ReadEntry's compression_ratio feature
// (§4.7 step 2): gzip(sequence).len / sequence.len. compress/gzip is
// used rather than the internal spill codec (snappy) because this
// value is the literal feature the model was fit against, and gzip is
// the format the extraction sinks below also use.
func compressionRatio(seq string) float32 {
	if len(seq) == 0 {
		return 0
	}
	var buf strings.Builder
	gw := gzip.NewWriter(&buf)
	_, _ = gw.Write([]byte(seq))
	gw.Close()
	return float32(buf.Len()) / float32(len(seq))
}

// addRead implements add_read (§4.7): classify immediately if the
// model is ready, otherwise route through the training cache.
func (p *Pipeline) addRead(e *entry.ReadEntry, records []seqio.Record) error {
	if p.sm.Ready() {
		return p.classifyAndEmit(e, records)
	}

	becameReady, forced := p.cache.offer(e, records, p.sm)
	if forced {
		p.cfg.Logger.Printf("INFO: training cache full before every category was ready; forcing remaining models ready")
		p.sm.ForceReady()
		becameReady = true
	}
	if becameReady {
		return p.drainCache()
	}
	return nil
}

// drainCache implements classify_cache (§4.7): replay cached reads
// through the now-ready model.
func (p *Pipeline) drainCache() error {
	cached := p.cache.drain()
	for _, c := range cached {
		if err := p.classifyAndEmit(c.entry, c.records); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) classifyAndEmit(e *entry.ReadEntry, records []seqio.Record) error {
	if p.cfg.Mode == ModeDehost {
		e.Dehost(p.sm, p.cfg.HostIndex)
	} else {
		e.Classify(p.sm)
	}

	if e.Call() == entry.None {
		atomic.AddUint64(&p.nUnclassified, 1)
	} else {
		atomic.AddUint64(&p.nClassified, 1)
	}

	p.outMu.Lock()
	fmt.Fprintln(p.cfg.Out, e.PrintAssignment(p.summary))
	p.outMu.Unlock()

	if p.sinks != nil {
		return p.sinks.maybeExtract(e, p.summary, records)
	}
	return nil
}

// Complete drains any remaining cache (forcing readiness first if the
// input ended before the model ever became ready, per S4) and closes
// extraction sinks.
func (p *Pipeline) Complete() error {
	if !p.sm.Ready() {
		p.sm.ForceReady()
	}
	if err := p.drainCache(); err != nil {
		return err
	}
	if p.sinks != nil {
		if err := p.sinks.Close(); err != nil {
			return err
		}
	}
	p.printSummary()
	return nil
}

func (p *Pipeline) printSummary() {
	total := atomic.LoadUint64(&p.nClassified) + atomic.LoadUint64(&p.nUnclassified)
	p.cfg.Logger.Printf(
		"done: %d classified, %d unclassified, %d rejected (%d total processed)",
		atomic.LoadUint64(&p.nClassified), atomic.LoadUint64(&p.nUnclassified), atomic.LoadUint64(&p.nRejected), total,
	)
}
