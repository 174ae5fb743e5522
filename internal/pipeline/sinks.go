package pipeline

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rmcolq/charon/internal/entry"
	"github.com/rmcolq/charon/internal/ibindex"
	"github.com/rmcolq/charon/internal/seqio"
)

// sinkSet implements run_extract (§6): one gzip-wrapped FASTQ file per
// mate, per category, opened lazily the first time a read is actually
// assigned there. Grounded on original_source's
// extract_category_to_file (a per-category list of output paths, one
// entry per mate), wrapping each output stream in a *gzip.Writer over
// its *os.File.
type sinkSet struct {
	mu       sync.Mutex
	want     string // a category name, or "all"
	prefix   string
	summary  *ibindex.InputSummary
	mateSink map[int][]*fileSink // category index -> one sink per mate
}

type fileSink struct {
	f  *os.File
	gz *gzip.Writer
}

func newSinkSet(summary *ibindex.InputSummary, categoryToExtract, prefix string) (*sinkSet, error) {
	if prefix == "" {
		prefix = "extracted"
	}
	return &sinkSet{
		want:     categoryToExtract,
		prefix:   prefix,
		summary:  summary,
		mateSink: make(map[int][]*fileSink),
	}, nil
}

func (s *sinkSet) shouldExtract(categoryName string) bool {
	return s.want == "all" || s.want == categoryName
}

// maybeExtract writes the read's records to the right per-category
// file(s) if its call matches the requested category (or "all"
// extracts every classified read, matching extract_category_to_file's
// map-of-every-category shape when category_to_extract=="all").
func (s *sinkSet) maybeExtract(e *entry.ReadEntry, summary *ibindex.InputSummary, records []seqio.Record) error {
	if e.Call() == entry.None {
		return nil
	}
	categories := summary.Categories()
	if int(e.Call()) >= len(categories) {
		return nil
	}
	name := categories[e.Call()]
	if !s.shouldExtract(name) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sinks, err := s.sinksFor(int(e.Call()), name, len(records))
	if err != nil {
		return err
	}
	for i, rec := range records {
		if err := writeFastqRecord(sinks[i].gz, rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *sinkSet) sinksFor(catIdx int, name string, numMates int) ([]*fileSink, error) {
	if existing, ok := s.mateSink[catIdx]; ok {
		return existing, nil
	}
	sinks := make([]*fileSink, numMates)
	for m := 0; m < numMates; m++ {
		path := fmt.Sprintf("%s.%s", s.prefix, name)
		if numMates > 1 {
			path = fmt.Sprintf("%s_%s_%d.fastq.gz", s.prefix, name, m+1)
		} else {
			path = fmt.Sprintf("%s_%s.fastq.gz", s.prefix, name)
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("pipeline: extract: create %s: %w", path, err)
		}
		sinks[m] = &fileSink{f: f, gz: gzip.NewWriter(f)}
	}
	s.mateSink[catIdx] = sinks
	return sinks, nil
}

func writeFastqRecord(w io.Writer, rec seqio.Record) error {
	qual := rec.Qualities
	if qual == "" {
		qual = repeatByte('I', len(rec.Sequence))
	}
	_, err := fmt.Fprintf(w, "@%s\n%s\n+\n%s\n", rec.ID, rec.Sequence, qual)
	return err
}

func repeatByte(b byte, n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = b
	}
	return string(buf)
}

// Close flushes and closes every sink opened during the run.
func (s *sinkSet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sinks := range s.mateSink {
		for _, fs := range sinks {
			if err := fs.gz.Close(); err != nil {
				return err
			}
			if err := fs.f.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}
