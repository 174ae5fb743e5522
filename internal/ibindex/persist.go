package ibindex

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/golang/snappy"
	"github.com/rmcolq/charon/internal/filter"
)

// indexVersion is checked on load and is fatal on mismatch, the way
// original_source's index.hpp checks Index::version before trusting
// the rest of the archive.
const indexVersion uint32 = 1

// archive is the on-disk shape of an Index: the exact field set §6
// names (window_size, kmer_size, max_fpr, InputSummary, InputStats,
// filter), plus the raw filter bits since filter.Filter's bitarray
// backing store isn't itself gob-encodable.
type archive struct {
	Version    uint32
	WindowSize uint8
	KmerSize   uint8
	MaxFPR     float64

	Summary *InputSummary
	Stats   *InputStats

	FilterB      int
	FilterKHash  int
	FilterMBits  uint64
	FilterBits   []byte
}

// Save persists idx to path, snappy-compressing the gob stream.
func Save(idx *Index, path string) error {
	bits, err := idx.Filter.MarshalBits()
	if err != nil {
		return fmt.Errorf("ibindex: marshal filter bits: %w", err)
	}

	a := archive{
		Version:     indexVersion,
		WindowSize:  uint8(idx.WindowSize),
		KmerSize:    uint8(idx.KmerSize),
		MaxFPR:      idx.FPRMax,
		Summary:     idx.Summary,
		Stats:       idx.Stats,
		FilterB:     idx.Filter.B,
		FilterKHash: idx.Filter.KHash,
		FilterMBits: idx.Filter.MBits,
		FilterBits:  bits,
	}

	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ibindex: create index file %s: %w", path, err)
	}
	defer fh.Close()

	wtr := snappy.NewBufferedWriter(fh)
	enc := gob.NewEncoder(wtr)
	if err := enc.Encode(a); err != nil {
		return fmt.Errorf("ibindex: encode index %s: %w", path, err)
	}
	return wtr.Close()
}

// Load reads back an Index previously written by Save. A version
// mismatch is fatal, matching the original's "Unsupported index
// version" abort.
func Load(path string) (*Index, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ibindex: open index file %s: %w", path, err)
	}
	defer fh.Close()

	snr := snappy.NewReader(fh)
	dec := gob.NewDecoder(snr)

	var a archive
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("ibindex: decode index %s: %w", path, err)
	}
	if a.Version != indexVersion {
		return nil, fmt.Errorf("ibindex: unsupported index version %d (want %d): %s", a.Version, indexVersion, path)
	}

	f, err := filter.New(a.FilterB, a.FilterKHash, a.FilterMBits)
	if err != nil {
		return nil, fmt.Errorf("ibindex: rebuild filter from %s: %w", path, err)
	}
	if err := f.UnmarshalBits(a.FilterBits); err != nil {
		return nil, fmt.Errorf("ibindex: restore filter bits from %s: %w", path, err)
	}

	return &Index{
		WindowSize: int(a.WindowSize),
		KmerSize:   int(a.KmerSize),
		FPRMax:     a.MaxFPR,
		Summary:    a.Summary,
		Stats:      a.Stats,
		Filter:     f,
	}, nil
}
