// Package ibindex builds and persists the Index: InputSummary (C1),
// InputStats (C2), HashStore (C3), and the IndexBuilder orchestration
// (C6) that ties them together with filter and binpack.
package ibindex

import "sort"

const maxBins = 255

// InputSummary is the bin<->category mapping, built once at index
// creation and immutable thereafter (§3 Lifecycle), grounded on
// original_source's input_summary.hpp field set.
type InputSummary struct {
	NumBins   uint8
	NumFiles  uint32
	BinToName map[uint8]string // bin/bucket index -> category name

	RecordsPerBin map[uint8]uint64
	HashesPerBin  map[uint8]uint64
}

// NewInputSummary returns an empty summary ready for population during
// the TSV parse step.
func NewInputSummary() *InputSummary {
	return &InputSummary{
		BinToName:     make(map[uint8]string),
		RecordsPerBin: make(map[uint8]uint64),
		HashesPerBin:  make(map[uint8]uint64),
	}
}

// Categories returns the distinct category names in first-seen order.
func (s *InputSummary) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for b := uint8(0); b < s.NumBins; b++ {
		name := s.BinToName[b]
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// CategoryIndex returns the index of name within Categories(), or
// False if name is not present — used to map a category name to its
// position in per-category arrays (ReadEntry.counts etc).
func (s *InputSummary) CategoryIndex(name string) (int, bool) {
	for i, c := range s.Categories() {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

// BinsForCategory returns every bin index owned by category name.
func (s *InputSummary) BinsForCategory(name string) []uint8 {
	var out []uint8
	for b := uint8(0); b < s.NumBins; b++ {
		if s.BinToName[b] == name {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// InputStats holds per-bin hash/record counts distinct from
// InputSummary's bin-to-category map, grounded on input_stats.hpp
// (the original kept them as siblings so stats could be rebuilt post-
// packing without touching the category mapping).
type InputStats struct {
	NumFiles      uint32
	RecordsPerBin map[uint8]uint64
	HashesPerBin  map[uint8]uint64
}

func NewInputStats() *InputStats {
	return &InputStats{
		RecordsPerBin: make(map[uint8]uint64),
		HashesPerBin:  make(map[uint8]uint64),
	}
}

// BinSize is one entry of BinsBySize's result.
type BinSize struct {
	Bin     uint8
	NumHash uint64
}

// BinsBySize returns bins sorted ascending by hash count, mirroring
// input_stats.hpp's bins_by_size.
func (s *InputStats) BinsBySize() []BinSize {
	out := make([]BinSize, 0, len(s.HashesPerBin))
	for b, n := range s.HashesPerBin {
		out = append(out, BinSize{Bin: b, NumHash: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NumHash < out[j].NumHash })
	return out
}

// MaxHashCount returns the largest per-bin hash count, the quantity
// BinPacker's capacity formula starts from (§4.2 step 2; binpack
// computes it itself from its own Bin list). Zero if there are no
// bins.
func (s *InputStats) MaxHashCount() uint64 {
	var max uint64
	for _, n := range s.HashesPerBin {
		if n > max {
			max = n
		}
	}
	return max
}
