// Package minhash supplies the one concrete minimizer hash stream the
// classification core is parameterized over. The core only requires
// "hash(sequence) -> iter<u64>" for a given (window_size, kmer_size);
// this package builds that stream from independent buzhash32 rolling
// hashes over each k-mer, the same rolling-hash table construction used
// elsewhere in this codebase for per-window sketch building.
package minhash

import (
	"fmt"
	"math/rand"

	"github.com/chmduquesne/rollinghash/buzhash32"
)

// Hasher turns a sequence into its stream of window minimizer hashes.
// w is the window size, k the k-mer size; callers must ensure w >= k > 0
// (§6's index-time invariant).
type Hasher struct {
	w, k  int
	table [256]uint32
}

// New builds a Hasher with a table seeded from seed, so that two
// Hashers built from the same seed produce identical hash streams —
// required so an index built once can be queried deterministically.
func New(w, k int, seed int64) (*Hasher, error) {
	if w < k || k <= 0 {
		return nil, fmt.Errorf("minhash: invalid window/kmer sizes (w=%d k=%d): require w >= k > 0", w, k)
	}
	rng := rand.New(rand.NewSource(seed))
	var table [256]uint32
	seen := make(map[uint32]bool, 256)
	for i := 0; i < 256; i++ {
		for {
			x := uint32(rng.Int63())
			if !seen[x] {
				table[i] = x
				seen[x] = true
				break
			}
		}
	}
	return &Hasher{w: w, k: k, table: table}, nil
}

// WindowSize and KmerSize report the parameters this Hasher was built
// with; the persisted index records these alongside the filter so a
// classify run can detect a mismatched database.
func (h *Hasher) WindowSize() int { return h.w }
func (h *Hasher) KmerSize() int   { return h.k }

// Hashes returns one minimizer hash per window of seq: the smallest
// hash among the window's k-mers. A sequence shorter than w
// contributes nothing.
func (h *Hasher) Hashes(seq []byte) []uint64 {
	if len(seq) < h.w {
		return nil
	}

	var out []uint64
	roller := buzhash32.NewFromUint32Array(h.table)

	for start := 0; start+h.w <= len(seq); start++ {
		window := seq[start : start+h.w]
		var min uint64
		for off := 0; off+h.k <= len(window); off++ {
			roller.Reset()
			roller.Write(window[off : off+h.k])
			if v := uint64(roller.Sum32()); off == 0 || v < min {
				min = v
			}
		}
		out = append(out, min)
	}
	return out
}

// HashOne hashes a single k-mer directly, for callers that already
// know their window boundary.
func (h *Hasher) HashOne(kmer []byte) uint64 {
	roller := buzhash32.NewFromUint32Array(h.table)
	roller.Write(kmer)
	return uint64(roller.Sum32())
}
