// Package entry implements ReadEntry (C7) and the embedded
// DecisionEngine (C10): per-read feature accumulation from filter bit
// rows through to a final call and confidence score. Grounded
// directly on original_source/include/read_entry.hpp.
package entry

import (
	"fmt"
	"strings"

	"github.com/rmcolq/charon/internal/filter"
	"github.com/rmcolq/charon/internal/ibindex"
	"github.com/rmcolq/charon/internal/stats"
)

// None is the call/category sentinel (§3 I1).
const None = 0xFF

// ReadEntry is the per-read mutable feature vector (§3, §4.4).
type ReadEntry struct {
	ReadID            string
	Length            uint32
	MeanQuality       float32
	CompressionRatio  float32

	bits     []filter.BitRow
	numHashes uint32

	maxBits          [][]bool // per category, one bool per hash position
	counts           []uint32
	uniqueCounts     []uint32
	proportions      []float32
	uniqueProportions []float32
	probabilities    []float64

	call             uint8
	confidenceScore  uint8
}

// New preallocates a ReadEntry for the given summary's category count,
// matching the constructor in read_entry.hpp.
func New(readID string, length uint32, meanQuality, compressionRatio float32, summary *ibindex.InputSummary) *ReadEntry {
	n := len(summary.Categories())
	e := &ReadEntry{
		ReadID:           readID,
		Length:           length,
		MeanQuality:      meanQuality,
		CompressionRatio: compressionRatio,
		counts:           make([]uint32, n),
		uniqueCounts:     make([]uint32, n),
		proportions:      make([]float32, n),
		uniqueProportions: make([]float32, n),
		probabilities:    make([]float64, n),
		call:             None,
	}
	for i := range e.probabilities {
		e.probabilities[i] = 1
	}
	return e
}

// Update appends one bit row and increments the hash count (I2).
func (e *ReadEntry) Update(row filter.BitRow) {
	e.bits = append(e.bits, row)
	e.numHashes++
}

// NumHashes reports how many rows have been accumulated.
func (e *ReadEntry) NumHashes() uint32 { return e.numHashes }

// Proportions, UniqueProportions, Call, and ConfidenceScore expose
// read-only views for the pipeline and for tests.
func (e *ReadEntry) Proportions() []float32       { return e.proportions }
func (e *ReadEntry) UniqueProportions() []float32 { return e.uniqueProportions }
func (e *ReadEntry) Counts() []uint32             { return e.counts }
func (e *ReadEntry) Call() uint8                  { return e.call }
func (e *ReadEntry) ConfidenceScore() uint8        { return e.confidenceScore }

// PostProcess runs compute_counts_and_max_bits then compute_proportions
// (§4.4). Idempotent on a fully populated entry (R3): re-running it
// recomputes the same deterministic outputs from the same bit rows.
func (e *ReadEntry) PostProcess(summary *ibindex.InputSummary) error {
	if err := e.computeCountsAndMaxBits(summary); err != nil {
		return err
	}
	e.computeProportions()
	return nil
}

// computeCountsAndMaxBits implements get_counts (§4.4 steps 1-5).
func (e *ReadEntry) computeCountsAndMaxBits(summary *ibindex.InputSummary) error {
	numBins := int(summary.NumBins)
	totalBitsPerBin := make([]uint32, numBins)
	for _, row := range e.bits {
		if len(row) != numBins {
			return fmt.Errorf("entry: invariant violation: bit row has %d bins, summary has %d", len(row), numBins)
		}
		for b, set := range row {
			if set {
				totalBitsPerBin[b]++
			}
		}
	}

	categories := summary.Categories()
	indexPerCategory := make([]int, len(categories))
	for i := range indexPerCategory {
		indexPerCategory[i] = -1
	}

	for bin := 0; bin < numBins; bin++ {
		name := summary.BinToName[uint8(bin)]
		catIdx, ok := summary.CategoryIndex(name)
		if !ok {
			continue
		}
		// Tie-break by smallest bin index: only replace when strictly
		// greater, since bins are scanned in ascending order.
		if indexPerCategory[catIdx] == -1 || totalBitsPerBin[bin] > totalBitsPerBin[indexPerCategory[catIdx]] {
			indexPerCategory[catIdx] = bin
			e.counts[catIdx] = totalBitsPerBin[bin]
		}
	}

	e.maxBits = make([][]bool, len(categories))
	for c := range categories {
		e.maxBits[c] = make([]bool, 0, e.numHashes)
		e.uniqueCounts[c] = 0
	}

	for _, row := range e.bits {
		var found []int
		for c, bin := range indexPerCategory {
			set := bin >= 0 && row[bin]
			e.maxBits[c] = append(e.maxBits[c], set)
			if set {
				found = append(found, c)
			}
		}
		if len(found) == 1 {
			e.uniqueCounts[found[0]]++
		}
	}
	return nil
}

// computeProportions implements get_proportions (§4.4). Undefined if
// n_hashes==0; callers must reject such reads first (B1).
func (e *ReadEntry) computeProportions() {
	n := float32(e.numHashes)
	for i := range e.proportions {
		e.proportions[i] = float32(e.counts[i]) / n
		e.uniqueProportions[i] = float32(e.uniqueCounts[i]) / n
	}
}

// ApplyModel implements apply_model (§4.4): multiplies each category's
// probability by the model's positive-density ratio. Only the positive
// term is multiplied in; the negative term is computed but discarded,
// matching the current revision's apply_model semantics exactly.
func (e *ReadEntry) ApplyModel(sm *stats.StatsModel) {
	for i := range e.uniqueProportions {
		result := sm.Classify(i, e.uniqueProportions[i])
		e.probabilities[i] *= result.Pos
	}
}

// Classify applies the model then the two-category Classify decision
// mode (§4.4, §4.5).
func (e *ReadEntry) Classify(sm *stats.StatsModel) {
	e.ApplyModel(sm)
	e.callCategory(sm)
}

// Dehost applies the model then the Dehost decision mode, given the
// index of the host category (§4.5).
func (e *ReadEntry) Dehost(sm *stats.StatsModel, hostIndex int) {
	e.ApplyModel(sm)
	e.callHost(sm, hostIndex)
}

// gatesPass evaluates the shared G1-G3 gates (§4.5).
func (e *ReadEntry) gatesPass(sm *stats.StatsModel) bool {
	if e.MeanQuality < sm.MinQuality() {
		return false
	}
	if e.Length < sm.MinLength() {
		return false
	}
	if e.CompressionRatio < sm.MinCompression() {
		return false
	}
	return true
}

func saturatingDiff(a, b uint32) uint8 {
	if b >= a {
		return 0
	}
	diff := a - b
	if diff > 255 {
		return 255
	}
	return uint8(diff)
}

// callCategory implements call_category (§4.4, §4.5 Classify mode).
// Requires exactly two categories, matching the source's
// assert(probabilities_.size() == 2) (§9 open question: generalization
// beyond two categories is future work).
func (e *ReadEntry) callCategory(sm *stats.StatsModel) {
	if len(e.probabilities) != 2 {
		return
	}

	firstPos, secondPos := 0, 1
	if e.uniqueCounts[secondPos] > e.uniqueCounts[firstPos] {
		firstPos, secondPos = secondPos, firstPos
	}

	e.confidenceScore = saturatingDiff(e.uniqueCounts[firstPos], e.uniqueCounts[secondPos])

	if !e.gatesPass(sm) {
		return
	}

	first, second := e.probabilities[firstPos], e.probabilities[secondPos]
	if second == 0 && first > 0 {
		e.call = uint8(firstPos)
	} else if int(e.confidenceScore) > sm.ConfidenceThreshold() && first > second {
		e.call = uint8(firstPos)
	}

	firstCount, secondCount := e.counts[firstPos], e.counts[secondPos]
	if secondCount > firstCount || firstCount-secondCount < sm.MinHits() {
		e.call = None
	}

	firstProp, secondProp := e.proportions[firstPos], e.proportions[secondPos]
	if secondProp > firstProp || firstProp-secondProp < sm.MinProportionDifference() {
		e.call = None
	}
}

// callHost implements call_host (§4.5 Dehost mode). Only the lo-gated
// rule is implemented (no hi threshold).
func (e *ReadEntry) callHost(sm *stats.StatsModel, hostIndex int) {
	if len(e.probabilities) != 2 {
		return
	}
	otherIndex := 1 - hostIndex

	hostProp := e.uniqueProportions[hostIndex]
	otherProp := e.uniqueProportions[otherIndex]

	firstPos, secondPos := hostIndex, otherIndex
	if hostProp < otherProp {
		firstPos, secondPos = otherIndex, hostIndex
	}

	e.confidenceScore = saturatingDiff(e.uniqueCounts[firstPos], e.uniqueCounts[secondPos])
	if int(e.confidenceScore) < sm.ConfidenceThreshold() {
		return
	}
	if !e.gatesPass(sm) {
		return
	}

	if hostProp > otherProp && hostProp-otherProp > sm.MinProportionDifference() {
		e.call = uint8(hostIndex)
	} else if hostProp < sm.HostUniqueLoThreshold() && hostProp < otherProp && otherProp-hostProp > sm.MinProportionDifference() {
		e.call = uint8(otherIndex)
	}
}

// PrintAssignment formats one assignment line per §6's stdout
// contract: status, read_id, call_name, length, n_hashes,
// mean_quality, confidence, compression, then per-category blocks.
func (e *ReadEntry) PrintAssignment(summary *ibindex.InputSummary) string {
	status := "C"
	callName := ""
	if e.call == None {
		status = "U"
	} else {
		callName = summary.Categories()[e.call]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\t%s\t%s\t%d\t%d\t%.6f\t%d\t%.6f", status, e.ReadID, callName, e.Length, e.numHashes, e.MeanQuality, e.confidenceScore, e.CompressionRatio)

	categories := summary.Categories()
	for i, name := range categories {
		fmt.Fprintf(&sb, "\t%s:%d:%.6f:%.6f:%.6f", name, e.counts[i], e.proportions[i], e.uniqueProportions[i], e.probabilities[i])
	}
	return sb.String()
}

// DebugDump reproduces the original's print_result verbose dump: the
// per-hash max-bit bitstring for every category — useful for
// diagnosing bin-packing regressions. Nothing in the pipeline or the
// command-line tools calls it, so no verbosity level prints it.
func (e *ReadEntry) DebugDump(summary *ibindex.InputSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\t%d\t", e.ReadID, e.numHashes)
	for _, row := range e.maxBits {
		for _, b := range row {
			if b {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
		sb.WriteByte('\t')
	}
	return sb.String()
}
