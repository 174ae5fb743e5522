// Package filter implements the Interleaved Membership Filter (IMF):
// a bin-partitioned approximate membership structure whose query
// returns, for a single hash, a bit over every bin in one pass. The
// backing store is a single bitarray.BitArray sized B*m_bits, indexed
// so that each bin's row is interleaved with its neighbors: a single
// hash query touches every bin's bit in adjacent memory rather than
// probing B separate bitarrays.
package filter

import (
	"fmt"
	"math"

	"github.com/golang-collections/go-datastructures/bitarray"
)

// None is the invalid category/bin sentinel, matching spec §3's "invalid" byte.
const None = 0xFF

// Filter is the bin-partitioned approximate membership structure
// (§4.1). B is the bin count, KHash the number of hash functions per
// row, MBits the number of bits per bin-row.
type Filter struct {
	B     int
	KHash int
	MBits uint64

	bits bitarray.BitArray
}

// BitRow is the B-bit membership vector returned for one hash query.
// Bit b is set if the hash may be a member of bin b.
type BitRow []bool

// New allocates a Filter with B bins, k_hash hash functions, and
// m_bits bits per bin-row. It returns an error (never panics) when b
// is outside (0,255] or k_hash or m_bits is zero; sizing m_bits from a
// false positive rate is SizeBits's job, done by the caller.
func New(b, kHash int, mBits uint64) (*Filter, error) {
	if b <= 0 || b > 255 {
		return nil, fmt.Errorf("filter: invalid bin count %d: must be in (0,255]", b)
	}
	if kHash <= 0 {
		return nil, fmt.Errorf("filter: invalid config: k_hash must be > 0")
	}
	if mBits == 0 {
		return nil, fmt.Errorf("filter: invalid config: m_bits must be > 0")
	}
	return &Filter{
		B:     b,
		KHash: kHash,
		MBits: mBits,
		bits:  bitarray.NewBitArray(mBits * uint64(b)),
	}, nil
}

// SizeBits computes the per-bin bit count for target fprMax and worst-
// case bucket hash count n, per §4.1's formula, clamping to bitsCap and
// reporting whether clamping occurred.
//
//	m = ceil(-n*k_hash / ln(1 - exp(ln(fpr_max)/k_hash)))
func SizeBits(n uint64, kHash int, fprMax float64, bitsCap uint64) (m uint64, clamped bool, err error) {
	if fprMax <= 0 || fprMax >= 1 {
		return 0, false, fmt.Errorf("filter: invalid config: fpr_max must be in (0,1), got %v", fprMax)
	}
	if kHash <= 0 {
		return 0, false, fmt.Errorf("filter: invalid config: k_hash must be > 0")
	}
	if n == 0 {
		n = 1
	}
	kh := float64(kHash)
	denom := math.Log(1 - math.Exp(math.Log(fprMax)/kh))
	raw := -float64(n) * kh / denom
	m = uint64(math.Ceil(raw))
	if m == 0 {
		m = 1
	}
	if bitsCap > 0 && m > bitsCap {
		return bitsCap, true, nil
	}
	return m, false, nil
}

// splitHash derives KHash independent bit positions within [0, MBits)
// from one u64 minimizer hash via Kirsch-Mitzenmacher double hashing,
// standing in for k_hash independently seeded rolling hashes.
func (f *Filter) splitHash(h uint64, positions []uint64) {
	h1 := h
	h2 := (h >> 33) | (h << 31)
	for i := 0; i < f.KHash; i++ {
		positions[i] = (h1 + uint64(i)*h2) % f.MBits
	}
}

// index maps (bit position within a row, bin) to the interleaved
// global bit index: bin rows are interleaved at row granularity, so
// position p's bits for every bin live contiguously at p*B+bin.
func (f *Filter) index(pos uint64, bin int) uint64 {
	return pos*uint64(f.B) + uint64(bin)
}

// Emplace adds hash h to bin's filter row. Idempotent: setting an
// already-set bit is a no-op.
func (f *Filter) Emplace(h uint64, bin int) error {
	if bin < 0 || bin >= f.B {
		return fmt.Errorf("filter: bin %d out of range [0,%d)", bin, f.B)
	}
	positions := make([]uint64, f.KHash)
	f.splitHash(h, positions)
	for _, p := range positions {
		if err := f.bits.SetBit(f.index(p, bin)); err != nil {
			return fmt.Errorf("filter: emplace: %w", err)
		}
	}
	return nil
}

// Agent is a cheap-to-clone, single-thread query handle (§4.1,
// §9 "ownership of the filter"): it never copies the backing bitarray,
// only holds a reference plus private scratch space for splitHash
// results, so concurrent workers each get their own Agent without
// contention.
type Agent struct {
	f         *Filter
	positions []uint64
	row       BitRow
}

// NewAgent returns a fresh query handle over f. Cloning the filter's
// agent is the whole concurrency story: each worker goroutine owns one.
func (f *Filter) NewAgent() *Agent {
	return &Agent{
		f:         f,
		positions: make([]uint64, f.KHash),
		row:       make(BitRow, f.B),
	}
}

// BulkContains returns the B-bit membership row for hash h: bit b is
// true iff every one of the k_hash derived positions is set in bin b's
// row. Membership cannot fail at query time (§4.1).
func (a *Agent) BulkContains(h uint64) BitRow {
	a.f.splitHash(h, a.positions)
	for b := 0; b < a.f.B; b++ {
		set := true
		for _, p := range a.positions {
			ok, err := a.f.bits.GetBit(a.f.index(p, b))
			if err != nil || !ok {
				set = false
				break
			}
		}
		a.row[b] = set
	}
	out := make(BitRow, a.f.B)
	copy(out, a.row)
	return out
}

// CompressedView is the immutable, query-only representation used
// post-build (§4.1). The in-memory bitarray.BitArray already is a
// packed word representation; CompressedView simply freezes a Filter
// value and exposes no mutation methods, the way Index.idx embeds the
// filter read-only after load.
type CompressedView struct {
	filter *Filter
}

// Compress wraps f for read-only querying after the index build
// completes. The view shares f's backing bitarray rather than copying
// it, so further Emplace calls on the original Filter remain legal and
// are visible to every agent, including agents made from the view.
func (f *Filter) Compress() *CompressedView {
	return &CompressedView{filter: f}
}

func (c *CompressedView) NewAgent() *Agent { return c.filter.NewAgent() }
func (c *CompressedView) B() int           { return c.filter.B }
func (c *CompressedView) KHash() int       { return c.filter.KHash }
func (c *CompressedView) MBits() uint64    { return c.filter.MBits }

// Filter exposes the underlying mutable Filter for persistence code
// that needs to walk/serialize the raw bits.
func (c *CompressedView) Filter() *Filter { return c.filter }

// MarshalBits packs the filter's bits into a byte slice, 8 bits per
// byte, in global-index order. bitarray.BitArray has no exported word
// view, so the IndexBuilder's persistence step (C6) walks bit-by-bit
// once at save time; this only runs once per index build, not per
// query, so the cost is acceptable.
func (f *Filter) MarshalBits() ([]byte, error) {
	total := f.MBits * uint64(f.B)
	out := make([]byte, (total+7)/8)
	for i := uint64(0); i < total; i++ {
		ok, err := f.bits.GetBit(i)
		if err != nil {
			return nil, fmt.Errorf("filter: marshal: %w", err)
		}
		if ok {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out, nil
}

// UnmarshalBits restores a Filter's bits from the byte slice MarshalBits
// produced, given the same (B, KHash, MBits) the Filter was allocated
// with.
func (f *Filter) UnmarshalBits(data []byte) error {
	total := f.MBits * uint64(f.B)
	if uint64(len(data)) < (total+7)/8 {
		return fmt.Errorf("filter: unmarshal: short buffer (have %d bytes, need %d)", len(data), (total+7)/8)
	}
	for i := uint64(0); i < total; i++ {
		if data[i/8]&(1<<(i%8)) != 0 {
			if err := f.bits.SetBit(i); err != nil {
				return fmt.Errorf("filter: unmarshal: %w", err)
			}
		}
	}
	return nil
}
