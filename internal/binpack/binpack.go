// Package binpack implements the greedy bucket-packing optimizer (C5):
// merging small same-category bins into buckets to reduce the filter's
// row width without losing category resolution.
package binpack

import "sort"

// Bin is one input bin: its original index, owning category, and hash
// count (the cardinality of its hash set, per §4.2's "hashes per
// bin").
type Bin struct {
	Index    int
	Category string
	NumHash  uint64
	NumReads uint64
}

// Bucket is a group of same-category bins that will share one filter
// row at query time.
type Bucket struct {
	Category string
	Bins     []int // original bin indices, in the order they were packed
	NumHash  uint64
	NumReads uint64
}

// Pack runs the BinPacker (§4.2). When optimize is false it returns
// the identity packing: one bucket per bin, in input order.
func Pack(bins []Bin, optimize bool) []Bucket {
	if !optimize {
		out := make([]Bucket, len(bins))
		for i, b := range bins {
			out[i] = Bucket{
				Category: b.Category,
				Bins:     []int{b.Index},
				NumHash:  b.NumHash,
				NumReads: b.NumReads,
			}
		}
		return out
	}
	return packOptimized(bins)
}

func packOptimized(bins []Bin) []Bucket {
	if len(bins) == 0 {
		return nil
	}

	var maxHash uint64
	for _, b := range bins {
		if b.NumHash > maxHash {
			maxHash = b.NumHash
		}
	}
	cap := maxHash / 2
	if cap == 0 {
		cap = 1
	}

	sorted := make([]Bin, len(bins))
	copy(sorted, bins)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].NumHash < sorted[j].NumHash
	})

	var buckets []Bucket
	open := make(map[string]int) // category -> index into buckets of its open bucket

	for _, b := range sorted {
		if idx, ok := open[b.Category]; ok {
			bucket := &buckets[idx]
			// Invariant: an "open" bucket is only reused while
			// cur+n fits within cap; once full it is no longer
			// tracked as open for this category.
			if bucket.NumHash+b.NumHash <= cap {
				bucket.Bins = append(bucket.Bins, b.Index)
				bucket.NumHash += b.NumHash
				bucket.NumReads += b.NumReads
				continue
			}
			delete(open, b.Category)
		}

		buckets = append(buckets, Bucket{
			Category: b.Category,
			Bins:     []int{b.Index},
			NumHash:  b.NumHash,
			NumReads: b.NumReads,
		})
		newIdx := len(buckets) - 1
		if buckets[newIdx].NumHash < cap {
			open[b.Category] = newIdx
		}
	}

	return buckets
}
