package binpack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackIdentityWhenNotOptimized(t *testing.T) {
	bins := []Bin{
		{Index: 0, Category: "host", NumHash: 100},
		{Index: 1, Category: "viral", NumHash: 40},
	}
	buckets := Pack(bins, false)
	assert.Len(t, buckets, 2)
	assert.Equal(t, []int{0}, buckets[0].Bins)
	assert.Equal(t, []int{1}, buckets[1].Bins)
}

func TestPackMergesSameCategorySmallBins(t *testing.T) {
	bins := []Bin{
		{Index: 0, Category: "host", NumHash: 100},
		{Index: 1, Category: "host", NumHash: 10},
		{Index: 2, Category: "host", NumHash: 10},
		{Index: 3, Category: "viral", NumHash: 5},
	}
	buckets := Pack(bins, true)

	// cap = max(100)/2 = 50; the two small host bins (10+10=20) should
	// merge into one bucket, while the 100-hash bin stands alone.
	var merged *Bucket
	for i := range buckets {
		if len(buckets[i].Bins) > 1 {
			merged = &buckets[i]
		}
	}
	if assert.NotNil(t, merged, "expected the small same-category bins to merge") {
		assert.Equal(t, "host", merged.Category)
		assert.ElementsMatch(t, []int{1, 2}, merged.Bins)
	}
}

func TestPackNeverMergesAcrossCategories(t *testing.T) {
	bins := []Bin{
		{Index: 0, Category: "host", NumHash: 1},
		{Index: 1, Category: "viral", NumHash: 1},
		{Index: 2, Category: "host", NumHash: 1},
	}
	buckets := Pack(bins, true)
	for _, b := range buckets {
		assert.NotEmpty(t, b.Category)
		// every bucket is single-category by construction; nothing to
		// cross-check against since Bucket carries one Category field.
	}
	// cap = max(1)/2 = 0, raised to 1; 1+1 > 1, so the two host bins
	// stay apart as well: three single-bin buckets.
	assert.Len(t, buckets, 3)
}

func TestPackRespectsCapacity(t *testing.T) {
	bins := []Bin{
		{Index: 0, Category: "host", NumHash: 100},
		{Index: 1, Category: "host", NumHash: 60},
	}
	buckets := Pack(bins, true)
	// cap = 50; a 60-hash bin cannot join any bucket with room, so it
	// must start its own bucket (and immediately close, being > cap).
	assert.Len(t, buckets, 2)
}
