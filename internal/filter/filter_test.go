package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmplaceAndBulkContains(t *testing.T) {
	f, err := New(3, 3, 4096)
	require.NoError(t, err)

	require.NoError(t, f.Emplace(12345, 0))
	require.NoError(t, f.Emplace(999999, 1))

	agent := f.NewAgent()
	row := agent.BulkContains(12345)
	assert.True(t, row[0], "bin 0 should report membership for the hash it was given")

	row2 := agent.BulkContains(999999)
	assert.True(t, row2[1], "bin 1 should report membership for the hash it was given")
}

func TestEmplaceIsIdempotent(t *testing.T) {
	f, err := New(1, 2, 2048)
	require.NoError(t, err)

	require.NoError(t, f.Emplace(42, 0))
	require.NoError(t, f.Emplace(42, 0))

	agent := f.NewAgent()
	row := agent.BulkContains(42)
	assert.True(t, row[0])
}

func TestEmplaceRejectsOutOfRangeBin(t *testing.T) {
	f, err := New(2, 2, 1024)
	require.NoError(t, err)
	err = f.Emplace(1, 5)
	assert.Error(t, err)
}

func TestSizeBitsClamps(t *testing.T) {
	m, clamped, err := SizeBits(1_000_000, 3, 0.001, 1024)
	require.NoError(t, err)
	assert.True(t, clamped)
	assert.Equal(t, uint64(1024), m)
}

func TestSizeBitsNoClampWhenWithinCap(t *testing.T) {
	m, clamped, err := SizeBits(10, 3, 0.01, 1<<32)
	require.NoError(t, err)
	assert.False(t, clamped)
	assert.Greater(t, m, uint64(0))
}

func TestSizeBitsRejectsInvalidFPR(t *testing.T) {
	_, _, err := SizeBits(10, 3, 0, 1<<32)
	assert.Error(t, err)
	_, _, err = SizeBits(10, 3, 1, 1<<32)
	assert.Error(t, err)
	_, _, err = SizeBits(10, 0, 0.01, 1<<32)
	assert.Error(t, err)
}

// No false negatives (spec P3): every hash emplaced into a bin must
// report membership when queried against that same bin.
func TestNoFalseNegatives(t *testing.T) {
	f, err := New(4, 3, 8192)
	require.NoError(t, err)

	hashes := []uint64{1, 2, 3, 100, 200, 300, 987654321}
	for _, h := range hashes {
		require.NoError(t, f.Emplace(h, 2))
	}

	agent := f.NewAgent()
	for _, h := range hashes {
		row := agent.BulkContains(h)
		assert.True(t, row[2], "hash %d must report membership in the bin it was inserted into", h)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	f, err := New(3, 2, 512)
	require.NoError(t, err)
	require.NoError(t, f.Emplace(7, 0))
	require.NoError(t, f.Emplace(99, 2))

	data, err := f.MarshalBits()
	require.NoError(t, err)

	f2, err := New(3, 2, 512)
	require.NoError(t, err)
	require.NoError(t, f2.UnmarshalBits(data))

	a1 := f.NewAgent()
	a2 := f2.NewAgent()
	assert.Equal(t, a1.BulkContains(7), a2.BulkContains(7))
	assert.Equal(t, a1.BulkContains(99), a2.BulkContains(99))
}
