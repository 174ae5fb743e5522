package ibindex

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *log.Logger {
	return log.New(os.Stderr, "", 0)
}

func TestParseInputTSVSkipsMalformedRows(t *testing.T) {
	dir := t.TempDir()
	tsvPath := filepath.Join(dir, "input.tsv")
	require.NoError(t, os.WriteFile(tsvPath, []byte("onlyonefield\n/a/host.fa\thost\n/a/viral.fa\tviral\n"), 0o644))

	rows, err := ParseInputTSV(tsvPath, discardLogger())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "host", rows[0].Category)
	assert.Equal(t, "viral", rows[1].Category)
}

func TestHashStoreDedupesAndRoundTrips(t *testing.T) {
	dir := t.TempDir()
	store, err := NewHashStore(dir, 0, 10)
	require.NoError(t, err)

	added, err := store.Add(42)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.Add(42)
	require.NoError(t, err)
	assert.False(t, added, "re-adding the same hash must not duplicate it")

	added, err = store.Add(7)
	require.NoError(t, err)
	assert.True(t, added)

	require.NoError(t, store.Close())

	hashes, err := LoadHashes(dir, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{42, 7}, hashes)
}

func TestBuildTwoBinIndex(t *testing.T) {
	rows := []Row{
		{Path: "host.fa", Category: "host"},
		{Path: "viral.fa", Category: "viral"},
	}

	hashOf := func(path string) (uint64, []uint64, error) {
		if path == "host.fa" {
			return 1, []uint64{1, 2, 3, 4, 5}, nil
		}
		return 1, []uint64{100, 101, 102}, nil
	}

	cfg := BuilderConfig{
		WindowSize: 41,
		KmerSize:   19,
		Threads:    2,
		FPRMax:     0.01,
		BitsCap:    1 << 20,
		NumHash:    3,
		TempDir:    filepath.Join(t.TempDir(), "tmp_idx"),
		Logger:     discardLogger(),
	}

	idx, err := Build(rows, hashOf, cfg)
	require.NoError(t, err)

	assert.EqualValues(t, 2, idx.Summary.NumBins)
	assert.ElementsMatch(t, []string{"host", "viral"}, idx.Summary.Categories())

	// No false negatives: every emplaced hash must report membership
	// in its own bin (P3).
	agent := idx.Filter.NewAgent()
	hostBin := idx.Summary.BinsForCategory("host")[0]
	row := agent.BulkContains(1)
	assert.True(t, row[hostBin])
}

func TestSaveLoadRoundTrip(t *testing.T) {
	rows := []Row{
		{Path: "host.fa", Category: "host"},
		{Path: "viral.fa", Category: "viral"},
	}
	hashOf := func(path string) (uint64, []uint64, error) {
		if path == "host.fa" {
			return 1, []uint64{1, 2, 3}, nil
		}
		return 1, []uint64{500, 501}, nil
	}
	cfg := BuilderConfig{
		WindowSize: 41,
		KmerSize:   19,
		Threads:    1,
		FPRMax:     0.01,
		BitsCap:    1 << 20,
		NumHash:    2,
		TempDir:    filepath.Join(t.TempDir(), "tmp_idx"),
		Logger:     discardLogger(),
	}
	idx, err := Build(rows, hashOf, cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.idx")
	require.NoError(t, Save(idx, path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, idx.WindowSize, loaded.WindowSize)
	assert.Equal(t, idx.KmerSize, loaded.KmerSize)
	assert.Equal(t, idx.Summary.NumBins, loaded.Summary.NumBins)

	a1 := idx.Filter.NewAgent()
	a2 := loaded.Filter.NewAgent()
	assert.Equal(t, a1.BulkContains(1), a2.BulkContains(1))
	assert.Equal(t, a1.BulkContains(500), a2.BulkContains(500))
}
