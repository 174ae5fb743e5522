package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadJSONOverlaysIndexArgs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"WindowSize": 31, "KmerSize": 15, "Optimize": true}`), 0o644))

	a := DefaultIndexArgs()
	require.NoError(t, LoadJSON(path, &a))

	assert.Equal(t, 31, a.WindowSize)
	assert.Equal(t, 15, a.KmerSize)
	assert.True(t, a.Optimize)
	// fields absent from the file keep their defaults
	assert.Equal(t, 3, a.NumHash)
}

func TestLoadTOMLOverlaysClassifyArgs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.toml")
	contents := "ChunkSize = 50\nDistribution = \"beta\"\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	a := DefaultClassifyArgs()
	require.NoError(t, LoadTOML(path, &a))

	assert.Equal(t, 50, a.ChunkSize)
	assert.Equal(t, "beta", a.Distribution)
}

func TestIndexArgsValidateRejectsBadWindowKmer(t *testing.T) {
	a := DefaultIndexArgs()
	a.Input = "x.tsv"
	a.OutputPrefix = "out"
	a.KmerSize = a.WindowSize + 1
	assert.Error(t, a.Validate())
}

func TestClassifyArgsValidateRequiresHostForDehost(t *testing.T) {
	a := DefaultClassifyArgs()
	a.ReadFile1 = "reads.fastq"
	a.DBPath = "db"
	assert.Error(t, a.Validate(true))
	a.HostCategory = "host"
	assert.NoError(t, a.Validate(true))
}
