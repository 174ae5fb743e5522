// Package config holds the argument structs for charon's three
// subcommands. Fields can be populated from command-line flags or from
// a JSON or TOML configuration file that supplies defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// IndexArgs controls the `charon index` subcommand (§6).
type IndexArgs struct {
	// Input is the TSV of (path, category) rows.
	Input string

	// WindowSize and KmerSize parameterize the minimizer scheme. Must
	// satisfy WindowSize >= KmerSize > 0.
	WindowSize int
	KmerSize   int

	// OutputPrefix names the persisted index: <prefix>.idx
	OutputPrefix string

	// TempDir holds per-bin hash spill files. Defaults to <input>.tmp_idx.
	TempDir string

	// Threads bounds the worker pool used while hashing input files.
	Threads int

	// Optimize engages the BinPacker (§4.2).
	Optimize bool

	// FPRMax is the target false positive rate used to size the filter.
	FPRMax float64

	// BitsCap clamps the per-bin-row bit count (§4.1).
	BitsCap uint64

	// NumHash is k_hash, the number of hash functions per row.
	NumHash int

	Verbosity int
}

// DefaultIndexArgs returns an IndexArgs populated with sane defaults
// for every field flags don't require the caller to set explicitly.
func DefaultIndexArgs() IndexArgs {
	return IndexArgs{
		WindowSize: 41,
		KmerSize:   19,
		Threads:    1,
		FPRMax:     0.01,
		BitsCap:    1 << 32,
		NumHash:    3,
	}
}

// Validate checks the invariants §6 and §4.1 require before building.
func (a IndexArgs) Validate() error {
	if a.Input == "" {
		return fmt.Errorf("config: input TSV is required")
	}
	if a.WindowSize < a.KmerSize || a.KmerSize <= 0 {
		return fmt.Errorf("config: invalid window/kmer sizes (w=%d k=%d): require w >= k > 0", a.WindowSize, a.KmerSize)
	}
	if a.OutputPrefix == "" {
		return fmt.Errorf("config: output prefix is required")
	}
	if a.FPRMax <= 0 || a.FPRMax >= 1 {
		return fmt.Errorf("config: fpr_max must be in (0,1), got %v", a.FPRMax)
	}
	if a.NumHash <= 0 {
		return fmt.Errorf("config: k_hash must be > 0")
	}
	if a.Threads <= 0 {
		a.Threads = 1
	}
	return nil
}

// ClassifyArgs controls both `charon classify` and `charon dehost`; the
// dehost-only fields are zero-valued/ignored for classify.
type ClassifyArgs struct {
	ReadFile1 string
	ReadFile2 string // optional, enables paired mode

	DBPath    string
	ChunkSize int
	Threads   int

	// ExtractCategory is either "all", a specific category name, or
	// empty (no extraction).
	ExtractCategory string
	ExtractPrefix   string

	// Distribution selects "gamma" or "beta" (or, for dehost, "kde"
	// which is treated as beta per spec §6).
	Distribution string

	ConfidenceThreshold int
	MinHits             uint32
	MinLength           uint32
	MinProportionDiff   float32
	MinQuality          float32
	MinCompression      float32

	NumReadsToFit  int
	LoHiThreshold  float32

	// HostCategory and the dehost-only threshold; ignored by classify.
	HostCategory             string
	HostUniqueLoThreshold    float32

	Verbosity int
}

func DefaultClassifyArgs() ClassifyArgs {
	return ClassifyArgs{
		ChunkSize:             100,
		Threads:               1,
		Distribution:          "gamma",
		ConfidenceThreshold:   10,
		MinHits:               1,
		MinLength:             1,
		MinProportionDiff:     0.05,
		MinQuality:            0,
		MinCompression:        0,
		NumReadsToFit:         1000,
		LoHiThreshold:         0.05,
		HostUniqueLoThreshold: 0.01,
	}
}

func (a ClassifyArgs) Validate(dehost bool) error {
	if a.ReadFile1 == "" {
		return fmt.Errorf("config: at least one read file is required")
	}
	if a.DBPath == "" {
		return fmt.Errorf("config: --db is required")
	}
	if a.ChunkSize <= 0 {
		return fmt.Errorf("config: chunk_size must be > 0")
	}
	if a.Distribution != "gamma" && a.Distribution != "beta" && !(dehost && a.Distribution == "kde") {
		return fmt.Errorf("config: unknown distribution %q", a.Distribution)
	}
	if dehost && a.HostCategory == "" {
		return fmt.Errorf("config: dehost requires a host category")
	}
	return nil
}

// LoadJSON overlays a JSON configuration file onto dst. It mirrors
// utils.ReadConfig's decode-in-place behavior.
func LoadJSON(path string, dst any) error {
	fid, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer fid.Close()
	dec := json.NewDecoder(fid)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

// LoadTOML overlays a TOML configuration file onto dst, for sites that
// keep their run parameters alongside other TOML-based tooling config
// rather than JSON.
func LoadTOML(path string, dst any) error {
	if _, err := toml.DecodeFile(path, dst); err != nil {
		return fmt.Errorf("config: decode TOML %s: %w", path, err)
	}
	return nil
}
