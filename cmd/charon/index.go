package main

import (
	"flag"
	"fmt"

	"github.com/rmcolq/charon/internal/config"
	"github.com/rmcolq/charon/internal/ibindex"
	"github.com/rmcolq/charon/internal/minhash"
	"github.com/rmcolq/charon/internal/seqio"
)

func runIndex(args []string) error {
	a := config.DefaultIndexArgs()
	if cfgPath := scanConfigFlag(args); cfgPath != "" {
		if err := loadConfigOverlay(cfgPath, &a); err != nil {
			return err
		}
	}

	fs := flag.NewFlagSet("index", flag.ExitOnError)
	fs.String("config", "", "TOML or JSON file of defaults, overridden by any flag given alongside it")

	w := fs.Int("w", a.WindowSize, "window size")
	k := fs.Int("k", a.KmerSize, "kmer size")
	prefix := fs.String("p", "", "output prefix (writes <prefix>.idx)")
	temp := fs.String("temp", "", "temp directory (default <input>.tmp_idx)")
	threads := fs.Int("t", a.Threads, "worker threads")
	optimize := fs.Bool("optimize", false, "engage bin packing")
	fprMax := fs.Float64("fpr_max", a.FPRMax, "target false positive rate")
	bitsCap := fs.Uint64("bits_cap", a.BitsCap, "per-bin bit count cap")
	numHash := fs.Int("num_hash", a.NumHash, "k_hash, hash functions per row")
	logFile := fs.String("log", "charon.log", "log file path")
	verbosity := fs.Int("v", 0, "verbosity (repeatable in spirit; integer here)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("index: missing <input> TSV argument")
	}
	a.Input = fs.Arg(0)
	a.WindowSize, a.KmerSize = *w, *k
	a.OutputPrefix = *prefix
	a.TempDir = *temp
	a.Threads = *threads
	a.Optimize = *optimize
	a.FPRMax = *fprMax
	a.BitsCap = *bitsCap
	a.NumHash = *numHash
	a.Verbosity = *verbosity

	if err := a.Validate(); err != nil {
		return err
	}
	if a.TempDir == "" {
		a.TempDir = a.Input + ".tmp_idx"
	}

	logger, logFh, err := setupLog(*logFile, a.Verbosity)
	if err != nil {
		return err
	}
	defer logFh.Close()

	logger.Printf("index: input=%s prefix=%s w=%d k=%d threads=%d optimize=%v", a.Input, a.OutputPrefix, a.WindowSize, a.KmerSize, a.Threads, a.Optimize)

	rows, err := ibindex.ParseInputTSV(a.Input, logger)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("index: no usable rows in %s", a.Input)
	}

	hasher, err := minhash.New(a.WindowSize, a.KmerSize, defaultHasherSeed)
	if err != nil {
		return err
	}
	hashOf := ibindex.HasherFromMinhash(hasher, openRecordSeqs)

	idx, err := ibindex.Build(rows, hashOf, ibindex.BuilderConfig{
		WindowSize: a.WindowSize,
		KmerSize:   a.KmerSize,
		Threads:    a.Threads,
		Optimize:   a.Optimize,
		FPRMax:     a.FPRMax,
		BitsCap:    a.BitsCap,
		NumHash:    a.NumHash,
		TempDir:    a.TempDir,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("index: build: %w", err)
	}

	outPath := a.OutputPrefix + ".idx"
	if err := ibindex.Save(idx, outPath); err != nil {
		return fmt.Errorf("index: save: %w", err)
	}
	logger.Printf("index: wrote %s (%d bins, %d bits/row)", outPath, idx.Filter.B, idx.Filter.MBits)
	return nil
}

// defaultHasherSeed fixes the minimizer hash table so that index builds
// are reproducible across runs; a future flag could expose it, but no
// caller has needed one yet.
const defaultHasherSeed = 0x63686172 // "char"

// openRecordSeqs adapts a seqio.Reader into the plain sequence-only
// iterator ibindex.HasherFromMinhash expects, keeping ibindex itself
// free of any FASTA/FASTQ dependency.
func openRecordSeqs(path string) (func() ([]byte, bool, error), error) {
	r, err := seqio.Open(path)
	if err != nil {
		return nil, err
	}
	return func() ([]byte, bool, error) {
		rec, ok, err := r.Next()
		if err != nil || !ok {
			if cerr := r.Close(); cerr != nil && err == nil {
				err = cerr
			}
			return nil, ok, err
		}
		return []byte(rec.Sequence), true, nil
	}, nil
}
