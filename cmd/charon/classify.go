package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/rmcolq/charon/internal/config"
	"github.com/rmcolq/charon/internal/ibindex"
	"github.com/rmcolq/charon/internal/minhash"
	"github.com/rmcolq/charon/internal/pipeline"
	"github.com/rmcolq/charon/internal/seqio"
	"github.com/rmcolq/charon/internal/stats"
)

func runClassify(args []string) error {
	return runClassifyOrDehost(args, false)
}

func runDehost(args []string) error {
	return runClassifyOrDehost(args, true)
}

// runClassifyOrDehost implements both subcommands, which share every
// flag except dehost's two extra thresholds and its required --host
// category (§6).
func runClassifyOrDehost(args []string, dehost bool) error {
	name := "classify"
	if dehost {
		name = "dehost"
	}
	a := config.DefaultClassifyArgs()
	if dehost {
		a.Distribution = "beta"
	}
	if cfgPath := scanConfigFlag(args); cfgPath != "" {
		if err := loadConfigOverlay(cfgPath, &a); err != nil {
			return err
		}
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.String("config", "", "TOML or JSON file of defaults, overridden by any flag given alongside it")

	dbPath := fs.String("db", "", "index path (.idx appended if missing)")
	chunkSize := fs.Int("chunk_size", a.ChunkSize, "records processed per barrier chunk")
	extractCategory := fs.String("e", "", "category to extract (\"all\" or a specific category)")
	extractPrefix := fs.String("p", "", "output prefix for extracted reads")
	dist := fs.String("d", a.Distribution, "distribution kind: gamma, beta, or (dehost-only) kde")
	confidence := fs.Int("confidence", a.ConfidenceThreshold, "minimum confidence score to call a category")
	minHits := fs.Uint("min_hits", uint(a.MinHits), "minimum count-gap between winner and runner-up")
	minLength := fs.Uint("min_length", uint(a.MinLength), "reject reads shorter than this")
	minDiff := fs.Float64("min_diff", float64(a.MinProportionDiff), "minimum proportion gap to call a category")
	minQuality := fs.Float64("min_quality", float64(a.MinQuality), "reject reads below this mean quality")
	minCompression := fs.Float64("min_compression", float64(a.MinCompression), "reject reads below this compression ratio")
	numReadsToFit := fs.Int("num_reads_to_fit", a.NumReadsToFit, "training buffer size per category")
	loHiThreshold := fs.Float64("lo_hi_threshold", float64(a.LoHiThreshold), "training-candidate ambiguity threshold")
	threads := fs.Int("t", a.Threads, "worker threads")
	logFile := fs.String("log", "charon.log", "log file path")
	verbosity := fs.Int("v", 0, "verbosity")

	var hostCategory *string
	var hostUniqueLo *float64
	var minProbDiff *float64
	if dehost {
		hostCategory = fs.String("host", "", "host category name to strip out")
		hostUniqueLo = fs.Float64("host_unique_prop_lo_threshold", float64(a.HostUniqueLoThreshold), "host unique-proportion floor below which the other category wins")
		minProbDiff = fs.Float64("min_probability_diff", 0, "reserved: minimum probability gap (unused by the lo-gated rule)")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	_ = minProbDiff

	if fs.NArg() < 1 {
		return fmt.Errorf("%s: missing <reads> argument", name)
	}
	a.ReadFile1 = fs.Arg(0)
	if fs.NArg() >= 2 {
		a.ReadFile2 = fs.Arg(1)
	}
	a.DBPath = *dbPath
	a.ChunkSize = *chunkSize
	a.ExtractCategory = *extractCategory
	a.ExtractPrefix = *extractPrefix
	a.Distribution = *dist
	a.ConfidenceThreshold = *confidence
	a.MinHits = uint32(*minHits)
	a.MinLength = uint32(*minLength)
	a.MinProportionDiff = float32(*minDiff)
	a.MinQuality = float32(*minQuality)
	a.MinCompression = float32(*minCompression)
	a.NumReadsToFit = *numReadsToFit
	a.LoHiThreshold = float32(*loHiThreshold)
	a.Threads = *threads
	a.Verbosity = *verbosity
	if dehost {
		a.HostCategory = *hostCategory
		a.HostUniqueLoThreshold = float32(*hostUniqueLo)
	}

	if err := a.Validate(dehost); err != nil {
		return err
	}

	logger, logFh, err := setupLog(*logFile, a.Verbosity)
	if err != nil {
		return err
	}
	defer logFh.Close()

	dbPathResolved := a.DBPath
	if !hasIdxSuffix(dbPathResolved) {
		dbPathResolved += ".idx"
	}
	idx, err := ibindex.Load(dbPathResolved)
	if err != nil {
		return fmt.Errorf("%s: load db: %w", name, err)
	}
	logger.Printf("%s: loaded %s (%d categories, w=%d k=%d)", name, dbPathResolved, len(idx.Summary.Categories()), idx.WindowSize, idx.KmerSize)

	hasher, err := minhash.New(idx.WindowSize, idx.KmerSize, defaultHasherSeed)
	if err != nil {
		return err
	}

	numCategories := len(idx.Summary.Categories())
	sm := stats.New(stats.Config{
		NumCategories:         numCategories,
		Distribution:          normalizeDist(a.Distribution),
		LoHiThreshold:         a.LoHiThreshold,
		ConfidenceThreshold:   a.ConfidenceThreshold,
		MinHits:               a.MinHits,
		NumReadsToFit:         a.NumReadsToFit,
		MinQuality:            a.MinQuality,
		MinLength:             a.MinLength,
		MinCompression:        a.MinCompression,
		MinProportionDiff:     a.MinProportionDiff,
		HostUniqueLoThreshold: a.HostUniqueLoThreshold,
		Logger:                logger,
	})

	mode := pipeline.ModeClassify
	hostIndex := 0
	if dehost {
		mode = pipeline.ModeDehost
		hi, ok := idx.Summary.CategoryIndex(a.HostCategory)
		if !ok {
			return fmt.Errorf("dehost: host category %q is not one of %v", a.HostCategory, idx.Summary.Categories())
		}
		hostIndex = hi
	}

	if a.ExtractCategory != "" && a.ExtractCategory != "all" {
		if _, ok := idx.Summary.CategoryIndex(a.ExtractCategory); !ok {
			return fmt.Errorf("%s: invalid config: extract category %q is not one of %v (or \"all\")", name, a.ExtractCategory, idx.Summary.Categories())
		}
	}

	out := bufio.NewWriterSize(os.Stdout, 1<<16)
	defer out.Flush()

	p, err := pipeline.New(pipeline.Config{
		Mode:            mode,
		HostIndex:       hostIndex,
		ChunkSize:       a.ChunkSize,
		Threads:         a.Threads,
		ExtractCategory: a.ExtractCategory,
		ExtractPrefix:   a.ExtractPrefix,
		Logger:          logger,
		Out:             out,
	}, idx.Summary, sm, idx.Filter, hasher)
	if err != nil {
		return err
	}

	if a.ReadFile2 != "" {
		r1, err := seqio.Open(a.ReadFile1)
		if err != nil {
			return err
		}
		defer r1.Close()
		r2, err := seqio.Open(a.ReadFile2)
		if err != nil {
			return err
		}
		defer r2.Close()
		if err := p.ProcessPaired(r1, r2); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	} else {
		r1, err := seqio.Open(a.ReadFile1)
		if err != nil {
			return err
		}
		defer r1.Close()
		if err := p.ProcessSingle(r1); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return p.Complete()
}

func hasIdxSuffix(p string) bool {
	return len(p) >= 4 && p[len(p)-4:] == ".idx"
}

// normalizeDist treats dehost's "kde" placeholder as beta, matching
// §6's "treated as Beta unless implemented".
func normalizeDist(d string) string {
	if d == "kde" {
		return "beta"
	}
	return d
}
