package ibindex

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rmcolq/charon/internal/binpack"
	"github.com/rmcolq/charon/internal/filter"
	"github.com/rmcolq/charon/internal/minhash"
)

// BuilderConfig carries everything IndexBuilder needs beyond the raw
// input TSV; it mirrors the relevant fields of config.IndexArgs
// without importing the config package, keeping ibindex independent
// of the CLI layer: hot loops here never import a CLI-facing config
// type directly.
type BuilderConfig struct {
	WindowSize int
	KmerSize   int
	Threads    int
	Optimize   bool
	FPRMax     float64
	BitsCap    uint64
	NumHash    int
	TempDir    string
	Logger     *log.Logger
}

// Row is one parsed TSV line: a file path and its category.
type Row struct {
	Path     string
	Category string
}

// ParseInputTSV parses the (path, category) TSV per §6: lines with
// fewer than 2 tab-separated fields are skipped; rows beyond 255 are
// dropped with a warning (B5).
func ParseInputTSV(path string, logger *log.Logger) ([]Row, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ibindex: open input TSV %s: %w", path, err)
	}
	defer fh.Close()

	var rows []Row
	scanner := bufio.NewScanner(fh)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Text()
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			logger.Printf("WARNING: skipping malformed TSV row %d: %q", lineNo, line)
			continue
		}
		p, err := filepath.Abs(fields[0])
		if err != nil {
			logger.Printf("WARNING: skipping TSV row %d, cannot resolve path %q: %v", lineNo, fields[0], err)
			continue
		}
		if len(rows) >= maxBins {
			logger.Printf("WARNING: input TSV row %d exceeds the %d bin cap; dropping", lineNo, maxBins)
			continue
		}
		rows = append(rows, Row{Path: p, Category: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ibindex: scan input TSV %s: %w", path, err)
	}
	return rows, nil
}

// HashFunc extracts the minimizer hash stream for one file's
// sequence(s); cmd/charon wires this to seqio+minhash so ibindex
// itself never imports a concrete sequence reader (§1 non-goal:
// FASTA/FASTQ I/O is external).
type HashFunc func(path string) (records uint64, hashes []uint64, err error)

// Index is the fully built, ready-to-persist result of IndexBuilder.
type Index struct {
	WindowSize int
	KmerSize   int
	FPRMax     float64
	Summary    *InputSummary
	Stats      *InputStats
	Filter     *filter.Filter
}

// Build runs C6's five steps: parse is assumed already done (rows is
// its result); this function hashes each row's file, packs bins,
// sizes and allocates the filter, and emplaces every hash.
func Build(rows []Row, hashOf HashFunc, cfg BuilderConfig) (*Index, error) {
	if cfg.TempDir == "" {
		return nil, fmt.Errorf("ibindex: invalid config: temp dir is required")
	}
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("ibindex: create temp dir %s: %w", cfg.TempDir, err)
	}

	summary := NewInputSummary()
	summary.NumFiles = uint32(len(rows))
	for i, r := range rows {
		bin := uint8(i)
		summary.NumBins = uint8(i + 1)
		summary.BinToName[bin] = r.Category
	}

	stats := NewInputStats()
	stats.NumFiles = summary.NumFiles

	threads := cfg.Threads
	if threads <= 0 {
		threads = 1
	}

	type hashResult struct {
		bin     uint8
		records uint64
		nHash   uint64
		err     error
	}
	results := make(chan hashResult, len(rows))
	sem := make(chan struct{}, threads)
	var wg sync.WaitGroup

	for i, r := range rows {
		wg.Add(1)
		sem <- struct{}{}
		go func(bin uint8, row Row) {
			defer wg.Done()
			defer func() { <-sem }()

			records, hashes, err := hashOf(row.Path)
			if err != nil {
				results <- hashResult{bin: bin, err: fmt.Errorf("ibindex: hash %s: %w", row.Path, err)}
				return
			}

			store, err := NewHashStore(cfg.TempDir, bin, uint64(len(hashes)))
			if err != nil {
				results <- hashResult{bin: bin, err: err}
				return
			}
			var n uint64
			for _, h := range hashes {
				added, err := store.Add(h)
				if err != nil {
					results <- hashResult{bin: bin, err: err}
					return
				}
				if added {
					n++
				}
			}
			if err := store.Close(); err != nil {
				results <- hashResult{bin: bin, err: err}
				return
			}
			results <- hashResult{bin: bin, records: records, nHash: n}
		}(uint8(i), r)
	}

	wg.Wait()
	close(results)

	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		summary.RecordsPerBin[res.bin] = res.records
		summary.HashesPerBin[res.bin] = res.nHash
		stats.RecordsPerBin[res.bin] = res.records
		stats.HashesPerBin[res.bin] = res.nHash
	}

	// Step 3: pack bins into buckets.
	var packBins []binpack.Bin
	for b := uint8(0); b < summary.NumBins; b++ {
		packBins = append(packBins, binpack.Bin{
			Index:    int(b),
			Category: summary.BinToName[b],
			NumHash:  summary.HashesPerBin[b],
			NumReads: summary.RecordsPerBin[b],
		})
	}
	buckets := binpack.Pack(packBins, cfg.Optimize)

	// Rewrite summary/stats so each query-time "bin" is a bucket.
	packedSummary := NewInputSummary()
	packedSummary.NumFiles = summary.NumFiles
	packedSummary.NumBins = uint8(len(buckets))
	packedStats := NewInputStats()
	packedStats.NumFiles = summary.NumFiles

	bucketMembers := make([][]uint8, len(buckets))
	var worst uint64
	for i, b := range buckets {
		packedSummary.BinToName[uint8(i)] = b.Category
		packedSummary.RecordsPerBin[uint8(i)] = b.NumReads
		packedSummary.HashesPerBin[uint8(i)] = b.NumHash
		packedStats.RecordsPerBin[uint8(i)] = b.NumReads
		packedStats.HashesPerBin[uint8(i)] = b.NumHash
		if b.NumHash > worst {
			worst = b.NumHash
		}
		members := make([]uint8, len(b.Bins))
		for j, orig := range b.Bins {
			members[j] = uint8(orig)
		}
		bucketMembers[i] = members
	}

	// Step 4: allocate the filter sized from the worst bucket.
	mBits, clamped, err := filter.SizeBits(worst, cfg.NumHash, cfg.FPRMax, cfg.BitsCap)
	if err != nil {
		return nil, err
	}
	if clamped {
		cfg.Logger.Printf("WARNING: filter bit count clamped to bits_cap=%d", cfg.BitsCap)
	}
	f, err := filter.New(len(buckets), cfg.NumHash, mBits)
	if err != nil {
		return nil, err
	}

	// Step 5: emplace each bucket's member bins' hashes, then clean up.
	for i, members := range bucketMembers {
		for _, origBin := range members {
			hashes, err := LoadHashes(cfg.TempDir, origBin)
			if err != nil {
				return nil, err
			}
			for _, h := range hashes {
				if err := f.Emplace(h, i); err != nil {
					return nil, err
				}
			}
			if err := RemoveSpill(cfg.TempDir, origBin); err != nil {
				return nil, err
			}
		}
	}
	if err := RemoveDirIfEmpty(cfg.TempDir); err != nil {
		return nil, err
	}

	return &Index{
		WindowSize: cfg.WindowSize,
		KmerSize:   cfg.KmerSize,
		FPRMax:     cfg.FPRMax,
		Summary:    packedSummary,
		Stats:      packedStats,
		Filter:     f,
	}, nil
}

// HasherFromMinhash adapts a minhash.Hasher plus a record iterator
// factory into the HashFunc contract Build expects, keeping the
// FASTA/FASTQ reading concern (seqio) out of ibindex itself.
func HasherFromMinhash(h *minhash.Hasher, openRecords func(path string) (seqs func() ([]byte, bool, error), err error)) HashFunc {
	return func(path string) (uint64, []uint64, error) {
		next, err := openRecords(path)
		if err != nil {
			return 0, nil, err
		}
		var records uint64
		var hashes []uint64
		for {
			seq, ok, err := next()
			if err != nil {
				return records, hashes, err
			}
			if !ok {
				break
			}
			records++
			hashes = append(hashes, h.Hashes(seq)...)
		}
		return records, hashes, nil
	}
}
