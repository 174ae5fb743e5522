package ibindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/willf/bloom"
)

// HashStore spills one bin's hash set to a temp file, named <bin>.min
// per §6's temp-file contract, snappy-compressed. One HashStore
// instance serves one bin during the index build's hashing phase
// (§4.3 step 2).
type HashStore struct {
	dir string
	bin uint8

	dedupe *bloom.BloomFilter // suppresses repeated hashes before they hit disk
	seen   map[uint64]bool    // exact-dedup fallback for small bins

	fh  *os.File
	wtr *snappy.Writer
	buf *bufio.Writer

	count uint64
}

// NewHashStore opens (creating/truncating) the spill file for bin
// under dir. expectedHashes sizes the bloom-backed deduper from an
// estimated line count; this is purely a fast-path duplicate
// suppressor — the exact
// `seen` map backstops false positives for a correctness-preserving
// dedupe (no hash may be silently dropped as "duplicate" unless it
// truly already occurred).
func NewHashStore(dir string, bin uint8, expectedHashes uint64) (*HashStore, error) {
	if expectedHashes == 0 {
		expectedHashes = 1024
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.min", bin))
	fh, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("ibindex: create hash spill %s: %w", path, err)
	}
	wtr := snappy.NewBufferedWriter(fh)
	return &HashStore{
		dir:    dir,
		bin:    bin,
		dedupe: bloom.New(4*expectedHashes+1024, 4),
		seen:   make(map[uint64]bool),
		fh:     fh,
		wtr:    wtr,
		buf:    bufio.NewWriter(wtr),
	}, nil
}

// Add records hash h for this bin if it has not been seen before.
// Returns true if the hash was newly added. The bloom filter gives a
// fast negative (definitely new) without touching the exact map; a
// bloom hit falls through to the exact `seen` map so a false positive
// never causes a real hash to be dropped.
func (hs *HashStore) Add(h uint64) (bool, error) {
	var key [8]byte
	binary.LittleEndian.PutUint64(key[:], h)

	if hs.dedupe.Test(key[:]) && hs.seen[h] {
		return false, nil
	}
	hs.dedupe.Add(key[:])
	hs.seen[h] = true

	if err := binary.Write(hs.buf, binary.LittleEndian, h); err != nil {
		return false, fmt.Errorf("ibindex: spill write bin %d: %w", hs.bin, err)
	}
	hs.count++
	return true, nil
}

// Count reports how many distinct hashes have been spilled so far.
func (hs *HashStore) Count() uint64 { return hs.count }

// Close flushes and closes the spill file. The file itself is left on
// disk for a later Load call.
func (hs *HashStore) Close() error {
	if err := hs.buf.Flush(); err != nil {
		hs.fh.Close()
		return fmt.Errorf("ibindex: flush spill bin %d: %w", hs.bin, err)
	}
	if err := hs.wtr.Close(); err != nil {
		hs.fh.Close()
		return fmt.Errorf("ibindex: close spill writer bin %d: %w", hs.bin, err)
	}
	return hs.fh.Close()
}

// LoadHashes reads back every hash spilled for bin under dir.
func LoadHashes(dir string, bin uint8) ([]uint64, error) {
	path := filepath.Join(dir, fmt.Sprintf("%d.min", bin))
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ibindex: open hash spill %s: %w", path, err)
	}
	defer fh.Close()

	snr := snappy.NewReader(fh)
	var out []uint64
	for {
		var h uint64
		if err := binary.Read(snr, binary.LittleEndian, &h); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("ibindex: read hash spill %s: %w", path, err)
		}
		out = append(out, h)
	}
	return out, nil
}

// RemoveSpill deletes bin's spill file once its hashes have been
// consumed (§4.3 step 5).
func RemoveSpill(dir string, bin uint8) error {
	path := filepath.Join(dir, fmt.Sprintf("%d.min", bin))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ibindex: remove hash spill %s: %w", path, err)
	}
	return nil
}

// RemoveDirIfEmpty removes dir if it has no remaining entries, per
// §4.3 step 5's "delete the temp directory if empty".
func RemoveDirIfEmpty(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("ibindex: read temp dir %s: %w", dir, err)
	}
	if len(entries) == 0 {
		return os.Remove(dir)
	}
	return nil
}
