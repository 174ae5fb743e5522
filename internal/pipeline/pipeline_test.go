package pipeline

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/rmcolq/charon/internal/filter"
	"github.com/rmcolq/charon/internal/ibindex"
	"github.com/rmcolq/charon/internal/minhash"
	"github.com/rmcolq/charon/internal/seqio"
	"github.com/rmcolq/charon/internal/stats"
	"github.com/stretchr/testify/require"
)

// memReader replays a fixed slice of records, the way a real seqio.Reader
// would stream them from disk, so processChunk's chunking logic is
// exercised without needing real files on disk.
type memReader struct {
	recs []seqio.Record
	pos  int
}

func (m *memReader) Next() (seqio.Record, bool, error) {
	if m.pos >= len(m.recs) {
		return seqio.Record{}, false, nil
	}
	r := m.recs[m.pos]
	m.pos++
	return r, true, nil
}

func (m *memReader) Close() error { return nil }

func buildTestFilter(t *testing.T, hasher *minhash.Hasher, hostSeqs, viralSeqs []string) (*filter.Filter, *ibindex.InputSummary) {
	t.Helper()

	summary := ibindex.NewInputSummary()
	summary.NumBins = 2
	summary.BinToName[0] = "host"
	summary.BinToName[1] = "viral"

	f, err := filter.New(2, 3, 4096)
	require.NoError(t, err)

	for _, s := range hostSeqs {
		for _, h := range hasher.Hashes([]byte(s)) {
			require.NoError(t, f.Emplace(h, 0))
		}
	}
	for _, s := range viralSeqs {
		for _, h := range hasher.Hashes([]byte(s)) {
			require.NoError(t, f.Emplace(h, 1))
		}
	}
	return f, summary
}

func testHasher(t *testing.T) *minhash.Hasher {
	t.Helper()
	h, err := minhash.New(20, 15, 42)
	require.NoError(t, err)
	return h
}

func repeatSeq(motif string, n int) string {
	return strings.Repeat(motif, n)
}

func testStatsModel() *stats.StatsModel {
	return stats.New(stats.Config{
		NumCategories:       2,
		Distribution:        "gamma",
		LoHiThreshold:        0.05,
		ConfidenceThreshold:  0,
		MinHits:              0,
		NumReadsToFit:        3,
		MinProportionDiff:    0.0,
		Logger:               log.New(os.Stderr, "", 0),
	})
}

func TestProcessSingleClassifiesObviousReads(t *testing.T) {
	hasher := testHasher(t)
	hostSeq := repeatSeq("ACGTGGTCAA", 12)
	viralSeq := repeatSeq("TTGCCAGGTC", 12)
	f, summary := buildTestFilter(t, hasher, []string{hostSeq}, []string{viralSeq})

	sm := testStatsModel()
	sm.ForceReady()

	var out bytes.Buffer
	p, err := New(Config{
		Mode:      ModeClassify,
		ChunkSize: 10,
		Threads:   2,
		Logger:    log.New(os.Stderr, "", 0),
		Out:       &out,
	}, summary, sm, f, hasher)
	require.NoError(t, err)

	reads := &memReader{recs: []seqio.Record{
		{ID: "r1", Sequence: hostSeq, Qualities: strings.Repeat("I", len(hostSeq))},
		{ID: "r2", Sequence: viralSeq, Qualities: strings.Repeat("I", len(viralSeq))},
	}}
	require.NoError(t, p.ProcessSingle(reads))
	require.NoError(t, p.Complete())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
}

func TestProcessSingleCachesUntilReady(t *testing.T) {
	hasher := testHasher(t)
	hostSeq := repeatSeq("ACGTGGTCAA", 12)
	f, summary := buildTestFilter(t, hasher, []string{hostSeq}, nil)

	sm := testStatsModel()
	require.False(t, sm.Ready())

	var out bytes.Buffer
	p, err := New(Config{
		Mode:      ModeClassify,
		ChunkSize: 2,
		Threads:   1,
		Logger:    log.New(os.Stderr, "", 0),
		Out:       &out,
	}, summary, sm, f, hasher)
	require.NoError(t, err)

	reads := &memReader{recs: []seqio.Record{
		{ID: "r1", Sequence: hostSeq, Qualities: strings.Repeat("I", len(hostSeq))},
	}}
	require.NoError(t, p.ProcessSingle(reads))
	// model still not ready (fewer reads than num_reads_to_fit), so
	// nothing should have been emitted yet.
	require.Equal(t, 0, out.Len())

	// Complete forces readiness and drains the cache (S4).
	require.NoError(t, p.Complete())
	require.Greater(t, out.Len(), 0)
}

func TestProcessPairedRejectsMismatchedIDs(t *testing.T) {
	hasher := testHasher(t)
	hostSeq := repeatSeq("ACGTGGTCAA", 12)
	f, summary := buildTestFilter(t, hasher, []string{hostSeq}, nil)
	sm := testStatsModel()
	sm.ForceReady()

	p, err := New(Config{
		Mode:      ModeClassify,
		ChunkSize: 10,
		Threads:   1,
		Logger:    log.New(os.Stderr, "", 0),
		Out:       &bytes.Buffer{},
	}, summary, sm, f, hasher)
	require.NoError(t, err)

	r1 := &memReader{recs: []seqio.Record{{ID: "readA/1", Sequence: hostSeq}}}
	r2 := &memReader{recs: []seqio.Record{{ID: "readB/2", Sequence: hostSeq}}}
	err = p.ProcessPaired(r1, r2)
	require.Error(t, err)
}

func TestProcessPairedZipsMatchingIDs(t *testing.T) {
	hasher := testHasher(t)
	hostSeq := repeatSeq("ACGTGGTCAA", 12)
	f, summary := buildTestFilter(t, hasher, []string{hostSeq}, nil)
	sm := testStatsModel()
	sm.ForceReady()

	var out bytes.Buffer
	p, err := New(Config{
		Mode:      ModeClassify,
		ChunkSize: 10,
		Threads:   1,
		Logger:    log.New(os.Stderr, "", 0),
		Out:       &out,
	}, summary, sm, f, hasher)
	require.NoError(t, err)

	r1 := &memReader{recs: []seqio.Record{{ID: "readA/1", Sequence: hostSeq, Qualities: strings.Repeat("I", len(hostSeq))}}}
	r2 := &memReader{recs: []seqio.Record{{ID: "readA/2", Sequence: hostSeq, Qualities: strings.Repeat("I", len(hostSeq))}}}
	require.NoError(t, p.ProcessPaired(r1, r2))
	require.NoError(t, p.Complete())
	require.Contains(t, out.String(), "readA")
}

func TestRejectedReadsAreCountedNotFatal(t *testing.T) {
	hasher := testHasher(t)
	hostSeq := repeatSeq("ACGTGGTCAA", 12)
	f, summary := buildTestFilter(t, hasher, []string{hostSeq}, nil)
	sm := testStatsModel()
	sm.ForceReady()

	var out bytes.Buffer
	p, err := New(Config{
		Mode:      ModeClassify,
		ChunkSize: 10,
		Threads:   1,
		Logger:    log.New(os.Stderr, "", 0),
		Out:       &out,
	}, summary, sm, f, hasher)
	require.NoError(t, err)

	reads := &memReader{recs: []seqio.Record{
		{ID: "empty", Sequence: ""},
		{ID: "ok", Sequence: hostSeq, Qualities: strings.Repeat("I", len(hostSeq))},
	}}
	require.NoError(t, p.ProcessSingle(reads))
	require.NoError(t, p.Complete())
	require.EqualValues(t, 1, p.nRejected)
}
