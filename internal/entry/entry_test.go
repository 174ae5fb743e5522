package entry

import (
	"log"
	"os"
	"testing"

	"github.com/rmcolq/charon/internal/filter"
	"github.com/rmcolq/charon/internal/ibindex"
	"github.com/rmcolq/charon/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoBinSummary() *ibindex.InputSummary {
	s := ibindex.NewInputSummary()
	s.NumBins = 2
	s.BinToName[0] = "host"
	s.BinToName[1] = "viral"
	return s
}

func testStatsModel(t *testing.T) *stats.StatsModel {
	t.Helper()
	return stats.New(stats.Config{
		NumCategories:       2,
		Distribution:        "gamma",
		LoHiThreshold:       0.05,
		ConfidenceThreshold: 1,
		MinHits:             1,
		NumReadsToFit:       5,
		MinProportionDiff:   0.05,
		Logger:              log.New(os.Stderr, "", 0),
	})
}

func TestPostProcessComputesProportions(t *testing.T) {
	summary := twoBinSummary()
	e := New("read1", 100, 30, 0.5, summary)

	// 3 hashes: two hit bin0 only, one hits both bins.
	e.Update(filter.BitRow{true, false})
	e.Update(filter.BitRow{true, false})
	e.Update(filter.BitRow{true, true})

	require.NoError(t, e.PostProcess(summary))

	assert.InDelta(t, 1.0, e.Proportions()[0], 1e-9)
	assert.InDelta(t, float64(1)/3, e.Proportions()[1], 1e-6)
	// unique hits: rows where exactly one category's bit is set -> 2
	assert.InDelta(t, float64(2)/3, e.UniqueProportions()[0], 1e-6)
	assert.InDelta(t, 0.0, e.UniqueProportions()[1], 1e-9)
}

func TestPostProcessIsIdempotent(t *testing.T) {
	summary := twoBinSummary()
	e := New("read1", 100, 30, 0.5, summary)
	e.Update(filter.BitRow{true, false})
	e.Update(filter.BitRow{false, true})

	require.NoError(t, e.PostProcess(summary))
	p1 := append([]float32{}, e.Proportions()...)
	up1 := append([]float32{}, e.UniqueProportions()...)

	require.NoError(t, e.PostProcess(summary))
	assert.Equal(t, p1, e.Proportions())
	assert.Equal(t, up1, e.UniqueProportions())
}

func TestClassifyUnclassifiedBelowMinHits(t *testing.T) {
	summary := twoBinSummary()
	sm := testStatsModel(t)
	sm.ForceReady()

	e := New("ambiguous", 100, 30, 0.5, summary)
	// one hash each, tied: no hit-count gap at all.
	e.Update(filter.BitRow{true, false})
	e.Update(filter.BitRow{false, true})
	require.NoError(t, e.PostProcess(summary))

	e.Classify(sm)
	assert.Equal(t, uint8(None), e.Call())
}

func TestClassifyCallsClearWinner(t *testing.T) {
	summary := twoBinSummary()
	sm := testStatsModel(t)
	sm.ForceReady()

	e := New("clear-host", 500, 30, 0.5, summary)
	for i := 0; i < 20; i++ {
		e.Update(filter.BitRow{true, false})
	}
	require.NoError(t, e.PostProcess(summary))

	e.Classify(sm)
	if e.Call() != None {
		assert.Equal(t, uint8(0), e.Call())
	}
}

func TestDehostLoThresholdGate(t *testing.T) {
	summary := twoBinSummary()
	sm := stats.New(stats.Config{
		NumCategories:         2,
		Distribution:          "gamma",
		LoHiThreshold:         0.05,
		ConfidenceThreshold:   0,
		MinHits:               0,
		NumReadsToFit:         5,
		MinProportionDiff:     0.01,
		HostUniqueLoThreshold: 0.01,
		Logger:                log.New(os.Stderr, "", 0),
	})
	sm.ForceReady()

	e := New("novel-host-variant", 500, 30, 0.5, summary)
	for i := 0; i < 10; i++ {
		e.Update(filter.BitRow{false, true})
	}
	require.NoError(t, e.PostProcess(summary))

	e.Dehost(sm, 0)
	// host unique prop is 0, well below the lo threshold, but other's
	// unique prop (1.0) triggers the "call=other" branch since 0 < 0.01.
	if e.Call() != None {
		assert.Equal(t, uint8(1), e.Call())
	}
}

func TestPrintAssignmentFormatsUnclassified(t *testing.T) {
	summary := twoBinSummary()
	e := New("r1", 10, 20, 0.5, summary)
	e.Update(filter.BitRow{false, false})
	require.NoError(t, e.PostProcess(summary))

	line := e.PrintAssignment(summary)
	assert.Contains(t, line, "U\tr1\t")
}
