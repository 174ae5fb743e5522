package stats

import (
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "", 0)
}

func TestReadinessIsMonotone(t *testing.T) {
	sm := New(Config{
		NumCategories:       2,
		Distribution:        "gamma",
		LoHiThreshold:       0.05,
		ConfidenceThreshold: 10,
		NumReadsToFit:       3,
		Logger:              testLogger(),
	})

	require.False(t, sm.Ready())
	sm.AddReadToTrainingData([]float32{0.9, 0.0})
	sm.AddReadToTrainingData([]float32{0.9, 0.0})
	sm.AddReadToTrainingData([]float32{0.9, 0.0})
	// model 0's pos buffer is now full but model 1's buffers never
	// filled, so overall readiness should still be false.
	assert.False(t, sm.Ready())

	sm.ForceReady()
	assert.True(t, sm.Ready())

	// Once ready, it must never flip back (P5, I4).
	sm.AddReadToTrainingData([]float32{0.1, 0.9})
	assert.True(t, sm.Ready())
}

func TestClassifyIsPureAfterReady(t *testing.T) {
	sm := New(Config{
		NumCategories:       2,
		Distribution:        "gamma",
		LoHiThreshold:       0.05,
		ConfidenceThreshold: 10,
		NumReadsToFit:       5,
		Logger:              testLogger(),
	})
	sm.ForceReady()

	p1 := sm.Classify(0, 0.5)
	p2 := sm.Classify(0, 0.5)
	assert.Equal(t, p1, p2, "classify must be a pure function of (category, x) once ready (P6)")
}

func TestClassifyHardPinAtOne(t *testing.T) {
	sm := New(Config{
		NumCategories:       1,
		Distribution:        "gamma",
		LoHiThreshold:       0.05,
		ConfidenceThreshold: 10,
		NumReadsToFit:       5,
		Logger:              testLogger(),
	})
	sm.ForceReady()

	p := sm.Classify(0, 1.0)
	// pos density is pinned to 1 at x==1 before the ratio normalizes,
	// so it should dominate the denominator and yield a high pos ratio.
	assert.Greater(t, p.Pos, 0.9)
}

func TestBetaClampsBetaAbove85(t *testing.T) {
	// Construct data whose naive moment-matched beta would exceed 85.
	data := make([]float32, 0, 50)
	for i := 0; i < 50; i++ {
		data = append(data, 0.02)
	}
	// all-identical data has zero variance, which fails the var<mu(1-mu)
	// guard entirely; perturb slightly so the fit proceeds.
	data[0] = 0.021
	data[1] = 0.019

	alpha, beta, ok := fitBeta(data, false)
	if ok {
		assert.LessOrEqual(t, beta, 85.0)
		assert.Greater(t, alpha, 0.0)
	}
}

func TestGammaFitRecoversShape(t *testing.T) {
	data := []float32{0.4, 0.5, 0.6, 0.45, 0.55, 0.5, 0.48, 0.52}
	shape, scale := fitGamma(data)
	assert.Greater(t, shape, 0.0)
	assert.Greater(t, scale, 0.0)
}

func TestAddReadRejectsAmbiguousTrainingCandidate(t *testing.T) {
	sm := New(Config{
		NumCategories:       2,
		Distribution:        "gamma",
		LoHiThreshold:       0.05,
		ConfidenceThreshold: 10,
		NumReadsToFit:       3,
		Logger:              testLogger(),
	})
	// both categories above lo_hi_threshold: not a training candidate.
	sm.AddReadToTrainingData([]float32{0.5, 0.5})
	assert.Empty(t, sm.training[0].pos)
	assert.Empty(t, sm.training[1].pos)
}
