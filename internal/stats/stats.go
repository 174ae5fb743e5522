// Package stats implements the online statistical model (C8):
// TrainingData collection, per-category Model fitting (Gamma or
// Beta), and the readiness-gated StatsModel that decides when enough
// data exists to classify. Grounded directly on
// original_source/include/classify_stats.hpp — this is specified
// domain math (closed-form fit formulas), translated to idiomatic Go
// per the DESIGN NOTES' "replace friend-class back-pointers with a
// tagged owning record" guidance: StatsModel owns TrainingData and
// Model outright; training data is cleared (not moved) once consumed.
package stats

import (
	"log"
	"math"
	"sync"
)

// errorRate is the exponential "error" density's rate parameter,
// the rate used by the current model revision (older revisions used
// 1000).
const errorRate = 300

// TrainingData accumulates observed unique-proportions for one
// category, capped at numReadsToFit per buffer (§3).
type TrainingData struct {
	pos, neg           []float32
	posComplete        bool
	negComplete        bool
	complete           bool
	numReadsToFit      int
}

func newTrainingData(numReadsToFit int) *TrainingData {
	return &TrainingData{numReadsToFit: numReadsToFit}
}

func (t *TrainingData) checkStatus() bool {
	if len(t.pos) >= t.numReadsToFit {
		t.posComplete = true
	}
	if len(t.neg) >= t.numReadsToFit {
		t.negComplete = true
	}
	if t.posComplete && t.negComplete {
		t.complete = true
	}
	return t.complete
}

// addPos appends val to the positive buffer if there's room.
func (t *TrainingData) addPos(val float32) bool {
	if len(t.pos) < t.numReadsToFit {
		t.pos = append(t.pos, val)
	}
	return t.checkStatus()
}

// addNeg appends val to the negative buffer, matching the source's
// "val > 0" guard (a zero unique-proportion carries no information
// for the negative class).
func (t *TrainingData) addNeg(val float32) bool {
	if len(t.neg) < t.numReadsToFit && val > 0 {
		t.neg = append(t.neg, val)
	}
	return t.checkStatus()
}

func (t *TrainingData) clear() {
	t.pos = nil
	t.neg = nil
}

// defaultGamma/defaultBeta are force_ready's hardcoded fallback
// parameters (§4.6). When training data never arrives the positive
// parameters are used verbatim; the negative component keeps its
// shape/scale (alpha/beta) but Model.train still refits its Loc from
// the negative buffer, which for an empty buffer gives a mean of 0.
func defaultGammaPos() GammaParams { return GammaParams{Shape: 25, Loc: 0, Scale: 0.02} }
func defaultGammaNeg() GammaParams { return GammaParams{Shape: 10, Loc: 0, Scale: 0.005} }
func defaultBetaPos() BetaParams   { return BetaParams{Alpha: 6, Beta: 4} }
func defaultBetaNeg() BetaParams   { return BetaParams{Alpha: 5, Beta: 80} }

// ProbPair is the (positive, negative) density ratio returned by
// classify (§4.6).
type ProbPair struct {
	Pos float64
	Neg float64
}

// Model holds one category's fitted Gamma or Beta parameters for both
// the positive and negative class, plus readiness.
type Model struct {
	id    uint8
	ready bool
	dist  string // "gamma" or "beta"

	gPos, gNeg GammaParams
	bPos, bNeg BetaParams

	logger *log.Logger
}

func newModel(id uint8, dist string, logger *log.Logger) *Model {
	return &Model{
		id:     id,
		dist:   dist,
		gPos:   defaultGammaPos(),
		gNeg:   defaultGammaNeg(),
		bPos:   defaultBetaPos(),
		bNeg:   defaultBetaNeg(),
		logger: logger,
	}
}

// Ready reports whether this category's model has been fit (or
// force-fit) and is safe to query.
func (m *Model) Ready() bool { return m.ready }

// train fits the model's distribution(s) from data and marks it
// ready. Mirrors Model::train: data is cleared (dropped) afterward,
// since StatsModel owns it outright rather than sharing it by
// reference with a friend Model.
func (m *Model) train(data *TrainingData) {
	if m.dist == "beta" {
		m.trainBeta(data)
	} else {
		m.trainGamma(data)
	}
	m.ready = true
	data.clear()
}

func (m *Model) trainGamma(data *TrainingData) {
	if data.posComplete {
		m.gPos.Shape, m.gPos.Scale = fitGamma(data.pos)
		ad := m.gPos.logAD(data.pos)
		m.logger.Printf("model %d: fit gamma pos (shape=%.4f scale=%.4f), Anderson-Darling=%.4f", m.id, m.gPos.Shape, m.gPos.Scale, ad)
	} else {
		ad := m.gPos.logAD(data.pos)
		m.logger.Printf("model %d: default gamma pos (shape=%.4f scale=%.4f), Anderson-Darling=%.4f", m.id, m.gPos.Shape, m.gPos.Scale, ad)
	}

	if data.negComplete {
		m.gNeg.Shape, m.gNeg.Scale = fitGamma(data.neg)
		ad := m.gNeg.logAD(data.neg)
		m.logger.Printf("model %d: fit gamma neg (shape=%.4f scale=%.4f), Anderson-Darling=%.4f", m.id, m.gNeg.Shape, m.gNeg.Scale, ad)
	} else {
		m.gNeg.Loc = fitGammaLoc(data.neg, m.gNeg.Shape, m.gNeg.Scale)
		ad := m.gNeg.logAD(data.neg)
		m.logger.Printf("model %d: default gamma neg (shape=%.4f loc=%.4f scale=%.4f), Anderson-Darling=%.4f", m.id, m.gNeg.Shape, m.gNeg.Loc, m.gNeg.Scale, ad)
	}
}

func (m *Model) trainBeta(data *TrainingData) {
	if data.posComplete {
		if alpha, beta, ok := fitBeta(data.pos, true); ok {
			m.bPos.Alpha, m.bPos.Beta = alpha, beta
		}
		ad := m.bPos.logAD(data.pos)
		m.logger.Printf("model %d: fit beta pos (alpha=%.4f beta=%.4f), Anderson-Darling=%.4f", m.id, m.bPos.Alpha, m.bPos.Beta, ad)
	} else {
		ad := m.bPos.logAD(data.pos)
		m.logger.Printf("model %d: default beta pos (alpha=%.4f beta=%.4f), Anderson-Darling=%.4f", m.id, m.bPos.Alpha, m.bPos.Beta, ad)
	}

	if data.negComplete {
		if alpha, beta, ok := fitBeta(data.neg, false); ok {
			m.bNeg.Alpha, m.bNeg.Beta = alpha, beta
		}
		ad := m.bNeg.logAD(data.neg)
		m.logger.Printf("model %d: fit beta neg (alpha=%.4f beta=%.4f loc=%.4f), Anderson-Darling=%.4f", m.id, m.bNeg.Alpha, m.bNeg.Beta, m.bNeg.Loc, ad)
	} else {
		m.bNeg.Loc = fitBetaLoc(data.neg, m.bNeg.Alpha, m.bNeg.Beta)
		ad := m.bNeg.logAD(data.neg)
		m.logger.Printf("model %d: default beta neg (alpha=%.4f beta=%.4f loc=%.4f), Anderson-Darling=%.4f", m.id, m.bNeg.Alpha, m.bNeg.Beta, m.bNeg.Loc, ad)
	}
}

// logAD computes the Anderson-Darling statistic, a diagnostic only —
// it never influences control flow (§4.6).
func (g GammaParams) logAD(data []float32) float64 { return andersonDarling(data, g.CDF) }
func (b BetaParams) logAD(data []float32) float64  { return andersonDarling(data, b.CDF) }

func andersonDarling(data []float32, cdf func(float64) float64) float64 {
	if len(data) < 2 {
		return 0
	}
	sorted := make([]float64, len(data))
	for i, v := range data {
		sorted[i] = float64(v)
	}
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	n := float64(len(sorted))
	var s float64
	for i := range sorted {
		fyi := cdf(sorted[i])
		fyn1i := cdf(sorted[len(sorted)-1-i])
		if fyi <= 0 || fyi >= 1 || fyn1i <= 0 || fyn1i >= 1 {
			continue
		}
		si := ((2*float64(i) + 1) / n) * (logSafe(fyi) + logSafe(1-fyn1i))
		s += si
	}
	return -n - s
}

func logSafe(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Log(x)
}

// Prob evaluates the classify density ratio (§4.6), including the
// blended exponential error term and the x==1 hard pin (B4).
func (m *Model) Prob(readProportion float32) ProbPair {
	x := float64(readProportion)
	pErr := expDensity(x, errorRate)

	var pPos, pNeg float64
	if m.dist == "beta" {
		pPos = m.bPos.Density(x)
		pNeg = m.bNeg.Density(x)
	} else {
		pPos = m.gPos.Density(x)
		pNeg = m.gNeg.Density(x)
	}

	if x == 1 {
		pPos = 1
	}

	total := pErr + pPos + pNeg
	if total == 0 {
		return ProbPair{Pos: 0, Neg: 0}
	}
	return ProbPair{Pos: pPos / total, Neg: (pErr + pNeg) / total}
}

// StatsModel owns one TrainingData/Model pair per category and gates
// classification behind a monotone readiness flag (I4, I5, P5).
type StatsModel struct {
	mu    sync.Mutex
	ready bool

	loHiThreshold       float32
	confidenceThreshold int
	minHits             uint32
	numReadsToFit       int

	minQuality           float32
	minLength            uint32
	minCompression       float32
	minProportionDiff    float32
	hostUniqueLoThreshold float32

	training []*TrainingData
	models   []*Model

	logger *log.Logger
}

// Config bundles the thresholds StatsModel needs; cmd/charon builds
// this from config.ClassifyArgs. The DecisionEngine (internal/entry)
// reads these back out via the accessor methods below, matching
// §4.5's "thresholds from StatsModel" contract.
type Config struct {
	NumCategories       int
	Distribution        string
	LoHiThreshold       float32
	ConfidenceThreshold int
	MinHits             uint32
	NumReadsToFit       int

	MinQuality            float32
	MinLength             uint32
	MinCompression        float32
	MinProportionDiff     float32
	HostUniqueLoThreshold float32

	Logger *log.Logger
}

// New builds a StatsModel with one Model/TrainingData pair per
// category, per StatsModel's constructor in classify_stats.hpp.
func New(cfg Config) *StatsModel {
	sm := &StatsModel{
		loHiThreshold:         cfg.LoHiThreshold,
		confidenceThreshold:   cfg.ConfidenceThreshold,
		minHits:               cfg.MinHits,
		numReadsToFit:         cfg.NumReadsToFit,
		minQuality:            cfg.MinQuality,
		minLength:             cfg.MinLength,
		minCompression:        cfg.MinCompression,
		minProportionDiff:     cfg.MinProportionDiff,
		hostUniqueLoThreshold: cfg.HostUniqueLoThreshold,
		logger:                cfg.Logger,
	}
	for i := 0; i < cfg.NumCategories; i++ {
		sm.models = append(sm.models, newModel(uint8(i), cfg.Distribution, cfg.Logger))
		sm.training = append(sm.training, newTrainingData(cfg.NumReadsToFit))
	}
	return sm
}

// Ready reports the monotone readiness flag (I4, I5, P5): once true
// it never reverts to false.
func (sm *StatsModel) Ready() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.ready
}

func (sm *StatsModel) checkIfReady() {
	if sm.ready {
		return
	}
	for _, m := range sm.models {
		if !m.ready {
			return
		}
	}
	sm.ready = true
}

// ForceReady fits every not-yet-ready model from whatever training
// data exists (or the hardcoded defaults), used when the input
// exhausts before N_fit is reached (S4, the Capacity error kind §7).
func (sm *StatsModel) ForceReady() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for i, m := range sm.models {
		if m.ready {
			continue
		}
		m.train(sm.training[i])
	}
	sm.ready = true
}

// ConfidenceThreshold, MinHits, and the remaining gate thresholds
// expose what the DecisionEngine (internal/entry) needs (§4.5).
func (sm *StatsModel) ConfidenceThreshold() int    { return sm.confidenceThreshold }
func (sm *StatsModel) MinHits() uint32             { return sm.minHits }
func (sm *StatsModel) NumReadsToFit() int          { return sm.numReadsToFit }
func (sm *StatsModel) MinQuality() float32         { return sm.minQuality }
func (sm *StatsModel) MinLength() uint32           { return sm.minLength }
func (sm *StatsModel) MinCompression() float32     { return sm.minCompression }
func (sm *StatsModel) MinProportionDifference() float32 { return sm.minProportionDiff }
func (sm *StatsModel) HostUniqueLoThreshold() float32   { return sm.hostUniqueLoThreshold }
func (sm *StatsModel) NumCategories() int          { return len(sm.models) }

// AddReadToTrainingData implements add_read_to_training_data (§4.6):
// determines the tentative positive category, appends observations,
// and trains any model whose buffers just became full. Returns the
// (possibly now-true) overall readiness.
func (sm *StatsModel) AddReadToTrainingData(uniqueProportions []float32) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	const none = 0xFF
	posI := none
	var maxVal float32
	var numAboveThreshold int

	for i, val := range uniqueProportions {
		if val > sm.loHiThreshold {
			numAboveThreshold++
		}
		if val == maxVal {
			posI = none
		} else if val > maxVal {
			posI = i
			maxVal = val
		}
	}

	addToTraining := posI != none && numAboveThreshold <= 1
	if !addToTraining {
		return sm.ready
	}

	if readyNow := sm.training[posI].addPos(uniqueProportions[posI]); readyNow && !sm.models[posI].ready {
		sm.trainModelAt(posI)
	}

	for i, val := range uniqueProportions {
		if i == posI {
			continue
		}
		if readyNow := sm.training[i].addNeg(val); readyNow && !sm.models[i].ready {
			sm.trainModelAt(i)
		}
	}

	return sm.ready
}

func (sm *StatsModel) trainModelAt(i int) {
	sm.models[i].train(sm.training[i])
	sm.checkIfReady()
}

// Classify evaluates category i's density ratio at x (§4.6's
// classify(c,x)). Once a Model is ready, this is a pure function of
// (c,x), per P6.
func (sm *StatsModel) Classify(i int, x float32) ProbPair {
	return sm.models[i].Prob(x)
}
