package budget

import (
	"math"
	"sort"
	"sync"
)

// PredictionErrorTracker maintains a running correction factor for a task
// profile's cost estimates, computed as the geometric mean of
// actual/estimate ratios with the highest and lowest samples trimmed as
// outliers.
type PredictionErrorTracker struct {
	mu      sync.Mutex
	ratios  []float64
	maxKept int
}

// NewPredictionErrorTracker constructs a tracker retaining up to maxKept
// most recent (estimate, actual) ratio samples.
func NewPredictionErrorTracker(maxKept int) *PredictionErrorTracker {
	if maxKept <= 2 {
		maxKept = 32
	}
	return &PredictionErrorTracker{maxKept: maxKept}
}

// Record adds one (estimatedNs, actualNs) observation.
func (t *PredictionErrorTracker) Record(estimatedNs, actualNs int64) {
	if estimatedNs <= 0 || actualNs <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ratios = append(t.ratios, float64(actualNs)/float64(estimatedNs))
	if len(t.ratios) > t.maxKept {
		t.ratios = t.ratios[len(t.ratios)-t.maxKept:]
	}
}

// CorrectionFactor returns the geometric mean of recorded ratios, trimming
// the single highest and lowest sample as outliers when at least 5 samples
// are present. A tracker with no samples reports 1.0 (no correction).
func (t *PredictionErrorTracker) CorrectionFactor() float64 {
	t.mu.Lock()
	samples := append([]float64(nil), t.ratios...)
	t.mu.Unlock()

	if len(samples) == 0 {
		return 1.0
	}
	if len(samples) >= 5 {
		sort.Float64s(samples)
		samples = samples[1 : len(samples)-1]
	}

	logSum := 0.0
	for _, r := range samples {
		logSum += math.Log(r)
	}
	return math.Exp(logSum / float64(len(samples)))
}

// Correct applies the current correction factor to a raw cost estimate.
func (t *PredictionErrorTracker) Correct(estimatedNs int64) int64 {
	return int64(float64(estimatedNs) * t.CorrectionFactor())
}
