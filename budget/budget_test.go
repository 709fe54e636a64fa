package budget_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vixen-gfx/vixen/budget"
	"github.com/vixen-gfx/vixen/resource"
)

func TestCategoryStrictRefusesOverBudget(t *testing.T) {
	c := budget.NewCategory("test", 100, 80, budget.Strict, nil)
	require.NoError(t, c.TryReserve(50))
	assert.ErrorIs(t, c.TryReserve(60), budget.ErrOverBudget)
	assert.Equal(t, uint64(50), c.Used())
}

func TestCategoryLenientWarnsButAccepts(t *testing.T) {
	var warned bool
	c := budget.NewCategory("test", 100, 80, budget.Lenient, func(name string, used, max uint64) {
		warned = true
	})
	require.NoError(t, c.TryReserve(90))
	assert.True(t, warned)
	assert.Equal(t, uint64(90), c.Used())
}

func TestChooseEvictionPrefersLowestPriorityThenLRU(t *testing.T) {
	a := budget.EvictionCandidate{ID: resource.NewID(), Priority: resource.PriorityHigh, LastUsedFrame: 10}
	b := budget.EvictionCandidate{ID: resource.NewID(), Priority: resource.PriorityLow, LastUsedFrame: 20}
	c := budget.EvictionCandidate{ID: resource.NewID(), Priority: resource.PriorityLow, LastUsedFrame: 5}

	chosen, ok := budget.ChooseEviction([]budget.EvictionCandidate{a, b, c})
	require.True(t, ok)
	assert.Equal(t, c.ID, chosen.ID, "lowest priority, then least-recently-used, must be chosen")
}

func TestCapacityTrackerEvaluateThresholds(t *testing.T) {
	ct := budget.NewCapacityTracker(4, 1_000_000, 1.1, 0.7)
	for i := 0; i < 4; i++ {
		ct.Record(1_300_000)
	}
	verdict, _ := ct.Evaluate()
	assert.Equal(t, budget.VerdictOverrun, verdict)

	ct2 := budget.NewCapacityTracker(4, 1_000_000, 1.1, 0.7)
	for i := 0; i < 4; i++ {
		ct2.Record(500_000)
	}
	verdict2, _ := ct2.Evaluate()
	assert.Equal(t, budget.VerdictAvailable, verdict2)
}

func TestCapacityTrackerPercentile(t *testing.T) {
	ct := budget.NewCapacityTracker(5, 1, 1, 1)
	for _, v := range []int64{10, 20, 30, 40, 50} {
		ct.Record(v)
	}
	assert.Equal(t, int64(50), ct.Percentile(100))
	assert.Equal(t, int64(10), ct.Percentile(0))
}

// TestPressureValveDampedHysteresis: no single application changes
// workUnits by more than 10%, and a requested change smaller than the 5%
// deadband is dropped entirely.
func TestPressureValveDampedHysteresis(t *testing.T) {
	p := budget.NewTaskProfile("blur", resource.PriorityMedium, &budget.LinearModel{Baseline: 0, CostPerUnit: 1}, 100, 1, 1000)

	p.AdjustPressure(-40) // requests a 40% cut
	applied, newWU := p.ApplyPendingAdjustment()
	require.True(t, applied)
	assert.InDelta(t, 90.0, newWU, 0.001, "change must be clamped to 10% of current workUnits")

	p2 := budget.NewTaskProfile("blur2", resource.PriorityMedium, &budget.LinearModel{Baseline: 0, CostPerUnit: 1}, 100, 1, 1000)
	p2.AdjustPressure(-2) // 2% request, within the 5% deadband
	applied2, newWU2 := p2.ApplyPendingAdjustment()
	assert.False(t, applied2)
	assert.Equal(t, 100.0, newWU2)
}

// TestRegistryOnBudgetOverrunPicksLowestPriority: an over-budget verdict
// reduces the lowest-priority task's workUnits by roughly 10%, applied at
// the next FrameStart-equivalent call.
func TestRegistryOnBudgetOverrunPicksLowestPriority(t *testing.T) {
	reg := budget.NewTaskProfileRegistry()
	high := budget.NewTaskProfile("shadow", resource.PriorityHigh, &budget.LinearModel{Baseline: 0, CostPerUnit: 1}, 100, 1, 1000)
	low := budget.NewTaskProfile("ssao", resource.PriorityLow, &budget.LinearModel{Baseline: 0, CostPerUnit: 1}, 100, 1, 1000)
	reg.Register(high)
	reg.Register(low)

	target := reg.OnBudgetOverrun(0.10)
	require.NotNil(t, target)
	assert.Equal(t, "ssao", target.ID)

	reg.ApplyPendingAdjustments()
	assert.InDelta(t, 90.0, low.WorkUnits(), 0.001)
	assert.Equal(t, 100.0, high.WorkUnits(), "only the lowest-priority profile is touched")
}

func TestPredictionErrorTrackerGeometricMeanWithTrimming(t *testing.T) {
	tr := budget.NewPredictionErrorTracker(32)
	ratios := []float64{1.0, 1.0, 1.0, 1.0, 1.0, 0.1, 10.0} // two outliers
	for _, r := range ratios {
		tr.Record(1000, int64(1000*r))
	}
	factor := tr.CorrectionFactor()
	assert.InDelta(t, 1.0, factor, 0.05, "trimmed geometric mean should cancel the paired outliers")
}

// fixedModel always estimates the same cost and never learns, isolating
// the prediction-error correction path from the EWMA model update.
type fixedModel struct{ ns int64 }

func (m fixedModel) Estimate(float64) int64           { return m.ns }
func (m fixedModel) Finalize(float64, int64, float64) {}

// TestProfileEstimatesCorrectedBySampledError: a model that consistently
// predicts half the measured cost sees GetEstimatedCostNs scaled up by the
// tracker's correction factor before the scheduler reads it.
func TestProfileEstimatesCorrectedBySampledError(t *testing.T) {
	p := budget.NewTaskProfile("march", resource.PriorityMedium, fixedModel{ns: 1000}, 100, 1, 1000)

	assert.Equal(t, int64(1000), p.GetEstimatedCostNs(100), "no samples yet, no correction")

	for i := 0; i < 6; i++ {
		p.Sample(100).Finalize(2000) // actual is consistently 2x the estimate
	}
	assert.InDelta(t, 2000, float64(p.GetEstimatedCostNs(100)), 50, "estimate should be corrected toward measured cost")
}

// TestCalibrationStoreRoundTrip: persisted calibration records survive a
// save/load cycle keyed by hardware fingerprint.
func TestCalibrationStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calibration.json")

	fp := budget.HardwareFingerprint{Vendor: "nvidia", Device: "rtx-4090", DriverVersion: "551.23"}
	store := budget.NewCalibrationStore(path)
	store.Put(budget.CalibrationRecord{
		Fingerprint: fp,
		Profiles: map[string]budget.ProfileRecord{
			"blur": {Baseline: 1200, CostPerUnit: 3.5, WorkUnits: 64},
		},
	})
	require.NoError(t, store.Save())

	reloaded := budget.NewCalibrationStore(path)
	mismatches, err := reloaded.Load()
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	rec, ok := reloaded.Get(fp)
	require.True(t, ok)
	assert.Equal(t, 1200.0, rec.Profiles["blur"].Baseline)
	assert.Equal(t, 64.0, rec.Profiles["blur"].WorkUnits)
}

func TestCalibrationStoreLoadMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	store := budget.NewCalibrationStore(filepath.Join(dir, "does-not-exist.json"))
	mismatches, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestCalibrationStoreWarnsOnDriverMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calibration.json")

	fp := budget.HardwareFingerprint{Vendor: "amd", Device: "rx-7900", DriverVersion: "23.1"}
	store := budget.NewCalibrationStore(path)
	store.Put(budget.CalibrationRecord{Fingerprint: fp, Profiles: map[string]budget.ProfileRecord{}})
	require.NoError(t, store.Save())

	newer := fp
	newer.DriverVersion = "24.5"
	store2 := budget.NewCalibrationStore(path)
	store2.Put(budget.CalibrationRecord{Fingerprint: newer, Profiles: map[string]budget.ProfileRecord{}})

	mismatches, err := store2.Load()
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "23.1", mismatches[0].DriverVersion)

	_ = os.Remove(path) // cleanup is automatic via t.TempDir, kept explicit for clarity
}

func TestSnapshotAndApplyRecordRoundTrip(t *testing.T) {
	p := budget.NewTaskProfile("blur", resource.PriorityMedium, &budget.LinearModel{Baseline: 500, CostPerUnit: 2}, 64, 1, 1000)
	rec := budget.SnapshotProfile(p)
	assert.Equal(t, 500.0, rec.Baseline)
	assert.Equal(t, 2.0, rec.CostPerUnit)
	assert.Equal(t, 64.0, rec.WorkUnits)

	p2 := budget.NewTaskProfile("blur", resource.PriorityMedium, &budget.LinearModel{}, 1, 1, 1000)
	budget.ApplyRecord(p2, rec)
	assert.Equal(t, 64.0, p2.WorkUnits())
	assert.Equal(t, int64(500+2*10), p2.GetEstimatedCostNs(10))
}
