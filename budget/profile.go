package budget

import (
	"sync"

	"github.com/vixen-gfx/vixen/resource"
)

// CostModel estimates a task's cost in nanoseconds as a function of a
// workUnits parameter. The default linear model (baseline + workUnits x
// costPerUnit) satisfies most nodes; callers with non-linear scaling
// supply their own CostModel.
type CostModel interface {
	Estimate(workUnits float64) int64
	// Finalize updates the model's internal coefficients from one measured
	// sample using an exponentially weighted average, with weight in (0,1].
	Finalize(workUnits float64, measuredNs int64, weight float64)
}

// LinearModel is the default CostModel: estimate = baseline + workUnits *
// costPerUnit.
type LinearModel struct {
	mu          sync.Mutex
	Baseline    float64
	CostPerUnit float64
}

func (m *LinearModel) Estimate(workUnits float64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(m.Baseline + workUnits*m.CostPerUnit)
}

func (m *LinearModel) Finalize(workUnits float64, measuredNs int64, weight float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if workUnits == 0 {
		m.Baseline = m.Baseline*(1-weight) + float64(measuredNs)*weight
		return
	}
	impliedCostPerUnit := (float64(measuredNs) - m.Baseline) / workUnits
	m.CostPerUnit = m.CostPerUnit*(1-weight) + impliedCostPerUnit*weight
}

// QuadraticResolutionModel estimates cost as baseline + k * (workUnits^2),
// for a dispatch whose cost scales with pixel count, i.e. the square of a
// linear resolution parameter.
type QuadraticResolutionModel struct {
	mu       sync.Mutex
	Baseline float64
	K        float64
}

func (m *QuadraticResolutionModel) Estimate(workUnits float64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(m.Baseline + m.K*workUnits*workUnits)
}

func (m *QuadraticResolutionModel) Finalize(workUnits float64, measuredNs int64, weight float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if workUnits == 0 {
		m.Baseline = m.Baseline*(1-weight) + float64(measuredNs)*weight
		return
	}
	impliedK := (float64(measuredNs) - m.Baseline) / (workUnits * workUnits)
	m.K = m.K*(1-weight) + impliedK*weight
}

// Sampler is returned by TaskProfile.Sample and finalized with one measured
// duration. It captures the raw model estimate at Sample time so Finalize
// can record an (estimate, actual) pair against the profile's prediction
// error tracker.
type Sampler struct {
	profile     *TaskProfile
	workUnits   float64
	estimatedNs int64
}

// Finalize records measuredNs as the outcome of this sample: the
// (estimate, actual) pair feeds the profile's prediction error tracker,
// then the cost model's coefficients are updated.
func (s Sampler) Finalize(measuredNs int64) {
	s.profile.errors.Record(s.estimatedNs, measuredNs)
	s.profile.mu.Lock()
	weight := s.profile.ewmaWeight
	s.profile.mu.Unlock()
	s.profile.model.Finalize(s.workUnits, measuredNs, weight)
}

// TaskProfile is a per-task-identity cost model with an adjustable
// workUnits "pressure valve" parameter.
type TaskProfile struct {
	mu sync.Mutex

	ID       string
	Priority resource.Priority
	model    CostModel
	errors   *PredictionErrorTracker

	ewmaWeight float64

	workUnits    float64
	minWorkUnits float64
	maxWorkUnits float64

	pendingDelta    float64
	hasPendingDelta bool

	maxChangeFrac float64 // damping: no change > this fraction per frame (0.10)
	deadbandFrac  float64 // damping: no adjustment within this fraction (0.05)
}

// NewTaskProfile constructs a profile with the given identity, priority,
// cost model, initial workUnits, and its valid range.
func NewTaskProfile(id string, priority resource.Priority, model CostModel, initialWorkUnits, minWorkUnits, maxWorkUnits float64) *TaskProfile {
	return &TaskProfile{
		ID:            id,
		Priority:      priority,
		model:         model,
		errors:        NewPredictionErrorTracker(64),
		ewmaWeight:    0.2,
		workUnits:     initialWorkUnits,
		minWorkUnits:  minWorkUnits,
		maxWorkUnits:  maxWorkUnits,
		maxChangeFrac: 0.10,
		deadbandFrac:  0.05,
	}
}

// WorkUnits reports the profile's current workUnits parameter.
func (p *TaskProfile) WorkUnits() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workUnits
}

// Sample begins recording one invocation of this task at the given
// workUnits level, returning a Sampler to Finalize once the GPU/CPU time is
// known.
func (p *TaskProfile) Sample(workUnits float64) Sampler {
	return Sampler{profile: p, workUnits: workUnits, estimatedNs: p.model.Estimate(workUnits)}
}

// GetEstimatedCostNs returns the profile's cost estimate for workUnits,
// used by the scheduler to size a virtual task's budget contribution. The
// raw model estimate is multiplied by the prediction error tracker's
// correction factor, so a model that consistently under- or over-predicts
// is compensated before admission.
func (p *TaskProfile) GetEstimatedCostNs(workUnits float64) int64 {
	return p.errors.Correct(p.model.Estimate(workUnits))
}

// PredictionErrors exposes the profile's (estimate, actual) tracker, fed by
// every Sampler.Finalize and consulted by GetEstimatedCostNs.
func (p *TaskProfile) PredictionErrors() *PredictionErrorTracker {
	return p.errors
}

// AdjustPressure requests a change to workUnits by delta. Adjustments are
// deferred and applied at the next FrameStart to avoid mid-frame mutation;
// call ApplyPendingAdjustment to commit.
func (p *TaskProfile) AdjustPressure(delta float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pendingDelta += delta
	p.hasPendingDelta = true
}

// ApplyPendingAdjustment commits any pending AdjustPressure delta, damped so
// that workUnits changes by no more than maxChangeFrac (10%) of its current
// value in one application, and is skipped entirely if the requested change
// falls within the deadbandFrac (5%).
func (p *TaskProfile) ApplyPendingAdjustment() (applied bool, newWorkUnits float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasPendingDelta {
		return false, p.workUnits
	}
	delta := p.pendingDelta
	p.pendingDelta = 0
	p.hasPendingDelta = false

	if p.workUnits == 0 {
		if delta == 0 {
			return false, p.workUnits
		}
		p.workUnits = clamp(delta, p.minWorkUnits, p.maxWorkUnits)
		return true, p.workUnits
	}

	fraction := delta / p.workUnits
	if abs(fraction) < p.deadbandFrac {
		return false, p.workUnits
	}
	if fraction > p.maxChangeFrac {
		fraction = p.maxChangeFrac
	}
	if fraction < -p.maxChangeFrac {
		fraction = -p.maxChangeFrac
	}
	p.workUnits = clamp(p.workUnits*(1+fraction), p.minWorkUnits, p.maxWorkUnits)
	return true, p.workUnits
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// TaskProfileRegistry holds one TaskProfile per task identity and applies
// the budget pressure valve: on BudgetOverrun, decrease the lowest-priority
// profile's workUnits; on BudgetAvailable, increase the highest-priority
// one.
type TaskProfileRegistry struct {
	mu       sync.RWMutex
	profiles map[string]*TaskProfile
}

// NewTaskProfileRegistry constructs an empty registry.
func NewTaskProfileRegistry() *TaskProfileRegistry {
	return &TaskProfileRegistry{profiles: make(map[string]*TaskProfile)}
}

// Register adds or replaces the profile for its ID.
func (r *TaskProfileRegistry) Register(p *TaskProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p
}

// Get returns the profile for id, if registered.
func (r *TaskProfileRegistry) Get(id string) (*TaskProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	return p, ok
}

// All returns every registered profile, in no particular order.
func (r *TaskProfileRegistry) All() []*TaskProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TaskProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	return out
}

// OnBudgetOverrun decreases the lowest-priority profile's workUnits by
// fraction (e.g. 0.10 for roughly a 10% cut).
// Ties are broken by ID for determinism. Returns the profile adjusted, if
// any were registered.
func (r *TaskProfileRegistry) OnBudgetOverrun(fraction float64) *TaskProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	target := lowestPriority(r.profiles)
	if target == nil {
		return nil
	}
	target.AdjustPressure(-target.WorkUnits() * fraction)
	return target
}

// OnBudgetAvailable increases the highest-priority profile's workUnits by
// fraction.
func (r *TaskProfileRegistry) OnBudgetAvailable(fraction float64) *TaskProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	target := highestPriority(r.profiles)
	if target == nil {
		return nil
	}
	target.AdjustPressure(target.WorkUnits() * fraction)
	return target
}

// ApplyPendingAdjustments commits every profile's deferred AdjustPressure
// call; intended to run once per FrameStart.
func (r *TaskProfileRegistry) ApplyPendingAdjustments() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.profiles {
		p.ApplyPendingAdjustment()
	}
}

func lowestPriority(profiles map[string]*TaskProfile) *TaskProfile {
	var best *TaskProfile
	for _, p := range profiles {
		if best == nil || p.Priority < best.Priority || (p.Priority == best.Priority && p.ID < best.ID) {
			best = p
		}
	}
	return best
}

func highestPriority(profiles map[string]*TaskProfile) *TaskProfile {
	var best *TaskProfile
	for _, p := range profiles {
		if best == nil || p.Priority > best.Priority || (p.Priority == best.Priority && p.ID < best.ID) {
			best = p
		}
	}
	return best
}
