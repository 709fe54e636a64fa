// Package exec implements vixen's per-frame executor and budget-aware task
// scheduler. Each frame the executor collects the virtual tasks emitted by
// the graph's Execute walk, admits them through a TaskQueue against a
// per-frame TaskBudget, and runs them on a bounded worker pool.
package exec

import "github.com/vixen-gfx/vixen/budget"

// TaskBudget bounds one frame's worth of task execution cost.
// CostEstimateNs on a graph.VirtualTask is checked against both channels
// identically: a task's one estimate is assumed to bound its GPU submission
// cost and, as an upper bound, the CPU time spent recording it.
type TaskBudget struct {
	GPUTimeBudgetNs int64
	CPUTimeBudgetNs int64
	Mode            budget.Mode
}

// PresetBudget returns a TaskBudget sized to one frame at targetFPS, e.g.
// PresetBudget(60, budget.Strict) yields ~16.67ms per channel.
func PresetBudget(targetFPS float64, mode budget.Mode) TaskBudget {
	if targetFPS <= 0 {
		targetFPS = 60
	}
	ns := int64(1e9 / targetFPS)
	return TaskBudget{GPUTimeBudgetNs: ns, CPUTimeBudgetNs: ns, Mode: mode}
}

// Common frame-rate presets.
var (
	Budget30FPS  = PresetBudget(30, budget.Strict)
	Budget60FPS  = PresetBudget(60, budget.Strict)
	Budget120FPS = PresetBudget(120, budget.Strict)
)
