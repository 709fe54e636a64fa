package graph

import "context"

// VirtualTask is one schedulable unit of GPU/CPU work emitted by a node
// during Execute. A node's Execute hook is a composite over zero or more of
// these: the hook itself only builds and Emits tasks via ExecuteContext, it
// does not run them directly. The owning executor runs the emitted tasks in
// topological/emission order, respecting budget and parallelism.
type VirtualTask struct {
	// Node is the emitting node, filled in by ExecuteContext.Emit.
	Node NodeID
	// EmissionIndex orders tasks from the same node.
	EmissionIndex int
	// ProfileID names the budget.TaskProfile this task's cost is modeled
	// by; empty means the task carries no calibration handle.
	ProfileID string
	// WorkUnits is the profile parameter this invocation ran at, recorded
	// so the caller can Sampler.Finalize the right profile after running.
	WorkUnits float64
	// CostEstimateNs is this task's estimated cost, used by exec.TaskQueue
	// for budget admission.
	CostEstimateNs int64
	// Priority is a budget/eviction attribute consulted by the pressure
	// valve and eviction policies; it never reorders execution, which
	// always follows topological then emission order.
	Priority uint8
	// ParallelSafe marks a task as safe to run concurrently with other
	// parallel-safe tasks at the same topological level.
	ParallelSafe bool
	// Run is the task's execute closure. It receives the frame's
	// cancellation context and must honor it at suspension points.
	Run func(ctx context.Context) error
}
