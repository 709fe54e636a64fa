package exec

import (
	"fmt"
	"sync"

	"github.com/vixen-gfx/vixen/budget"
	"github.com/vixen-gfx/vixen/graph"
)

// WarnFunc is invoked when a task is accepted in Lenient mode despite
// exceeding its budget.
type WarnFunc func(task graph.VirtualTask, consumedNs, budgetNs int64)

// TaskQueue is a budget-aware admission queue: TryEnqueue admits a task
// against the remaining budget, refusing it in Strict mode or warning and
// accepting it in Lenient mode. Drain returns admitted tasks strictly in
// admission order — the executor enqueues tasks as the Execute walk emits
// them, so admission order already reflects the owning nodes' topological
// order with each node's tasks in emission order. A task's Priority is a
// budget/eviction attribute consulted by the pressure valve, never a
// scheduling-order key.
type TaskQueue struct {
	mu sync.Mutex

	budget TaskBudget
	onWarn WarnFunc

	consumedGPUNs int64
	consumedCPUNs int64

	pending []graph.VirtualTask
}

// ErrBudgetExceeded is returned by TryEnqueue in Strict mode when admitting
// the task would exceed either budget channel.
var ErrBudgetExceeded = fmt.Errorf("exec: task exceeds frame budget")

// NewTaskQueue constructs an empty queue enforcing b, calling onWarn (if
// non-nil) whenever a Lenient-mode admission exceeds budget.
func NewTaskQueue(b TaskBudget, onWarn WarnFunc) *TaskQueue {
	return &TaskQueue{budget: b, onWarn: onWarn}
}

// Reset clears consumed usage and any still-queued tasks, called once per
// frame before tasks are enqueued.
func (q *TaskQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.consumedGPUNs = 0
	q.consumedCPUNs = 0
	q.pending = q.pending[:0]
}

// TryEnqueue admits task if consumed+CostEstimateNs fits within budget on
// both channels. In Strict mode an over-budget task is refused
// (ErrBudgetExceeded, task not queued). In Lenient mode it is always
// admitted, invoking onWarn when it pushes either channel over budget.
func (q *TaskQueue) TryEnqueue(task graph.VirtualTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	nextGPU := q.consumedGPUNs + task.CostEstimateNs
	nextCPU := q.consumedCPUNs + task.CostEstimateNs
	overGPU := nextGPU > q.budget.GPUTimeBudgetNs
	overCPU := nextCPU > q.budget.CPUTimeBudgetNs

	if (overGPU || overCPU) && q.budget.Mode == budget.Strict {
		return ErrBudgetExceeded
	}
	if (overGPU || overCPU) && q.onWarn != nil {
		budgetNs := q.budget.GPUTimeBudgetNs
		consumed := nextGPU
		if overCPU && !overGPU {
			budgetNs = q.budget.CPUTimeBudgetNs
			consumed = nextCPU
		}
		q.onWarn(task, consumed, budgetNs)
	}

	q.consumedGPUNs = nextGPU
	q.consumedCPUNs = nextCPU
	q.pending = append(q.pending, task)
	return nil
}

// Drain pops every admitted task in admission order, clearing the queue.
func (q *TaskQueue) Drain() []graph.VirtualTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]graph.VirtualTask, len(q.pending))
	copy(out, q.pending)
	q.pending = q.pending[:0]
	return out
}

// ConsumedNs reports the queue's current consumed GPU/CPU nanoseconds.
func (q *TaskQueue) ConsumedNs() (gpu, cpu int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.consumedGPUNs, q.consumedCPUNs
}
