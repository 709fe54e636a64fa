package exec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vixen-gfx/vixen/budget"
	"github.com/vixen-gfx/vixen/exec"
	"github.com/vixen-gfx/vixen/graph"
)

func TestTaskQueueStrictRefusesOverBudget(t *testing.T) {
	q := exec.NewTaskQueue(exec.TaskBudget{GPUTimeBudgetNs: 100, CPUTimeBudgetNs: 100, Mode: budget.Strict}, nil)
	require.NoError(t, q.TryEnqueue(graph.VirtualTask{CostEstimateNs: 60}))
	err := q.TryEnqueue(graph.VirtualTask{CostEstimateNs: 60})
	assert.ErrorIs(t, err, exec.ErrBudgetExceeded)

	admitted := q.Drain()
	assert.Len(t, admitted, 1)
}

func TestTaskQueueLenientWarnsButAccepts(t *testing.T) {
	var warned bool
	q := exec.NewTaskQueue(exec.TaskBudget{GPUTimeBudgetNs: 100, CPUTimeBudgetNs: 100, Mode: budget.Lenient}, func(task graph.VirtualTask, consumed, budget int64) {
		warned = true
	})
	require.NoError(t, q.TryEnqueue(graph.VirtualTask{CostEstimateNs: 60}))
	require.NoError(t, q.TryEnqueue(graph.VirtualTask{CostEstimateNs: 60}))
	assert.True(t, warned)
	assert.Len(t, q.Drain(), 2)
}

// TestTaskQueueDrainsInAdmissionOrder: the executor enqueues tasks in the
// plan's topological walk order, so Drain must preserve that order even
// when a later task carries a higher Priority — Priority is a budget
// attribute, not a scheduling-order key.
func TestTaskQueueDrainsInAdmissionOrder(t *testing.T) {
	q := exec.NewTaskQueue(exec.TaskBudget{GPUTimeBudgetNs: 1000, CPUTimeBudgetNs: 1000, Mode: budget.Lenient}, nil)
	require.NoError(t, q.TryEnqueue(graph.VirtualTask{Priority: 1, EmissionIndex: 0}))
	require.NoError(t, q.TryEnqueue(graph.VirtualTask{Priority: 5, EmissionIndex: 1}))
	require.NoError(t, q.TryEnqueue(graph.VirtualTask{Priority: 5, EmissionIndex: 0}))

	admitted := q.Drain()
	require.Len(t, admitted, 3)
	assert.Equal(t, uint8(1), admitted[0].Priority)
	assert.Equal(t, uint8(5), admitted[1].Priority)
	assert.Equal(t, 1, admitted[1].EmissionIndex)
	assert.Equal(t, uint8(5), admitted[2].Priority)
	assert.Equal(t, 0, admitted[2].EmissionIndex)
}

func TestPresetBudget60FPS(t *testing.T) {
	b := exec.PresetBudget(60, budget.Strict)
	assert.InDelta(t, 16_666_666, b.GPUTimeBudgetNs, 1)
}
