package exec_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vbudget "github.com/vixen-gfx/vixen/budget"
	"github.com/vixen-gfx/vixen/event"
	"github.com/vixen-gfx/vixen/exec"
	"github.com/vixen-gfx/vixen/graph"
	"github.com/vixen-gfx/vixen/lifetime"
	"github.com/vixen-gfx/vixen/resource"
)

// emittingBehavior publishes a buffer output and emits one virtual task
// whose Run closure reports whether it executed.
type emittingBehavior struct {
	ran *int
}

func (b *emittingBehavior) Setup(*graph.SetupContext) error { return nil }

func (b *emittingBehavior) Compile(ctx *graph.CompileContext) error {
	v, err := resource.New(resource.TagBuffer, struct{}{}, resource.Transient, resource.DeviceLocal)
	if err != nil {
		return err
	}
	if err := v.Publish(resource.TagBuffer, "handle"); err != nil {
		return err
	}
	return ctx.Out(0, v)
}

func (b *emittingBehavior) Execute(ctx *graph.ExecuteContext) error {
	ctx.Emit(graph.VirtualTask{
		CostEstimateNs: 1_000,
		Run: func(context.Context) error {
			*b.ran++
			return nil
		},
	})
	return nil
}

func (b *emittingBehavior) Cleanup(*graph.CleanupContext) error { return nil }

func newExecGraph(t *testing.T, ran *int) (*graph.Graph, *graph.Compiler) {
	t.Helper()
	reg := graph.NewRegistry()
	require.NoError(t, reg.Register(&graph.NodeType{
		Name:    "producer",
		Outputs: []graph.OutputSlot{{Index: 0, Name: "out", Type: resource.TagBuffer, Lifetime: resource.Transient}},
		New:     func() graph.NodeBehavior { return &emittingBehavior{ran: ran} },
	}))
	g := graph.New(reg, nil)
	_, err := g.AddNode("producer", "A")
	require.NoError(t, err)
	return g, graph.NewCompiler(2)
}

func newExecutor(g *graph.Graph, compiler *graph.Compiler) *exec.Executor {
	bus := event.New()
	queue := exec.NewTaskQueue(exec.PresetBudget(60, vbudget.Lenient), nil)
	profiles := vbudget.NewTaskProfileRegistry()
	capacity := vbudget.NewCapacityTracker(4, 16_666_666, 1.1, 0.7)
	deferred := lifetime.NewDeferredQueue(4, 4, 2, nil)
	scopes := lifetime.NewScopeManager()
	return exec.New(g, compiler, bus, queue, profiles, capacity, deferred, scopes, exec.WithWorkers(2), exec.WithClock(fakeClock()))
}

func fakeClock() func() int64 {
	var n int64
	return func() int64 {
		n += 1_000_000
		return n
	}
}

func TestExecutorRenderFrameRunsEmittedTasks(t *testing.T) {
	var ran int
	g, compiler := newExecGraph(t, &ran)
	ex := newExecutor(g, compiler)

	require.NoError(t, ex.Compile())

	stats, err := ex.RenderFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.FrameNumber)
	assert.Equal(t, 1, stats.TasksRun)
	assert.Equal(t, 1, ran)
}

func TestExecutorRenderFrameBeforeCompileFails(t *testing.T) {
	var ran int
	g, compiler := newExecGraph(t, &ran)
	ex := newExecutor(g, compiler)

	_, err := ex.RenderFrame(context.Background())
	assert.ErrorIs(t, err, exec.ErrNotCompiled)
}

// TestExecutorPublishesFrameLifecycle verifies FrameStart/FrameEnd fire
// once per RenderFrame, in order, for every subscriber.
func TestExecutorPublishesFrameLifecycle(t *testing.T) {
	var ran int
	g, compiler := newExecGraph(t, &ran)
	ex := newExecutor(g, compiler)
	require.NoError(t, ex.Compile())

	var seen []string
	unsubStart := event.Subscribe(ex.Bus, func(event.FrameStart) { seen = append(seen, "start") })
	unsubEnd := event.Subscribe(ex.Bus, func(event.FrameEnd) { seen = append(seen, "end") })
	defer unsubStart()
	defer unsubEnd()

	_, err := ex.RenderFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "end"}, seen)
}

// TestExecutorOverBudgetTriggersPressureValve: a profile running
// persistently over its frame budget sees its workUnits decrease after
// enough consecutive overrun frames.
func TestExecutorOverBudgetTriggersPressureValve(t *testing.T) {
	var ran int
	g, compiler := newExecGraph(t, &ran)
	ex := newExecutor(g, compiler)
	require.NoError(t, ex.Compile())

	profile := vbudget.NewTaskProfile("heavy", resource.PriorityMedium, &vbudget.LinearModel{Baseline: 20_000_000}, 100, 10, 100)
	ex.Profiles.Register(profile)

	var overruns int
	unsub := event.Subscribe(ex.Bus, func(event.BudgetOverrun) { overruns++ })
	defer unsub()

	for i := 0; i < 4; i++ {
		// Each RenderFrame also records its own 3ms fake-clock frame, so the
		// injected sample must keep the window mean well over a 16.67ms target.
		ex.Capacity.Record(40_000_000)
		_, err := ex.RenderFrame(context.Background())
		require.NoError(t, err)
	}
	assert.Greater(t, overruns, 0)
	assert.Less(t, profile.WorkUnits(), 100.0)
}
