package exec

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/vixen-gfx/vixen/budget"
	"github.com/vixen-gfx/vixen/event"
	"github.com/vixen-gfx/vixen/graph"
	"github.com/vixen-gfx/vixen/lifetime"
	"github.com/vixen-gfx/vixen/vlog"
)

// FrameStats summarizes one RenderFrame call, returned alongside any error
// for callers that want per-frame diagnostics without subscribing to the
// event bus.
type FrameStats struct {
	FrameNumber   uint64
	TasksRun      int
	TasksSkipped  int // refused by TryEnqueue in Strict mode, or not started because the frame was cancelled
	ElapsedNs     int64
	DeferredFreed int
	Verdict       budget.Verdict
}

// Executor drives one Graph's per-frame execution. RenderFrame publishes
// FrameStart/FrameEnd on the bus and calls the task profile registry,
// deferred destruction queue, scope manager, and capacity tracker directly
// at fixed points in the frame; none of them subscribes to the bus.
type Executor struct {
	Graph    *graph.Graph
	Compiler *graph.Compiler
	Bus      *event.Bus

	Queue    *TaskQueue
	Profiles *budget.TaskProfileRegistry
	Capacity *budget.CapacityTracker
	Deferred *lifetime.DeferredQueue
	Scopes   *lifetime.ScopeManager

	Workers int
	Clock   func() int64 // unix nanos; overridable in tests
	Log     *vlog.Logger

	mu        sync.Mutex
	plan      *graph.Plan
	cancel    context.CancelCauseFunc
	cancelled bool
}

// Option configures an Executor at construction.
type Option func(*Executor)

// WithWorkers sets the worker-pool size used to run ParallelSafe tasks
// concurrently. Defaults to runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(e *Executor) { e.Workers = n }
}

// WithClock overrides the executor's timestamp source (tests only; default
// is time.Now().UnixNano).
func WithClock(clock func() int64) Option {
	return func(e *Executor) { e.Clock = clock }
}

// New constructs an Executor wired to g, publishing frame-lifecycle events
// on b and driving the given task queue/profile registry/capacity tracker/
// deferred queue/scope manager directly from RenderFrame.
func New(g *graph.Graph, compiler *graph.Compiler, b *event.Bus, queue *TaskQueue, profiles *budget.TaskProfileRegistry, capacity *budget.CapacityTracker, deferred *lifetime.DeferredQueue, scopes *lifetime.ScopeManager, opts ...Option) *Executor {
	e := &Executor{
		Graph:    g,
		Compiler: compiler,
		Bus:      b,
		Queue:    queue,
		Profiles: profiles,
		Capacity: capacity,
		Deferred: deferred,
		Scopes:   scopes,
		Workers:  runtime.NumCPU(),
		Clock:    func() int64 { return time.Now().UnixNano() },
		Log:      vlog.New(vlog.Options{Prefix: "vixen/exec"}),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Compile runs (or re-runs) the graph's compiler and stores the resulting
// plan for subsequent RenderFrame calls.
func (e *Executor) Compile() error {
	plan, err := e.Compiler.Compile(e.Graph)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.plan = plan
	e.mu.Unlock()
	event.Publish(e.Bus, event.GraphCompilationComplete{NodeCount: len(plan.Order), EdgeCount: e.Graph.EdgeCount()})
	return nil
}

// Recompile re-runs the dirty-set-scoped recompile and stores the result.
func (e *Executor) Recompile() error {
	plan, err := e.Compiler.Recompile(e.Graph)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.plan = plan
	e.mu.Unlock()
	event.Publish(e.Bus, event.GraphCompilationComplete{NodeCount: len(plan.Order), EdgeCount: e.Graph.EdgeCount()})
	return nil
}

// ErrNotCompiled is returned by RenderFrame when called before a successful
// Compile.
var ErrNotCompiled = fmt.Errorf("exec: graph has not been compiled")

// ErrCancelled is returned by RenderFrame for a frame during or before
// which Cancel was called.
var ErrCancelled = fmt.Errorf("exec: frame cancelled")

// Cancel sets the executor's per-run cancel cause, typically on device
// loss. Cancellation is per-frame and cooperative: queued non-started tasks
// for the in-flight frame are discarded, and RenderFrame still runs
// FrameEnd's bookkeeping afterward.
func (e *Executor) Cancel(cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled = true
	if e.cancel != nil {
		e.cancel(cause)
	}
}

// RenderFrame runs exactly one frame: publish FrameStart, drive the plan's
// nodes through Execute collecting virtual tasks, run those tasks through
// the budget-aware queue (parallel-safe runs of tasks dispatched across a
// worker pool), record capacity, and publish FrameEnd. Pending profile
// adjustments, deferred retirement, and the frame scope are handled by
// direct calls right after FrameStart.
func (e *Executor) RenderFrame(ctx context.Context) (FrameStats, error) {
	e.mu.Lock()
	plan := e.plan
	e.mu.Unlock()
	if plan == nil {
		return FrameStats{}, ErrNotCompiled
	}

	frameNumber := e.Graph.FrameCounter() + 1
	start := e.Clock()

	runCtx, cancel := context.WithCancelCause(ctx)
	e.mu.Lock()
	e.cancel = cancel
	cancelledAlready := e.cancelled
	e.mu.Unlock()
	defer cancel(nil)
	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.cancelled = false
		e.mu.Unlock()
	}()
	if cancelledAlready {
		cancel(ErrCancelled)
	}

	event.Publish(e.Bus, event.FrameStart{FrameNumber: frameNumber, Timestamp: start})

	e.Profiles.ApplyPendingAdjustments()
	freed := e.Deferred.Retire(frameNumber)
	e.Scopes.BeginFrame()

	result, execErr := e.Graph.Execute(plan, frameNumber)
	if execErr != nil {
		e.Log.Error("frame execute failed", "frame", frameNumber, "err", execErr)
		end := e.Clock()
		event.Publish(e.Bus, event.FrameEnd{FrameNumber: frameNumber, Timestamp: end})
		return FrameStats{FrameNumber: frameNumber, DeferredFreed: freed, ElapsedNs: end - start}, execErr
	}

	ran, skipped := e.runTasks(runCtx, result.Tasks)

	end := e.Clock()
	elapsed := end - start
	e.Capacity.Record(elapsed)
	verdict, util := e.Capacity.Evaluate()
	switch verdict {
	case budget.VerdictOverrun:
		profile := e.Profiles.OnBudgetOverrun(0.10)
		id := ""
		if profile != nil {
			id = profile.ID
		}
		event.Publish(e.Bus, event.BudgetOverrun{ProfileID: id, Utilization: util})
	case budget.VerdictAvailable:
		profile := e.Profiles.OnBudgetAvailable(0.10)
		id := ""
		if profile != nil {
			id = profile.ID
		}
		event.Publish(e.Bus, event.BudgetAvailable{ProfileID: id, Remaining: util})
	}

	event.Publish(e.Bus, event.FrameEnd{FrameNumber: frameNumber, Timestamp: end})

	var err error
	e.mu.Lock()
	if e.cancelled {
		err = ErrCancelled
	}
	e.mu.Unlock()

	return FrameStats{
		FrameNumber:   frameNumber,
		TasksRun:      ran,
		TasksSkipped:  skipped,
		ElapsedNs:     elapsed,
		DeferredFreed: freed,
		Verdict:       verdict,
	}, err
}

// runTasks admits every task through the budget queue, draining it in
// admission (plan) order and running contiguous runs of ParallelSafe tasks
// across a worker pool. A task refused by the queue in Strict mode is
// skipped this frame (counted in skipped) rather than aborting the frame;
// only node logic errors abort, not scheduler admission refusals.
func (e *Executor) runTasks(ctx context.Context, tasks []graph.VirtualTask) (ran, skipped int) {
	e.Queue.Reset()
	for _, t := range tasks {
		if err := e.Queue.TryEnqueue(t); err != nil {
			skipped++
			continue
		}
	}
	admitted := e.Queue.Drain()

	sem := make(chan struct{}, maxInt(e.Workers, 1))
	var wg sync.WaitGroup
	var mu sync.Mutex

	i := 0
	for i < len(admitted) {
		if ctx.Err() != nil {
			skipped += len(admitted) - i
			break
		}
		// Batch a contiguous run of ParallelSafe tasks from the queue so
		// they may run concurrently; a non-parallel task runs alone.
		j := i + 1
		if admitted[i].ParallelSafe {
			for j < len(admitted) && admitted[j].ParallelSafe {
				j++
			}
		}
		batch := admitted[i:j]
		for _, t := range batch {
			t := t
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				e.runOne(ctx, t, &mu, &ran)
			}()
		}
		wg.Wait()
		i = j
	}
	return ran, skipped
}

func (e *Executor) runOne(ctx context.Context, t graph.VirtualTask, mu *sync.Mutex, ran *int) {
	if t.Run == nil {
		mu.Lock()
		*ran++
		mu.Unlock()
		return
	}
	startedAt := e.Clock()
	err := t.Run(ctx)
	measured := e.Clock() - startedAt
	if t.ProfileID != "" {
		if profile, ok := e.Profiles.Get(t.ProfileID); ok {
			profile.Sample(t.WorkUnits).Finalize(measured)
		}
	}
	if err != nil {
		e.Log.Warn("virtual task failed", "node", t.Node, "err", err)
	}
	mu.Lock()
	*ran++
	mu.Unlock()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Shutdown closes the graph (running every node's Cleanup and registered
// cleanup actions) and publishes ApplicationShuttingDown.
func (e *Executor) Shutdown() error {
	event.Publish(e.Bus, event.ApplicationShuttingDown{})
	return e.Graph.Shutdown()
}
