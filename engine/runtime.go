// Package engine ties vixen's subsystems (config, gpu, staging, budget,
// graph, exec, event) into the single top-level object an embedding
// application constructs: a Runtime.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/vixen-gfx/vixen/budget"
	"github.com/vixen-gfx/vixen/config"
	"github.com/vixen-gfx/vixen/connect"
	"github.com/vixen-gfx/vixen/event"
	"github.com/vixen-gfx/vixen/exec"
	"github.com/vixen-gfx/vixen/gpu"
	"github.com/vixen-gfx/vixen/graph"
	"github.com/vixen-gfx/vixen/lifetime"
	"github.com/vixen-gfx/vixen/staging"
	"github.com/vixen-gfx/vixen/vlog"
)

// Stage is the runtime's coarse lifecycle state.
type Stage uint8

const (
	StageUninitialized Stage = iota
	StageBooting
	StageBootComplete
	StageInitializing
	StageInitialized
	StageRunning
	StageShuttingDown
)

// Runtime is vixen's embeddable render-graph runtime: one GPU backend, one
// staging pool, one calibration store, one graph, and the executor driving
// it frame by frame.
type Runtime struct {
	Config   config.Config
	Backend  gpu.Backend
	Staging  *staging.Pool
	Uploader *staging.Uploader
	Bus      *event.Bus
	Registry *graph.Registry
	Graph    *graph.Graph
	Executor *exec.Executor
	Log      *vlog.Logger

	calibration *budget.CalibrationStore
	fingerprint budget.HardwareFingerprint

	stage Stage
}

// Options configures Runtime construction.
type Options struct {
	Config      config.Config
	Backend     gpu.Backend // required; use gpu.NewFake for headless/testing
	Fingerprint budget.HardwareFingerprint
	Pipeline    *connect.Pipeline
	Log         *vlog.Logger
}

// New constructs a Runtime in StageUninitialized. Call Initialize before
// RunFrame.
func New(opts Options) (*Runtime, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("engine: Options.Backend is required")
	}
	log := opts.Log
	if log == nil {
		log = vlog.New(vlog.Options{Prefix: "vixen"})
	}

	r := &Runtime{
		Config:      opts.Config,
		Backend:     opts.Backend,
		Bus:         event.New(),
		Registry:    graph.NewRegistry(),
		Log:         log,
		fingerprint: opts.Fingerprint,
		stage:       StageUninitialized,
	}
	r.Graph = graph.New(r.Registry, opts.Pipeline)
	return r, nil
}

// Initialize stands up the staging pool, calibration store, and executor,
// then runs the initial Compile.
func (r *Runtime) Initialize() error {
	r.stage = StageInitializing

	pool, err := staging.NewPool(r.Backend, r.Config.StagingTierCounts, func(tier staging.Tier, total int) {
		r.Log.Warnf("staging pool grew tier %s beyond pre-warmed count to %d", tier, total)
	})
	if err != nil {
		r.stage = StageUninitialized
		return fmt.Errorf("engine: staging pool: %w", err)
	}
	r.Staging = pool

	uploader, err := staging.NewUploader(r.Backend, pool)
	if err != nil {
		r.stage = StageUninitialized
		return fmt.Errorf("engine: uploader: %w", err)
	}
	r.Uploader = uploader

	r.calibration = budget.NewCalibrationStore(r.Config.CalibrationStorePath)
	if mismatches, err := r.calibration.Load(); err != nil {
		r.Log.Warnf("calibration store load failed, starting cold: %v", err)
	} else if len(mismatches) > 0 {
		r.Log.Warnf("calibration store has %d driver-version mismatches, warned and loaded anyway", len(mismatches))
	}

	compiler := graph.NewCompiler(2)
	taskBudget := exec.PresetBudget(r.Config.TargetFrameRate, budget.Lenient)
	queue := exec.NewTaskQueue(taskBudget, func(task graph.VirtualTask, consumedNs, budgetNs int64) {
		r.Log.Warnf("task %s exceeded budget: %dns > %dns", task.Node, consumedNs, budgetNs)
	})
	profiles := budget.NewTaskProfileRegistry()
	capacity := budget.NewCapacityTracker(30, int64(time.Second/time.Duration(r.Config.TargetFrameRate)), r.Config.OverrunThreshold, r.Config.AvailableThreshold)
	deferred := lifetime.NewDeferredQueue(r.Graph.NodeCount(), 4, 2, func(oldCap, newCap int) {
		r.Log.Warnf("deferred destruction queue grew from %d to %d entries", oldCap, newCap)
	})
	scopes := lifetime.NewScopeManager()

	r.Executor = exec.New(r.Graph, compiler, r.Bus, queue, profiles, capacity, deferred, scopes,
		exec.WithWorkers(r.Config.WorkerPoolSize))

	if err := r.Executor.Compile(); err != nil {
		r.stage = StageUninitialized
		return fmt.Errorf("engine: initial compile: %w", err)
	}

	r.stage = StageInitialized
	return nil
}

// RunFrame drives one frame through the executor.
func (r *Runtime) RunFrame(ctx context.Context) (exec.FrameStats, error) {
	r.stage = StageRunning
	return r.Executor.RenderFrame(ctx)
}

// Shutdown shuts down the executor (which publishes ApplicationShuttingDown
// and runs node cleanup) and saves calibration data. It does not release
// the staging pool's buffers or other backend resources.
func (r *Runtime) Shutdown() error {
	r.stage = StageShuttingDown
	if r.Executor != nil {
		if err := r.Executor.Shutdown(); err != nil {
			r.Log.Errorf("executor shutdown: %v", err)
		}
	}
	if r.calibration != nil {
		if err := r.calibration.Save(); err != nil {
			r.Log.Errorf("calibration store save: %v", err)
		}
	}
	r.stage = StageUninitialized
	return nil
}

// Stage reports the runtime's current lifecycle stage.
func (r *Runtime) Stage() Stage { return r.stage }
