package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vixen-gfx/vixen/budget"
	"github.com/vixen-gfx/vixen/config"
	"github.com/vixen-gfx/vixen/engine"
	"github.com/vixen-gfx/vixen/gpu"
	"github.com/vixen-gfx/vixen/vlog"
)

func newRuntime(t *testing.T) *engine.Runtime {
	t.Helper()
	cfg := config.Default()
	cfg.CalibrationStorePath = filepath.Join(t.TempDir(), "calibration.json")

	rt, err := engine.New(engine.Options{
		Config:      cfg,
		Backend:     gpu.NewFake(gpu.MemoryBudget{BudgetBytes: 1 << 30, AllocationSize: 4096}),
		Fingerprint: budget.HardwareFingerprint{Vendor: "test", Device: "fake", DriverVersion: "0.0.0"},
		Log:         vlog.Nop(),
	})
	require.NoError(t, err)
	return rt
}

func TestNewRequiresBackend(t *testing.T) {
	_, err := engine.New(engine.Options{})
	require.Error(t, err)
}

func TestLifecycleStages(t *testing.T) {
	rt := newRuntime(t)
	assert.Equal(t, engine.StageUninitialized, rt.Stage())

	require.NoError(t, rt.Initialize())
	assert.Equal(t, engine.StageInitialized, rt.Stage())

	_, err := rt.RunFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.StageRunning, rt.Stage())

	require.NoError(t, rt.Shutdown())
	assert.Equal(t, engine.StageUninitialized, rt.Stage())
}

func TestShutdownPersistsCalibration(t *testing.T) {
	rt := newRuntime(t)
	require.NoError(t, rt.Initialize())
	_, err := rt.RunFrame(context.Background())
	require.NoError(t, err)
	require.NoError(t, rt.Shutdown())

	_, err = os.Stat(rt.Config.CalibrationStorePath)
	require.NoError(t, err, "calibration store should exist after shutdown")
}

func TestRunFrameOnEmptyGraph(t *testing.T) {
	rt := newRuntime(t)
	require.NoError(t, rt.Initialize())
	defer rt.Shutdown()

	stats, err := rt.RunFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.FrameNumber)
	assert.Zero(t, stats.TasksRun)
}
