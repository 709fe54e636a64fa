package testbed_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vixen-gfx/vixen/budget"
	"github.com/vixen-gfx/vixen/config"
	"github.com/vixen-gfx/vixen/engine"
	"github.com/vixen-gfx/vixen/gpu"
	"github.com/vixen-gfx/vixen/graph"
	"github.com/vixen-gfx/vixen/testbed"
	"github.com/vixen-gfx/vixen/vlog"
)

// TestBuildAndRunFrames exercises the demo chain end to end: build,
// initialize, and run a few frames against the fake GPU backend.
func TestBuildAndRunFrames(t *testing.T) {
	backend := gpu.NewFake(gpu.MemoryBudget{BudgetBytes: 1 << 30, AllocationSize: 4096})
	cfg := config.Default()
	cfg.CalibrationStorePath = filepath.Join(t.TempDir(), "calibration.json")
	rt, err := engine.New(engine.Options{
		Config:      cfg,
		Backend:     backend,
		Fingerprint: budget.HardwareFingerprint{Vendor: "test", Device: "fake", DriverVersion: "0.0.0"},
		Log:         vlog.Nop(),
	})
	require.NoError(t, err)

	require.NoError(t, testbed.Build(rt))
	require.NoError(t, rt.Initialize())
	defer rt.Shutdown()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := rt.RunFrame(ctx)
		require.NoError(t, err)
	}
}

// TestRegisterRejectsDuplicate ensures a second Register call on the same
// registry surfaces the duplicate-name error rather than silently
// reinstalling the node types.
func TestRegisterRejectsDuplicate(t *testing.T) {
	reg := graph.NewRegistry()
	require.NoError(t, testbed.Register(reg))
	require.Error(t, testbed.Register(reg))
}
