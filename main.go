// Command vixen-demo is a minimal embedding application for vixen's
// render-graph runtime: it stands up a Runtime against the fake, headless
// GPU backend, builds the testbed's chain-of-three demo graph, and drives
// it for a handful of frames.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vixen-gfx/vixen/budget"
	"github.com/vixen-gfx/vixen/config"
	"github.com/vixen-gfx/vixen/engine"
	"github.com/vixen-gfx/vixen/gpu"
	"github.com/vixen-gfx/vixen/testbed"
	"github.com/vixen-gfx/vixen/vlog"
)

func main() {
	log := vlog.New(vlog.Options{Prefix: "vixen-demo"})

	backend := gpu.NewFake(gpu.MemoryBudget{
		BudgetBytes:    4 << 30,
		AllocationSize: 64 << 10,
	})

	rt, err := engine.New(engine.Options{
		Config:      config.Default(),
		Backend:     backend,
		Fingerprint: budget.HardwareFingerprint{Vendor: "fake", Device: "headless", DriverVersion: "0.0.0"},
		Log:         log,
	})
	if err != nil {
		log.Errorf("construct runtime: %v", err)
		os.Exit(1)
	}

	if err := testbed.Build(rt); err != nil {
		log.Errorf("build demo graph: %v", err)
		os.Exit(1)
	}

	if err := rt.Initialize(); err != nil {
		log.Errorf("initialize runtime: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		cancel()
	}()

	const frameCount = 120
	for i := 0; i < frameCount; i++ {
		if ctx.Err() != nil {
			break
		}
		stats, err := rt.RunFrame(ctx)
		if err != nil {
			log.Errorf("frame %d: %v", i, err)
			break
		}
		if i%30 == 0 {
			log.Infof("frame %d: elapsed=%dns tasksRun=%d tasksSkipped=%d verdict=%d",
				stats.FrameNumber, stats.ElapsedNs, stats.TasksRun, stats.TasksSkipped, stats.Verdict)
		}
	}

	if err := rt.Shutdown(); err != nil {
		log.Errorf("shutdown: %v", err)
		os.Exit(1)
	}
}
