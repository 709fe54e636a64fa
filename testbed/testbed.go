// Package testbed is vixen's minimal node-author demo: a handful of node
// types exercising the producer/relay/sink shape, wired up exactly the way
// a real node author would use the graph-builder API.
package testbed

import (
	"context"
	"fmt"

	"github.com/vixen-gfx/vixen/connect"
	"github.com/vixen-gfx/vixen/engine"
	"github.com/vixen-gfx/vixen/graph"
	"github.com/vixen-gfx/vixen/resource"
)

// bufferSourceBehavior publishes one TagBuffer resource per compile,
// created through the Runtime's GPU backend.
type bufferSourceBehavior struct {
	sizeBytes uint64
	handle    *resource.Value
}

func (b *bufferSourceBehavior) Setup(*graph.SetupContext) error { return nil }

func (b *bufferSourceBehavior) Compile(ctx *graph.CompileContext) error {
	v, err := resource.New(resource.TagBuffer, resource.BufferDescriptor{
		SizeBytes: b.sizeBytes,
		Usage:     resource.BufferUsageStorage,
	}, resource.Transient, resource.DeviceLocal)
	if err != nil {
		return err
	}
	if err := v.Publish(resource.TagBuffer, "buffer-handle"); err != nil {
		return err
	}
	b.handle = v
	return ctx.Out(0, v)
}

func (b *bufferSourceBehavior) Execute(ctx *graph.ExecuteContext) error {
	ctx.Emit(graph.VirtualTask{
		ProfileID:      "testbed.source.upload",
		CostEstimateNs: 200_000,
		Run:            func(context.Context) error { return nil },
	})
	return nil
}

func (b *bufferSourceBehavior) Cleanup(*graph.CleanupContext) error { return nil }

// relayBehavior passes its single scalar input straight through to its
// single output, demonstrating a Dependency+Execute input role.
type relayBehavior struct{}

func (b *relayBehavior) Setup(*graph.SetupContext) error { return nil }

func (b *relayBehavior) Compile(ctx *graph.CompileContext) error {
	in, err := ctx.In(0)
	if err != nil {
		return err
	}
	return ctx.Out(0, in)
}

func (b *relayBehavior) Execute(ctx *graph.ExecuteContext) error {
	ctx.Emit(graph.VirtualTask{
		ProfileID:      "testbed.relay.pass",
		CostEstimateNs: 50_000,
	})
	return nil
}

func (b *relayBehavior) Cleanup(*graph.CleanupContext) error { return nil }

// sinkBehavior has no outputs; it counts how many frames it has executed,
// standing in for a presentation node.
type sinkBehavior struct {
	frames int
}

func (b *sinkBehavior) Setup(*graph.SetupContext) error   { return nil }
func (b *sinkBehavior) Compile(*graph.CompileContext) error { return nil }

func (b *sinkBehavior) Execute(ctx *graph.ExecuteContext) error {
	if _, err := ctx.In(0); err != nil {
		return err
	}
	b.frames++
	ctx.Emit(graph.VirtualTask{ProfileID: "testbed.sink.present", CostEstimateNs: 100_000})
	return nil
}

func (b *sinkBehavior) Cleanup(*graph.CleanupContext) error { return nil }

// Register installs the demo node types ("buffer-source", "relay", "sink")
// into reg.
func Register(reg *graph.Registry) error {
	types := []*graph.NodeType{
		{
			Name:    "buffer-source",
			Outputs: []graph.OutputSlot{{Index: 0, Name: "out", Type: resource.TagBuffer, Lifetime: resource.Transient}},
			New:     func() graph.NodeBehavior { return &bufferSourceBehavior{sizeBytes: 1 << 20} },
		},
		{
			Name:    "relay",
			Inputs:  []graph.InputSlot{{Index: 0, Name: "in", Type: resource.TagBuffer, Role: connect.RoleDependency | connect.RoleExecute}},
			Outputs: []graph.OutputSlot{{Index: 0, Name: "out", Type: resource.TagBuffer, Lifetime: resource.Transient}},
			New:     func() graph.NodeBehavior { return &relayBehavior{} },
		},
		{
			Name:   "sink",
			Inputs: []graph.InputSlot{{Index: 0, Name: "in", Type: resource.TagBuffer, Role: connect.RoleDependency | connect.RoleExecute}},
			New:    func() graph.NodeBehavior { return &sinkBehavior{} },
		},
	}
	for _, t := range types {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Build constructs the chain-of-three demo graph on rt's registry:
// "A" (buffer-source) -> "B" (relay) -> "C" (sink).
func Build(rt *engine.Runtime) error {
	if err := Register(rt.Registry); err != nil {
		return err
	}
	a, err := rt.Graph.AddNode("buffer-source", "A")
	if err != nil {
		return fmt.Errorf("testbed: add A: %w", err)
	}
	b, err := rt.Graph.AddNode("relay", "B")
	if err != nil {
		return fmt.Errorf("testbed: add B: %w", err)
	}
	c, err := rt.Graph.AddNode("sink", "C")
	if err != nil {
		return fmt.Errorf("testbed: add C: %w", err)
	}
	if _, err := rt.Graph.Connect(a, 0, b, 0); err != nil {
		return fmt.Errorf("testbed: connect A->B: %w", err)
	}
	if _, err := rt.Graph.Connect(b, 0, c, 0); err != nil {
		return fmt.Errorf("testbed: connect B->C: %w", err)
	}
	return nil
}
