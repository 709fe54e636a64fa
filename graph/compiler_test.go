package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vixen-gfx/vixen/connect"
	"github.com/vixen-gfx/vixen/graph"
	"github.com/vixen-gfx/vixen/resource"
)

// TestConnectTypeMismatchRejectedBeforeCompile verifies a connection
// between incompatible types fails at Connect, not at Compile.
func TestConnectTypeMismatchRejectedBeforeCompile(t *testing.T) {
	reg := graph.NewRegistry()
	require.NoError(t, reg.Register(&graph.NodeType{
		Name:    "bufferProducer",
		Outputs: []graph.OutputSlot{{Index: 0, Name: "out", Type: resource.TagBuffer, Lifetime: resource.Transient}},
		New:     func() graph.NodeBehavior { return &passthroughBehavior{outTag: resource.TagBuffer} },
	}))
	require.NoError(t, reg.Register(&graph.NodeType{
		Name:   "imageConsumer",
		Inputs: []graph.InputSlot{{Index: 0, Name: "in", Type: resource.TagImage, Role: connect.RoleDependency | connect.RoleExecute}},
		New:    func() graph.NodeBehavior { return &passthroughBehavior{} },
	}))

	g := graph.New(reg, nil)
	a, _ := g.AddNode("bufferProducer", "A")
	b, _ := g.AddNode("imageConsumer", "B")

	_, err := g.Connect(a, 0, b, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type mismatch")
}

// TestTransientDeathNeverExceedsLastConsumer and
// TestPersistentBindingSpansWholePlan together verify a Transient
// resource's death index is bounded by its last consumer, while a
// Persistent resource's death index is pinned to the end of the plan.
func TestTransientDeathNeverExceedsLastConsumer(t *testing.T) {
	g := graph.New(newRegistry(t), nil)
	a, _ := g.AddNode("producer", "A")
	b, _ := g.AddNode("relay", "B")
	c, _ := g.AddNode("sink", "C")
	_, err := g.Connect(a, 0, b, 0)
	require.NoError(t, err)
	_, err = g.Connect(b, 0, c, 0)
	require.NoError(t, err)

	compiler := graph.NewCompiler(1)
	plan, err := compiler.Compile(g)
	require.NoError(t, err)

	for _, binding := range plan.Bindings {
		assert.LessOrEqual(t, binding.Death, len(plan.Order)-1)
		assert.GreaterOrEqual(t, binding.Death, binding.Birth)
	}
}

type persistentProducer struct{}

func (p *persistentProducer) Setup(*graph.SetupContext) error { return nil }

func (p *persistentProducer) Compile(ctx *graph.CompileContext) error {
	v, err := resource.New(resource.TagBuffer, struct{}{}, resource.Persistent, resource.DeviceLocal)
	if err != nil {
		return err
	}
	if err := v.Publish(resource.TagBuffer, "handle"); err != nil {
		return err
	}
	return ctx.Out(0, v)
}

func (p *persistentProducer) Execute(*graph.ExecuteContext) error { return nil }
func (p *persistentProducer) Cleanup(*graph.CleanupContext) error { return nil }

func TestPersistentBindingSpansWholePlan(t *testing.T) {
	reg := graph.NewRegistry()
	require.NoError(t, reg.Register(&graph.NodeType{
		Name:    "persistentProducer",
		Outputs: []graph.OutputSlot{{Index: 0, Name: "out", Type: resource.TagBuffer, Lifetime: resource.Persistent}},
		New:     func() graph.NodeBehavior { return &persistentProducer{} },
	}))
	require.NoError(t, reg.Register(&graph.NodeType{
		Name:   "consumer",
		Inputs: []graph.InputSlot{{Index: 0, Name: "in", Type: resource.TagBuffer, Role: connect.RoleDependency | connect.RoleExecute}},
		New:    func() graph.NodeBehavior { return &passthroughBehavior{} },
	}))

	g := graph.New(reg, nil)
	p, _ := g.AddNode("persistentProducer", "P")
	c, _ := g.AddNode("consumer", "C")
	_, err := g.Connect(p, 0, c, 0)
	require.NoError(t, err)

	compiler := graph.NewCompiler(1)
	plan, err := compiler.Compile(g)
	require.NoError(t, err)
	require.Len(t, plan.Bindings, 1)
	assert.Equal(t, len(plan.Order)-1, plan.Bindings[0].Death)
}

// TestRecompileOnlyWalksDependentSet verifies Recompile scopes Setup/Compile
// to the transitive dependent set of dirty nodes.
func TestRecompileOnlyWalksDependentSet(t *testing.T) {
	g := graph.New(newRegistry(t), nil)
	a, _ := g.AddNode("producer", "A")
	b, _ := g.AddNode("relay", "B")
	c, _ := g.AddNode("sink", "C")
	_, err := g.Connect(a, 0, b, 0)
	require.NoError(t, err)
	_, err = g.Connect(b, 0, c, 0)
	require.NoError(t, err)

	compiler := graph.NewCompiler(1)
	_, err = compiler.Compile(g)
	require.NoError(t, err)

	nb, _ := g.Node(b)
	require.NoError(t, g.RemoveNode(b))
	b2, err := g.AddNode("relay", "B2")
	require.NoError(t, err)
	_, err = g.Connect(a, 0, b2, 0)
	require.NoError(t, err)
	_, err = g.Connect(b2, 0, c, 0)
	require.NoError(t, err)

	plan, err := compiler.Recompile(g)
	require.NoError(t, err)
	require.Len(t, plan.Order, 3)
	assert.Equal(t, graph.StateCleaned, nb.State)
}

type pipelineRequester struct {
	built   int
	handles []graph.PipelineHandle
}

func (p *pipelineRequester) Setup(*graph.SetupContext) error { return nil }

func (p *pipelineRequester) Compile(ctx *graph.CompileContext) error {
	type pipelineDescriptor struct{ Stage string }
	handle, err := ctx.RequestPipeline(pipelineDescriptor{Stage: "triangle"}, 128, func() (graph.PipelineHandle, error) {
		p.built++
		return "compiled-pipeline", nil
	})
	if err != nil {
		return err
	}
	p.handles = append(p.handles, handle)
	return nil
}

func (p *pipelineRequester) Execute(*graph.ExecuteContext) error { return nil }
func (p *pipelineRequester) Cleanup(*graph.CleanupContext) error { return nil }

// TestRequestPipelineCachesByDescriptorHash verifies cache idempotency at
// the graph level: two nodes requesting pipelines built from equal
// descriptors share one cached build.
func TestRequestPipelineCachesByDescriptorHash(t *testing.T) {
	reg := graph.NewRegistry()
	p1 := &pipelineRequester{}
	p2 := &pipelineRequester{}
	require.NoError(t, reg.Register(&graph.NodeType{
		Name: "p1",
		New:  func() graph.NodeBehavior { return p1 },
	}))
	require.NoError(t, reg.Register(&graph.NodeType{
		Name: "p2",
		New:  func() graph.NodeBehavior { return p2 },
	}))

	g := graph.New(reg, nil)
	_, err := g.AddNode("p1", "P1")
	require.NoError(t, err)
	_, err = g.AddNode("p2", "P2")
	require.NoError(t, err)

	compiler := graph.NewCompiler(1)
	_, err = compiler.Compile(g)
	require.NoError(t, err)

	require.Len(t, p1.handles, 1)
	require.Len(t, p2.handles, 1)
	assert.Equal(t, p1.handles[0], p2.handles[0])
	assert.Equal(t, 1, p1.built+p2.built)
}

// TestUnconsumedOutputFlagged: an output no edge delivers to any consumer
// is flagged in the plan's bindings; a consumed output is not.
func TestUnconsumedOutputFlagged(t *testing.T) {
	g := graph.New(newRegistry(t), nil)
	a, _ := g.AddNode("producer", "A")
	b, _ := g.AddNode("relay", "B")
	_, err := g.Connect(a, 0, b, 0)
	require.NoError(t, err)

	plan, err := graph.NewCompiler(2).Compile(g)
	require.NoError(t, err)
	require.Len(t, plan.Bindings, 2)

	byBirth := map[int]graph.ResourceBinding{}
	for _, bind := range plan.Bindings {
		byBirth[bind.Birth] = bind
	}
	assert.False(t, byBirth[0].Unconsumed, "A's output is consumed by B")
	assert.True(t, byBirth[1].Unconsumed, "B's output has no consumer")
}
