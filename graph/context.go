package graph

import (
	"fmt"

	"github.com/vixen-gfx/vixen/cache"
	"github.com/vixen-gfx/vixen/resource"
)

// errWrongPhase is wrapped into a node's phase-specific error to report an
// operation attempted outside the phase that permits it.
var errWrongPhase = fmt.Errorf("graph: operation not permitted in this phase")

// baseContext holds the fields shared by every phase context: the node
// under processing and the owning graph, kept unexported so node authors
// can only reach the graph through the phase-appropriate accessor methods
// below. A node accesses inputs/outputs only via its context; direct
// global state is forbidden.
type baseContext struct {
	node  *Node
	graph *Graph
}

// SetupContext is passed to NodeBehavior.Setup: read parameters, allocate
// persistent CPU resources, read input slot types — but not values — and
// never submit GPU work.
type SetupContext struct {
	baseContext
}

// Parameter returns the named parameter value set via SetParameter.
func (c *SetupContext) Parameter(name string) (resource.Value, bool) {
	v, ok := c.node.Parameters[name]
	return v, ok
}

// InputType returns the declared resource type of input slot index without
// requiring the slot to be bound yet.
func (c *SetupContext) InputType(index int) (resource.Tag, error) {
	slot, ok := c.node.Type.inputByIndex(index)
	if !ok {
		return 0, fmt.Errorf("graph: node %q has no input slot %d", c.node.Name, index)
	}
	return slot.Type, nil
}

// CompileContext is passed to NodeBehavior.Compile: read bound inputs,
// request resource descriptors, create derived resources via caches,
// register cleanup actions, and publish outputs.
type CompileContext struct {
	baseContext
	cleanups []func()
}

// Parameter returns the named parameter value set via SetParameter.
func (c *CompileContext) Parameter(name string) (resource.Value, bool) {
	v, ok := c.node.Parameters[name]
	return v, ok
}

// In returns the resource bound to input slot index, or an error if the
// slot is unbound and non-nullable.
func (c *CompileContext) In(index int) (*resource.Value, error) {
	slot, ok := c.node.Type.inputByIndex(index)
	if !ok {
		return nil, fmt.Errorf("graph: node %q has no input slot %d", c.node.Name, index)
	}
	v := c.node.inputs[index]
	if v == nil && !slot.Nullable {
		return nil, fmt.Errorf("graph: node %q: missing non-nullable input %d (%s)", c.node.Name, index, slot.Name)
	}
	return v, nil
}

// Out publishes value as the resource for output slot index. The value's
// tag must match the slot's declared type. For an Array slot this publishes
// a single bundle carrying the full collection; use OutAt to publish one
// value per bundle instead.
func (c *CompileContext) Out(index int, value *resource.Value) error {
	return publishOut(c.node, index, value)
}

// OutAt publishes value as bundle i of array output slot index, so a
// fan-out node can produce an array output by running its logic once per
// bundle. Bundles may be published in any order; gaps are nil until filled.
func (c *CompileContext) OutAt(index, i int, value *resource.Value) error {
	return publishOutAt(c.node, index, i, value)
}

// OnCleanup registers an action to run when the node reaches Cleanup. It
// must be idempotent.
func (c *CompileContext) OnCleanup(fn func()) {
	c.cleanups = append(c.cleanups, fn)
}

// RequestPipeline requests a GPU pipeline from the graph's pipeline cache.
// The descriptor is hashed structurally (cache.Hash); build is invoked only
// on a cache miss and must report the handle's cache footprint in
// sizeBytes. The returned handle's reference is released automatically when
// this node's Cleanup runs.
func (c *CompileContext) RequestPipeline(descriptor any, sizeBytes uint64, build func() (PipelineHandle, error)) (PipelineHandle, error) {
	key := cache.Hash(c.graph.pipelineSeed, descriptor)
	handle, err := c.graph.pipelineCache.GetOrCreate(key, sizeBytes, build)
	if err != nil {
		return nil, fmt.Errorf("graph: node %q: request pipeline: %w", c.node.Name, err)
	}
	c.OnCleanup(func() { c.graph.pipelineCache.Release(key) })
	return handle, nil
}

// InCollection returns the fused collection bound to an accumulate input
// slot.
func (c *CompileContext) InCollection(index int) []*resource.Value {
	return c.node.inputCollections[index]
}

// InGroups returns the ordered, key-partitioned groups bound to an
// accumulate input slot carrying a GroupKey modifier.
func (c *CompileContext) InGroups(index int) [][]*resource.Value {
	return c.node.inputGroups[index]
}

// ExecuteContext is passed to NodeBehavior.Execute: read fully realized
// inputs, write outputs, record GPU commands, optionally enqueue sub-tasks.
type ExecuteContext struct {
	baseContext
	FrameNumber uint64
	tasks       []VirtualTask
}

// Emit appends task to this node's virtual-task list for the current frame,
// stamping Node and EmissionIndex. A node may emit one or many tasks per
// frame; the executor runs them after Execute returns, so Emit itself never
// runs task.Run.
func (c *ExecuteContext) Emit(task VirtualTask) {
	task.Node = c.node.ID
	task.EmissionIndex = len(c.tasks)
	c.tasks = append(c.tasks, task)
}

// CreateParallelTasks calls build once per bundle index in [0, count) and
// Emits the resulting task, returning the full batch so a fan-out node can
// inspect what it just queued (e.g. for logging). Bundles are independent,
// so tasks built this way are marked ParallelSafe.
func (c *ExecuteContext) CreateParallelTasks(count int, build func(bundle int) VirtualTask) []VirtualTask {
	out := make([]VirtualTask, 0, count)
	for i := 0; i < count; i++ {
		t := build(i)
		t.ParallelSafe = true
		c.Emit(t)
		out = append(out, t)
	}
	return out
}

// Tasks returns every task emitted so far this Execute call.
func (c *ExecuteContext) Tasks() []VirtualTask { return c.tasks }

// In returns the realized resource bound to input slot index.
func (c *ExecuteContext) In(index int) (*resource.Value, error) {
	slot, ok := c.node.Type.inputByIndex(index)
	if !ok {
		return nil, fmt.Errorf("graph: node %q has no input slot %d", c.node.Name, index)
	}
	v := c.node.inputs[index]
	if v == nil && !slot.Nullable {
		return nil, fmt.Errorf("graph: node %q: missing non-nullable input %d (%s)", c.node.Name, index, slot.Name)
	}
	if v != nil && !v.Ready() {
		return nil, fmt.Errorf("graph: node %q input %d (%s): %w", c.node.Name, index, slot.Name, resource.ErrNotReady)
	}
	return v, nil
}

// GetInputCount returns the number of resources bound to an array input
// slot; for a scalar slot it is 0 or 1.
func (c *ExecuteContext) GetInputCount(index int) int {
	if collection, ok := c.node.inputCollections[index]; ok {
		return len(collection)
	}
	if c.node.inputs[index] == nil {
		return 0
	}
	return 1
}

// GetInputResource returns the i-th resource of an array/accumulate input
// slot.
func (c *ExecuteContext) GetInputResource(index, i int) (*resource.Value, error) {
	collection := c.node.inputCollections[index]
	if i < 0 || i >= len(collection) {
		return nil, fmt.Errorf("graph: node %q input %d: bundle index %d out of range", c.node.Name, index, i)
	}
	return collection[i], nil
}

// InCollection returns the fused collection bound to an accumulate input
// slot.
func (c *ExecuteContext) InCollection(index int) []*resource.Value {
	return c.node.inputCollections[index]
}

// InGroups returns the ordered, key-partitioned groups bound to an
// accumulate input slot carrying a GroupKey modifier.
func (c *ExecuteContext) InGroups(index int) [][]*resource.Value {
	return c.node.inputGroups[index]
}

// Out publishes value as the resource for output slot index during Execute,
// enforcing the same type check as CompileContext.Out.
func (c *ExecuteContext) Out(index int, value *resource.Value) error {
	return publishOut(c.node, index, value)
}

// OutAt publishes value as bundle i of array output slot index during
// Execute, enforcing the same checks as CompileContext.OutAt.
func (c *ExecuteContext) OutAt(index, i int, value *resource.Value) error {
	return publishOutAt(c.node, index, i, value)
}

// publishOut stores value as slot index's single published resource after
// checking the slot exists and the type tags match.
func publishOut(n *Node, index int, value *resource.Value) error {
	slot, ok := n.Type.outputByIndex(index)
	if !ok {
		return fmt.Errorf("graph: node %q has no output slot %d", n.Name, index)
	}
	if value.Tag() != slot.Type {
		return fmt.Errorf("graph: node %q output %d (%s): type mismatch, expected %s got %s", n.Name, index, slot.Name, slot.Type, value.Tag())
	}
	n.outputs[index] = value
	return nil
}

// publishOutAt stores value at bundle index i of an Array output slot,
// growing the bundle vector as needed.
func publishOutAt(n *Node, index, i int, value *resource.Value) error {
	slot, ok := n.Type.outputByIndex(index)
	if !ok {
		return fmt.Errorf("graph: node %q has no output slot %d", n.Name, index)
	}
	if !slot.Array {
		return fmt.Errorf("graph: node %q output %d (%s) is not an array slot", n.Name, index, slot.Name)
	}
	if i < 0 {
		return fmt.Errorf("graph: node %q output %d (%s): negative bundle index %d", n.Name, index, slot.Name, i)
	}
	if value.Tag() != slot.Type {
		return fmt.Errorf("graph: node %q output %d (%s): type mismatch, expected %s got %s", n.Name, index, slot.Name, slot.Type, value.Tag())
	}
	bundles := n.outputArrays[index]
	for len(bundles) <= i {
		bundles = append(bundles, nil)
	}
	bundles[i] = value
	n.outputArrays[index] = bundles
	return nil
}

// CleanupContext is passed to NodeBehavior.Cleanup: release owned
// resources. Implementations must be idempotent.
type CleanupContext struct {
	baseContext
}

// Parameter returns the named parameter value set via SetParameter.
func (c *CleanupContext) Parameter(name string) (resource.Value, bool) {
	v, ok := c.node.Parameters[name]
	return v, ok
}
