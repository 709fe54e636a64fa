package graph

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/vixen-gfx/vixen/connect"
	"github.com/vixen-gfx/vixen/lifetime"
	"github.com/vixen-gfx/vixen/resource"
)

// PlanEntry is one scheduled step of an execution plan: a node and the
// bundle index it should run for. Compile and Recompile emit one entry per
// node, always with BundleIndex 0; fan-out bundles get no entries of their
// own.
type PlanEntry struct {
	Node        NodeID
	BundleIndex int
}

// ResourceBinding records a resource's computed lifetime interval and
// memory placement for plan emission and the aliasing pass. Unconsumed
// flags an output no edge ever delivered to a consumer, usually a sign of
// a stale connection or a node publishing more than the graph uses.
type ResourceBinding struct {
	ID         resource.ID
	Tag        resource.Tag
	Birth      int
	Death      int
	Location   resource.MemoryLocation
	Unconsumed bool
}

// Plan is the immutable result of a successful Compile: the execution
// order, the resolved descriptor-binding table, and the aliasing result.
type Plan struct {
	Order    []NodeID
	Entries  []PlanEntry
	Bindings []ResourceBinding
	Aliasing lifetime.Result
}

// Compiler walks a Graph through the seven compile phases: validate, setup
// walk, compile walk, lifetime analysis, aliasing, pipeline/descriptor
// materialization, and plan emission.
type Compiler struct {
	FramesInFlight uint64
}

// NewCompiler constructs a Compiler with the given pipelined frame count,
// stored as FramesInFlight; no compile phase reads it.
func NewCompiler(framesInFlight uint64) *Compiler {
	if framesInFlight == 0 {
		framesInFlight = 1
	}
	return &Compiler{FramesInFlight: framesInFlight}
}

// Compile runs phases 1-7 against g, returning the emitted Plan. A failure
// in the Validate or Setup/Compile walk leaves the graph's previous Plan
// (if any) untouched; callers retain the last successful Plan so a failed
// recompile does not lose the next frame.
func (c *Compiler) Compile(g *Graph) (*Plan, error) {
	if err := c.validate(g); err != nil {
		return nil, fmt.Errorf("graph: validate: %w", err)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	if err := c.setupWalk(g, order); err != nil {
		return nil, fmt.Errorf("graph: setup: %w", err)
	}
	if err := c.compileWalk(g, order); err != nil {
		return nil, fmt.Errorf("graph: compile: %w", err)
	}

	bindings := c.lifetimeAnalysis(g, order)
	aliasRes := c.alias(bindings)

	entries := make([]PlanEntry, 0, len(order))
	for _, id := range order {
		entries = append(entries, PlanEntry{Node: id, BundleIndex: 0})
	}

	for _, id := range order {
		g.nodes[id].State = StateCompiled
	}
	g.clearDirty()

	return &Plan{Order: order, Entries: entries, Bindings: bindings, Aliasing: aliasRes}, nil
}

// Recompile re-runs phases 1-7 restricted to the transitive dependent set
// of the graph's currently dirty nodes. Nodes outside that set keep their
// prior Compiled state and published outputs;
// their bindings are still included in the returned Plan's lifetime analysis
// since aliasing must see the whole frame's resource set.
func (c *Compiler) Recompile(g *Graph) (*Plan, error) {
	dirty := g.DirtyNodes()
	if len(dirty) == 0 {
		return c.Compile(g)
	}

	if err := c.validate(g); err != nil {
		return nil, fmt.Errorf("graph: validate: %w", err)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	affected := make(map[NodeID]bool)
	for _, id := range g.DependentSet(dirty) {
		affected[id] = true
	}

	scoped := make([]NodeID, 0, len(affected))
	for _, id := range order {
		if affected[id] {
			scoped = append(scoped, id)
		}
	}

	if err := c.setupWalk(g, scoped); err != nil {
		return nil, fmt.Errorf("graph: setup: %w", err)
	}
	if err := c.compileWalk(g, scoped); err != nil {
		return nil, fmt.Errorf("graph: compile: %w", err)
	}

	bindings := c.lifetimeAnalysis(g, order)
	aliasRes := c.alias(bindings)

	entries := make([]PlanEntry, 0, len(order))
	for _, id := range order {
		entries = append(entries, PlanEntry{Node: id, BundleIndex: 0})
	}

	for _, id := range scoped {
		g.nodes[id].State = StateCompiled
	}
	g.clearDirty()

	return &Plan{Order: order, Entries: entries, Bindings: bindings, Aliasing: aliasRes}, nil
}

// validate is compile phase 1: every non-nullable input must be connected.
// Per-edge connection-rule validation already ran in Connect, so only
// missing-input checks remain here.
func (c *Compiler) validate(g *Graph) error {
	for _, id := range g.order {
		n := g.nodes[id]
		for _, slot := range n.Type.Inputs {
			if slot.Nullable {
				continue
			}
			bound := false
			for _, e := range g.InEdges(id) {
				if e.TargetSlot == slot.Index {
					bound = true
					break
				}
			}
			if !bound {
				return fmt.Errorf("node %q: missing required input %d (%s)", n.Name, slot.Index, slot.Name)
			}
		}
	}
	return nil
}

// setupWalk is compile phase 2: Setup each Declared/Dirty node in
// topological order.
func (c *Compiler) setupWalk(g *Graph, order []NodeID) error {
	for _, id := range order {
		n := g.nodes[id]
		if n.State != StateDeclared && n.State != StateDirty {
			continue
		}
		ctx := &SetupContext{baseContext{node: n, graph: g}}
		if err := n.Behavior.Setup(ctx); err != nil {
			n.State = StateDirty
			return fmt.Errorf("node %q setup: %w", n.Name, err)
		}
		n.State = StateSetup
	}
	return nil
}

// compileWalk is compile phase 3: bind each node's inputs from its
// producers' published outputs, then run Compile, publishing this node's
// own outputs in turn.
func (c *Compiler) compileWalk(g *Graph, order []NodeID) error {
	for _, id := range order {
		n := g.nodes[id]
		if err := bindInputs(g, n); err != nil {
			return err
		}

		ctx := &CompileContext{baseContext: baseContext{node: n, graph: g}}
		if err := n.Behavior.Compile(ctx); err != nil {
			n.State = StateDirty
			return fmt.Errorf("node %q compile: %w", n.Name, err)
		}
		n.cleanups = append(n.cleanups, ctx.cleanups...)
	}
	return nil
}

// bindInputs resolves every input slot of n from the edges targeting it.
// Scalar slots take the single producing edge's resource directly; a
// scalar edge whose source is an array output binds the source's full
// bundle vector as a collection instead. Accumulate slots fuse every
// producing edge's resources into one ordered collection, optionally
// grouped by a GroupKeyField and/or sorted, rebuilt fresh every compile
// since the fused collection is ephemeral.
func bindInputs(g *Graph, n *Node) error {
	bySlot := make(map[int][]*Edge)
	for _, e := range g.InEdges(n.ID) {
		bySlot[e.TargetSlot] = append(bySlot[e.TargetSlot], e)
	}

	for slotIndex, edges := range bySlot {
		if len(edges) == 1 && !edges[0].Spec.Accumulate {
			src := g.nodes[edges[0].Source]
			if bundles := src.outputArrays[edges[0].SourceSlot]; len(bundles) > 0 {
				n.inputCollections[slotIndex] = nonNilValues(bundles)
				continue
			}
			n.inputs[slotIndex] = src.outputs[edges[0].SourceSlot]
			continue
		}

		collected := make([]*resource.Value, 0, len(edges))
		var spec *connect.Spec
		for _, e := range edges {
			src := g.nodes[e.Source]
			if bundles := src.outputArrays[e.SourceSlot]; len(bundles) > 0 {
				collected = append(collected, nonNilValues(bundles)...)
				spec = e.Spec
				continue
			}
			v := src.outputs[e.SourceSlot]
			if v == nil {
				continue
			}
			collected = append(collected, v)
			spec = e.Spec
		}
		if spec == nil {
			continue
		}

		if spec.SortMode != connect.SortNone && spec.SortLess != nil {
			less := spec.SortLess
			if spec.SortMode == connect.SortDescending {
				less = func(a, b any) bool { return spec.SortLess(b, a) }
			}
			sort.SliceStable(collected, func(i, j int) bool {
				return less(collected[i].Descriptor(), collected[j].Descriptor())
			})
		}

		if spec.GroupKeyField != "" {
			groups := groupByField(collected, spec.GroupKeyField)
			n.inputGroups[slotIndex] = groups
		}
		n.inputCollections[slotIndex] = collected
	}
	return nil
}

// nonNilValues returns bundles with nil (never-published) entries dropped,
// preserving bundle order.
func nonNilValues(bundles []*resource.Value) []*resource.Value {
	out := make([]*resource.Value, 0, len(bundles))
	for _, v := range bundles {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// groupByField partitions values into ordered groups keyed by the named
// field of each value's descriptor. Group order follows the order each key
// first appears.
func groupByField(values []*resource.Value, field string) [][]*resource.Value {
	order := make([]any, 0)
	groups := make(map[any][]*resource.Value)
	for _, v := range values {
		key := reflectField(v.Descriptor(), field)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], v)
	}
	out := make([][]*resource.Value, 0, len(order))
	for _, key := range order {
		out = append(out, groups[key])
	}
	return out
}

// reflectField extracts the named field's value from a struct (or the
// struct a pointer points to), returning nil if absent or not a struct.
func reflectField(descriptor any, field string) any {
	v := reflect.ValueOf(descriptor)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	f := v.FieldByName(field)
	if !f.IsValid() {
		return nil
	}
	return f.Interface()
}

// lifetimeAnalysis is compile phase 4: compute [birthIndex, deathIndex] for
// every published resource using topological order, flagging outputs no
// consumer ever bound.
func (c *Compiler) lifetimeAnalysis(g *Graph, order []NodeID) []ResourceBinding {
	indexOf := make(map[NodeID]int, len(order))
	for i, id := range order {
		indexOf[id] = i
	}

	type acc struct {
		birth    int
		death    int
		consumed bool
		v        *resource.Value
	}
	bindings := make(map[resource.ID]*acc)

	for _, id := range order {
		n := g.nodes[id]
		for _, v := range n.outputs {
			if v == nil {
				continue
			}
			bindings[v.ID()] = &acc{birth: indexOf[id], death: indexOf[id], v: v}
		}
		for _, bundles := range n.outputArrays {
			for _, v := range bundles {
				if v == nil {
					continue
				}
				bindings[v.ID()] = &acc{birth: indexOf[id], death: indexOf[id], v: v}
			}
		}
	}

	for _, id := range order {
		n := g.nodes[id]
		consumerIndex := indexOf[id]
		consume := func(v *resource.Value) {
			b, ok := bindings[v.ID()]
			if !ok {
				return
			}
			b.consumed = true
			if consumerIndex > b.death {
				b.death = consumerIndex
			}
		}
		for _, v := range n.inputs {
			if v == nil {
				continue
			}
			consume(v)
		}
		for _, collection := range n.inputCollections {
			for _, v := range collection {
				consume(v)
			}
		}
	}

	out := make([]ResourceBinding, 0, len(bindings))
	for id, b := range bindings {
		death := b.death
		if b.v.Lifetime() == resource.Persistent {
			death = len(order) - 1 // unbounded, pinned to the end of this plan
		}
		out = append(out, ResourceBinding{
			ID:         id,
			Tag:        b.v.Tag(),
			Birth:      b.birth,
			Death:      death,
			Location:   b.v.MemoryLocation(),
			Unconsumed: !b.consumed,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Birth < out[j].Birth })
	return out
}

// alias is compile phase 5: run the greedy interval-scheduling aliasing
// pass over every resource eligible for pooling (Transient/Pooled,
// non-Persistent).
func (c *Compiler) alias(bindings []ResourceBinding) lifetime.Result {
	candidates := make([]lifetime.Candidate, 0, len(bindings))
	for _, b := range bindings {
		candidates = append(candidates, lifetime.Candidate{
			ID:             b.ID,
			Tag:            b.Tag,
			Interval:       lifetime.Interval{Birth: b.Birth, Death: b.Death},
			Location:       b.Location,
			AlignmentClass: 1,
		})
	}
	return lifetime.Alias(candidates)
}
