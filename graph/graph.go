package graph

import (
	"fmt"
	"hash/maphash"

	"github.com/google/uuid"

	"github.com/vixen-gfx/vixen/cache"
	"github.com/vixen-gfx/vixen/connect"
	"github.com/vixen-gfx/vixen/resource"
)

// PipelineHandle is an opaque reference to a realized GPU pipeline,
// pipeline layout, or descriptor set layout, returned by a node's own
// build closure and cached by content hash of its descriptor.
type PipelineHandle any

// Option configures a Graph at construction time.
type Option func(*Graph)

// WithPipelineCacheBudget caps the pipeline/descriptor-layout cache at
// maxBytes. The default is unbounded (ref-counting only, no LRU eviction).
func WithPipelineCacheBudget(maxBytes uint64) Option {
	return func(g *Graph) {
		g.pipelineCache = cache.New[uint64, PipelineHandle](maxBytes, nil)
	}
}

// EdgeID identifies an edge for the lifetime of its owning graph.
type EdgeID uuid.UUID

func newEdgeID() EdgeID { return EdgeID(uuid.New()) }

// Edge is a directed link from an output slot to an input slot, carrying
// the connect.Spec describing its modifiers.
type Edge struct {
	ID         EdgeID
	Source     NodeID
	SourceSlot int
	Target     NodeID
	TargetSlot int
	Spec       *connect.Spec
}

// Graph is an ordered set of nodes and edges plus derived compilation
// data. Adjacency is stored as map[NodeID][]EdgeID for O(1) neighbor
// iteration.
type Graph struct {
	registry *Registry
	pipeline *connect.Pipeline

	nodes    map[NodeID]*Node
	order    []NodeID // insertion order, for creationIndex tie-breaking
	edges    map[EdgeID]*Edge
	outEdges map[NodeID][]EdgeID // adjacency: node -> edges where it is Source
	inEdges  map[NodeID][]EdgeID // reverse adjacency: node -> edges where it is Target

	dirty map[NodeID]struct{}

	frameCounter uint64

	pipelineCache *cache.Cache[uint64, PipelineHandle]
	pipelineSeed  maphash.Seed
}

// New constructs an empty graph using registry for node-type lookup and
// pipeline for connection-rule validation. A nil pipeline uses
// connect.DefaultRules().
func New(registry *Registry, pipeline *connect.Pipeline, opts ...Option) *Graph {
	if pipeline == nil {
		pipeline = connect.NewPipeline(connect.DefaultRules()...)
	}
	g := &Graph{
		registry:      registry,
		pipeline:      pipeline,
		nodes:         make(map[NodeID]*Node),
		edges:         make(map[EdgeID]*Edge),
		outEdges:      make(map[NodeID][]EdgeID),
		inEdges:       make(map[NodeID][]EdgeID),
		dirty:         make(map[NodeID]struct{}),
		pipelineCache: cache.New[uint64, PipelineHandle](0, nil),
		pipelineSeed:  maphash.MakeSeed(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddNode instantiates typeName under instanceName, returning its NodeID.
// The node starts in Declared state.
func (g *Graph) AddNode(typeName, instanceName string) (NodeID, error) {
	nt, ok := g.registry.Lookup(typeName)
	if !ok {
		return NodeID{}, fmt.Errorf("graph: unknown node type %q", typeName)
	}
	for _, id := range g.order {
		if g.nodes[id].Name == instanceName {
			return NodeID{}, fmt.Errorf("graph: duplicate node instance name %q", instanceName)
		}
	}

	n := &Node{
		ID:               newNodeID(),
		Name:             instanceName,
		Type:             nt,
		Behavior:         nt.New(),
		State:            StateDeclared,
		Parameters:       make(map[string]resource.Value),
		creationIndex:    len(g.order),
		inputs:           make([]*resource.Value, len(nt.Inputs)),
		outputs:          make([]*resource.Value, len(nt.Outputs)),
		outputArrays:     make(map[int][]*resource.Value),
		inputCollections: make(map[int][]*resource.Value),
		inputGroups:      make(map[int][][]*resource.Value),
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	g.dirty[n.ID] = struct{}{}
	return n.ID, nil
}

// Node returns the node instance for id.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// RemoveNode removes a node and every edge touching it, marking its former
// neighbors Dirty. Removing a node that other nodes depend on is only
// rejected at the next Compile (when the now-missing non-nullable input is
// caught by Validate); RemoveNode itself always succeeds structurally.
func (g *Graph) RemoveNode(id NodeID) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("graph: unknown node %s", id)
	}
	if err := g.cleanupNode(n); err != nil {
		return fmt.Errorf("graph: remove node %q: %w", n.Name, err)
	}
	for _, eid := range append([]EdgeID(nil), g.outEdges[id]...) {
		g.removeEdge(eid)
	}
	for _, eid := range append([]EdgeID(nil), g.inEdges[id]...) {
		g.removeEdge(eid)
	}
	// Removing n's in-edges marked n itself Dirty; a removed node stays Cleaned.
	n.State = StateCleaned
	delete(g.nodes, id)
	delete(g.dirty, id)
	for i, oid := range g.order {
		if oid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return nil
}

// cleanupNode runs n's Cleanup hook followed by every action registered via
// CompileContext.OnCleanup during its compiled lifetime, in reverse
// registration order, mirroring defer.
func (g *Graph) cleanupNode(n *Node) error {
	ctx := &CleanupContext{baseContext{node: n, graph: g}}
	if err := n.Behavior.Cleanup(ctx); err != nil {
		return fmt.Errorf("node %q cleanup: %w", n.Name, err)
	}
	for i := len(n.cleanups) - 1; i >= 0; i-- {
		n.cleanups[i]()
	}
	n.cleanups = nil
	n.State = StateCleaned
	return nil
}

func (g *Graph) removeEdge(id EdgeID) {
	e, ok := g.edges[id]
	if !ok {
		return
	}
	delete(g.edges, id)
	g.outEdges[e.Source] = removeEdgeID(g.outEdges[e.Source], id)
	g.inEdges[e.Target] = removeEdgeID(g.inEdges[e.Target], id)
	g.markDirty(e.Target)
}

func removeEdgeID(edges []EdgeID, target EdgeID) []EdgeID {
	out := edges[:0]
	for _, e := range edges {
		if e != target {
			out = append(out, e)
		}
	}
	return out
}

func (g *Graph) markDirty(id NodeID) {
	if n, ok := g.nodes[id]; ok && n.State != StateDeclared {
		n.State = StateDirty
	}
	g.dirty[id] = struct{}{}
}

// Connect validates and adds an edge from (src, srcSlot) to (tgt, tgtSlot)
// with the given connection modifiers. The target node is marked Dirty.
func (g *Graph) Connect(src NodeID, srcSlot int, tgt NodeID, tgtSlot int, modifiers ...connect.Modifier) (EdgeID, error) {
	srcNode, ok := g.nodes[src]
	if !ok {
		return EdgeID{}, fmt.Errorf("graph: unknown source node %s", src)
	}
	tgtNode, ok := g.nodes[tgt]
	if !ok {
		return EdgeID{}, fmt.Errorf("graph: unknown target node %s", tgt)
	}
	out, ok := srcNode.Type.outputByIndex(srcSlot)
	if !ok {
		return EdgeID{}, fmt.Errorf("graph: node %q has no output slot %d", srcNode.Name, srcSlot)
	}
	in, ok := tgtNode.Type.inputByIndex(tgtSlot)
	if !ok {
		return EdgeID{}, fmt.Errorf("graph: node %q has no input slot %d", tgtNode.Name, tgtSlot)
	}

	// The target slot's declared Role seeds EffectiveRole; it is applied
	// first so an explicit connect.RoleOverride among modifiers (applied
	// afterward, in order) still wins.
	// A zero Role means the slot declared no default, leaving connect's own
	// RoleDependency|RoleExecute default from Builder.Build in place.
	allModifiers := modifiers
	if in.Role != 0 {
		allModifiers = append([]connect.Modifier{connect.RoleOverride(in.Role)}, modifiers...)
	}

	builder := connect.NewBuilder(out.Type, in.Type).With(allModifiers...)
	spec, err := builder.Build()
	if err != nil {
		return EdgeID{}, fmt.Errorf("graph: connect %s.%d -> %s.%d: %w", srcNode.Name, srcSlot, tgtNode.Name, tgtSlot, err)
	}
	if err := g.pipeline.Validate(spec); err != nil {
		return EdgeID{}, fmt.Errorf("graph: connect %s.%d -> %s.%d: %w", srcNode.Name, srcSlot, tgtNode.Name, tgtSlot, err)
	}

	e := &Edge{ID: newEdgeID(), Source: src, SourceSlot: srcSlot, Target: tgt, TargetSlot: tgtSlot, Spec: spec}
	g.edges[e.ID] = e
	g.outEdges[src] = append(g.outEdges[src], e.ID)
	g.inEdges[tgt] = append(g.inEdges[tgt], e.ID)
	g.markDirty(tgt)
	return e.ID, nil
}

// Edge returns the edge for id.
func (g *Graph) Edge(id EdgeID) (*Edge, bool) {
	e, ok := g.edges[id]
	return e, ok
}

// InEdges returns the edges targeting node id.
func (g *Graph) InEdges(id NodeID) []*Edge {
	edges := g.inEdges[id]
	out := make([]*Edge, 0, len(edges))
	for _, eid := range edges {
		out = append(out, g.edges[eid])
	}
	return out
}

// OutEdges returns the edges sourced from node id.
func (g *Graph) OutEdges(id NodeID) []*Edge {
	edges := g.outEdges[id]
	out := make([]*Edge, 0, len(edges))
	for _, eid := range edges {
		out = append(out, g.edges[eid])
	}
	return out
}

// DirtyNodes returns the set of nodes marked dirty since the last Compile,
// in creation order.
func (g *Graph) DirtyNodes() []NodeID {
	out := make([]NodeID, 0, len(g.dirty))
	for _, id := range g.order {
		if _, ok := g.dirty[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// clearDirty clears the dirty set, called after a successful Compile.
func (g *Graph) clearDirty() {
	g.dirty = make(map[NodeID]struct{})
}

// FrameCounter reports the number of frames rendered so far.
func (g *Graph) FrameCounter() uint64 { return g.frameCounter }

// EdgeCount reports the number of edges currently in the graph.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// NodeCount reports the number of nodes currently in the graph.
func (g *Graph) NodeCount() int { return len(g.order) }

// Shutdown runs every node's Cleanup hook and registered cleanup actions,
// in reverse topological order so consumers tear down before producers.
// The graph is left empty afterward.
func (g *Graph) Shutdown() error {
	order, err := g.TopologicalSort()
	if err != nil {
		// Best-effort: fall back to insertion order if the graph is
		// currently cyclic (shutdown must still release resources).
		order = append([]NodeID(nil), g.order...)
	}
	for i := len(order) - 1; i >= 0; i-- {
		n, ok := g.nodes[order[i]]
		if !ok {
			continue
		}
		if err := g.cleanupNode(n); err != nil {
			return err
		}
	}
	g.nodes = make(map[NodeID]*Node)
	g.order = nil
	g.edges = make(map[EdgeID]*Edge)
	g.outEdges = make(map[NodeID][]EdgeID)
	g.inEdges = make(map[NodeID][]EdgeID)
	g.dirty = make(map[NodeID]struct{})
	return nil
}
