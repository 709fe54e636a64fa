// Package graph implements vixen's node/slot model, graph topology, and
// multi-phase compiler. Node types carry a fixed slot schema and four
// phase hooks (Setup/Compile/Execute/Cleanup); a Graph instantiates them,
// connects their slots, and compiles the result into an execution plan.
package graph

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/vixen-gfx/vixen/connect"
	"github.com/vixen-gfx/vixen/resource"
)

// NodeID identifies a node instance for the lifetime of its owning graph.
type NodeID uuid.UUID

func newNodeID() NodeID { return NodeID(uuid.New()) }

func (id NodeID) String() string { return uuid.UUID(id).String() }

// LifetimeClass classifies an output slot's resource lifetime; an alias of
// resource.LifetimeClass since the node/slot schema and the resource
// system share one closed enum.
type LifetimeClass = resource.LifetimeClass

// InputSlot describes one input port in a node type's schema. Role is the
// slot's declared default: Graph.Connect applies it as the edge's
// EffectiveRole unless the caller supplies its own connect.RoleOverride
// modifier, which takes precedence.
type InputSlot struct {
	Index    int
	Name     string
	Type     resource.Tag
	Nullable bool
	Role     connect.Role
	Array    bool // an array/variadic slot holding an ordered collection
}

// OutputSlot describes one output port in a node type's schema. An Array
// slot holds an ordered collection of resources: the node publishes either
// one value per bundle index via OutAt, or a single bundle carrying the
// full collection via Out.
type OutputSlot struct {
	Index    int
	Name     string
	Type     resource.Tag
	Lifetime LifetimeClass
	Array    bool
}

// ParameterSpec describes one named, typed parameter a node type accepts.
type ParameterSpec struct {
	Name string
	Type resource.Tag
}

// Phase identifies which of the four node lifecycle hooks is executing,
// used to restrict which context operations are legal at compile time via
// distinct Go types.
type Phase uint8

const (
	PhaseSetup Phase = iota
	PhaseCompile
	PhaseExecute
	PhaseCleanup
)

// PhaseState is a node instance's current lifecycle state.
type PhaseState uint8

const (
	StateDeclared PhaseState = iota
	StateSetup
	StateCompiled
	StateDirty
	StateExecuting
	StateCleaned
)

func (s PhaseState) String() string {
	switch s {
	case StateDeclared:
		return "Declared"
	case StateSetup:
		return "Setup"
	case StateCompiled:
		return "Compiled"
	case StateDirty:
		return "Dirty"
	case StateExecuting:
		return "Executing"
	case StateCleaned:
		return "Cleaned"
	default:
		return "Unknown"
	}
}

// NodeBehavior is the author surface: the four phase hooks a node type
// implements. Each hook receives a context type specific to its phase so a
// phase cannot call an operation belonging to another phase.
type NodeBehavior interface {
	Setup(*SetupContext) error
	Compile(*CompileContext) error
	Execute(*ExecuteContext) error
	Cleanup(*CleanupContext) error
}

// NodeType is a registered schema: name, slot schema, parameter schema, and
// the behavior factory constructing a fresh NodeBehavior per instance.
type NodeType struct {
	Name       string
	Inputs     []InputSlot
	Outputs    []OutputSlot
	Parameters []ParameterSpec
	New        func() NodeBehavior
}

func (t *NodeType) inputByIndex(i int) (InputSlot, bool) {
	for _, s := range t.Inputs {
		if s.Index == i {
			return s, true
		}
	}
	return InputSlot{}, false
}

func (t *NodeType) outputByIndex(i int) (OutputSlot, bool) {
	for _, s := range t.Outputs {
		if s.Index == i {
			return s, true
		}
	}
	return OutputSlot{}, false
}

// Registry is the closed, compile-time-populated set of node types a graph
// may instantiate, keyed by type name.
type Registry struct {
	byName map[string]*NodeType
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*NodeType)}
}

// Register adds a node type. Registering a duplicate name is an error.
func (r *Registry) Register(t *NodeType) error {
	if t.Name == "" {
		return fmt.Errorf("graph: node type name is required")
	}
	if _, exists := r.byName[t.Name]; exists {
		return fmt.Errorf("graph: node type %q already registered", t.Name)
	}
	r.byName[t.Name] = t
	return nil
}

// Lookup returns the node type registered under name.
func (r *Registry) Lookup(name string) (*NodeType, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Node is one instance of a NodeType within a Graph.
type Node struct {
	ID            NodeID
	Name          string
	Type          *NodeType
	Behavior      NodeBehavior
	State         PhaseState
	Parameters    map[string]resource.Value
	creationIndex int // insertion order, used for deterministic tie-breaking

	inputs           []*resource.Value           // bound input resources by slot index (scalar slots)
	outputs          []*resource.Value           // published output resources by slot index
	outputArrays     map[int][]*resource.Value   // array-slot outputs published per bundle via OutAt: slot index -> bundle-indexed values
	inputCollections map[int][]*resource.Value   // accumulate-slot bindings: slot index -> fused collection
	inputGroups      map[int][][]*resource.Value // accumulate-slot bindings partitioned by GroupKey: slot index -> ordered groups

	cleanups []func() // registered via CompileContext.OnCleanup, run on removal
}

// SetParameter sets a typed parameter value by name. Returns an error if
// name is not part of the node type's parameter schema or the value's tag
// does not match the declared parameter type.
func (n *Node) SetParameter(name string, value *resource.Value) error {
	var spec *ParameterSpec
	for i := range n.Type.Parameters {
		if n.Type.Parameters[i].Name == name {
			spec = &n.Type.Parameters[i]
			break
		}
	}
	if spec == nil {
		return fmt.Errorf("graph: node %q has no parameter %q", n.Name, name)
	}
	if value.Tag() != spec.Type {
		return fmt.Errorf("graph: parameter %q on node %q: expected type %s, got %s", name, n.Name, spec.Type, value.Tag())
	}
	n.Parameters[name] = *value
	return nil
}
