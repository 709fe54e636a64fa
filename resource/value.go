package resource

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ID is a resource's stable, pointer-equivalent identity for the lifetime
// of the graph. Resources are created and destroyed dynamically through
// Compile/recompile, so identity is a UUID rather than a table index.
type ID uuid.UUID

// NewID generates a fresh resource identity.
func NewID() ID { return ID(uuid.New()) }

func (id ID) String() string { return uuid.UUID(id).String() }

// Extractor projects a backend handle out of a wrapper type that carries
// an embedded backend object (e.g. a debug-ring buffer that internally
// owns a backend buffer). It is invoked lazily at bind time, never cached,
// so that recreating the owning resource is observed by every consumer's
// next descriptor binding.
type Extractor func(handle any, descriptor any) (any, error)

// ErrNotReady is returned by GetDescriptorHandle when the resource's state
// is not Clean or the handle has not yet been published.
var ErrNotReady = errors.New("resource: not ready")

// ErrDescriptorLocked is returned when a descriptor mutation is attempted
// outside Setup/Compile.
var ErrDescriptorLocked = errors.New("resource: descriptor may only be replaced during Setup or Compile")

// ErrTypeMismatch is returned when a value is published under a tag that
// does not match the resource's declared type.
var ErrTypeMismatch = errors.New("resource: type tag mismatch")

// phase restricts descriptor mutation: a resource's descriptor may be
// replaced only while the owning node is in Setup or Compile.
type phase uint8

const (
	phaseOther phase = iota
	phaseSetup
	phaseCompile
)

// Value is the tagged-union resource flowing along edges. It carries a
// type tag, a descriptor, a lazily-populated handle, and an optional
// extractor. The handle defaults to "unset" and transitions to "set" on
// first publication.
type Value struct {
	mu sync.RWMutex

	id    ID
	tag   Tag
	phase phase

	descriptor any
	handle     any
	handleSet  bool
	extractor  Extractor

	lifetime LifetimeClass
	scope    Scope
	state    State
	priority Priority

	sizeBytes uint64
	location  MemoryLocation
}

// New constructs a Value of the given tag with an initial descriptor. The
// resource starts in Setup phase (descriptor mutable) and Dirty state (not
// yet realized).
func New(tag Tag, descriptor any, lifetime LifetimeClass, location MemoryLocation) (*Value, error) {
	if !tag.Valid() {
		return nil, fmt.Errorf("resource: invalid type tag %d", tag)
	}
	return &Value{
		id:         NewID(),
		tag:        tag,
		phase:      phaseSetup,
		descriptor: descriptor,
		lifetime:   lifetime,
		location:   location,
		state:      Dirty,
	}, nil
}

// ID reports the resource's stable identity.
func (v *Value) ID() ID { return v.id }

// Tag reports the resource's immutable type tag.
func (v *Value) Tag() Tag { return v.tag }

// Lifetime reports the resource's lifetime class.
func (v *Value) Lifetime() LifetimeClass {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lifetime
}

// Scope reports the resource's cleanup scope.
func (v *Value) Scope() Scope {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.scope
}

// SetScope assigns the resource's cleanup scope (Setup/Compile only, same
// restriction as descriptor mutation).
func (v *Value) SetScope(s Scope) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.phase == phaseOther {
		return ErrDescriptorLocked
	}
	v.scope = s
	return nil
}

// State reports the resource's current state bitset.
func (v *Value) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// SetState overwrites the resource's state bitset. Transitioning into Clean
// requires the handle to already be set; callers mark Clean only once
// GetDescriptorHandle-backing data is actually published via Publish.
func (v *Value) SetState(s State) { v.mu.Lock(); v.state = s; v.mu.Unlock() }

// Priority reports the resource's eviction priority.
func (v *Value) Priority() Priority {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.priority
}

// SetPriority assigns the resource's eviction priority.
func (v *Value) SetPriority(p Priority) { v.mu.Lock(); v.priority = p; v.mu.Unlock() }

// SizeBytes reports the resource's size in bytes.
func (v *Value) SizeBytes() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.sizeBytes
}

// SetSizeBytes assigns the resource's size in bytes.
func (v *Value) SetSizeBytes(n uint64) { v.mu.Lock(); v.sizeBytes = n; v.mu.Unlock() }

// MemoryLocation reports where the resource's bytes live.
func (v *Value) MemoryLocation() MemoryLocation {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.location
}

// BeginSetup transitions the resource into Setup phase, permitting
// descriptor mutation. Called by the compiler's Setup walk.
func (v *Value) BeginSetup() { v.mu.Lock(); v.phase = phaseSetup; v.mu.Unlock() }

// BeginCompile transitions the resource into Compile phase, permitting
// descriptor mutation. Called by the compiler's Compile walk.
func (v *Value) BeginCompile() { v.mu.Lock(); v.phase = phaseCompile; v.mu.Unlock() }

// Lock transitions the resource out of Setup/Compile, after which
// SetDescriptor fails. Called once the compiler finishes processing a node.
func (v *Value) Lock() { v.mu.Lock(); v.phase = phaseOther; v.mu.Unlock() }

// Descriptor returns the current descriptor value.
func (v *Value) Descriptor() any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.descriptor
}

// SetDescriptor replaces the resource's descriptor. Legal only while the
// owning node is in Setup or Compile.
func (v *Value) SetDescriptor(d any) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.phase == phaseOther {
		return ErrDescriptorLocked
	}
	v.descriptor = d
	return nil
}

// SetExtractor installs the lazy handle-projection callback used when this
// resource's declared type is a higher-level wrapper around a backend
// primitive. It must be set before the resource's first
// Publish call for GetDescriptorHandle to project correctly.
func (v *Value) SetExtractor(e Extractor) {
	v.mu.Lock()
	v.extractor = e
	v.mu.Unlock()
}

// Publish sets the resource's realized backend handle and marks the
// resource Clean, clearing Dirty/Stale. tag must match the resource's
// declared tag.
func (v *Value) Publish(tag Tag, handle any) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if tag != v.tag {
		return fmt.Errorf("%w: resource %s declared %s, published %s", ErrTypeMismatch, v.id, v.tag, tag)
	}
	v.handle = handle
	v.handleSet = true
	v.state = (v.state &^ (Dirty | Stale)) | Clean
	return nil
}

// Invalidate clears the published handle and marks the resource Stale, used
// when an upstream event (e.g. SwapChainInvalidated) requires
// re-publication before consumers may bind it again.
func (v *Value) Invalidate() {
	v.mu.Lock()
	v.handleSet = false
	v.state = (v.state &^ Clean) | Stale
	v.mu.Unlock()
}

// Ready reports whether the resource currently has a realized handle and
// is in the Clean state. Accessing a non-Ready resource's handle is
// undefined behavior.
func (v *Value) Ready() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.handleSet && v.state.Has(Clean) && !v.state.Has(Deleted)
}

// Handle returns the raw published handle without extractor projection.
// Returns ErrNotReady if the resource is not Ready.
func (v *Value) Handle() (any, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.handleSet || !v.state.Has(Clean) || v.state.Has(Deleted) {
		return nil, ErrNotReady
	}
	return v.handle, nil
}

// GetDescriptorHandle returns the backend primitive behind this resource,
// invoking the installed Extractor lazily on every call rather than
// returning a cached projection, so upstream recreation is never masked by
// a stale snapshot.
// If no extractor is installed, the raw handle is returned directly: most
// resource tags (buffer, image, ...) ARE the backend primitive and need no
// projection.
func (v *Value) GetDescriptorHandle() (any, error) {
	v.mu.RLock()
	handleSet := v.handleSet
	ready := handleSet && v.state.Has(Clean) && !v.state.Has(Deleted)
	handle := v.handle
	descriptor := v.descriptor
	extractor := v.extractor
	v.mu.RUnlock()

	if !ready {
		return nil, ErrNotReady
	}
	if extractor == nil {
		return handle, nil
	}
	return extractor(handle, descriptor)
}
