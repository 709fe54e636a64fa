package lifetime

import (
	"fmt"
	"sync"
)

// Deleter releases whatever a scope or a deferred-destruction entry owns.
// It must be idempotent.
type Deleter func()

// Scope groups resources for coarse cleanup. A Scope
// accumulates Deleters via Defer and runs them in reverse order on Close,
// mirroring typical RAII teardown (last acquired, first released).
type Scope struct {
	mu       sync.Mutex
	name     string
	deleters []Deleter
	closed   bool
}

// NewScope constructs an empty, named Scope.
func NewScope(name string) *Scope {
	return &Scope{name: name}
}

// Name reports the scope's name, used in diagnostics.
func (s *Scope) Name() string { return s.name }

// Defer registers d to run when the scope closes. If the scope is already
// closed, d runs immediately (matching Cleanup's idempotency requirement).
func (s *Scope) Defer(d Deleter) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		d()
		return
	}
	s.deleters = append(s.deleters, d)
	s.mu.Unlock()
}

// Close runs every registered Deleter in reverse registration order. It is
// idempotent: calling Close twice runs the deleters only once.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	deleters := s.deleters
	s.deleters = nil
	s.mu.Unlock()

	for i := len(deleters) - 1; i >= 0; i-- {
		deleters[i]()
	}
}

// Len reports the number of deleters currently registered.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deleters)
}

// ScopeGuard is a scoped acquisition of a Scope, guaranteeing release on
// every exit path via Close/defer.
type ScopeGuard struct {
	scope *Scope
}

// Acquire opens a new nested Scope registered with the owning manager, and
// returns a guard that closes it exactly once.
func Acquire(mgr *ScopeManager, name string) *ScopeGuard {
	return &ScopeGuard{scope: mgr.pushScope(name)}
}

// Scope returns the underlying Scope so callers can Defer cleanup actions.
func (g *ScopeGuard) Scope() *Scope { return g.scope }

// Close releases the guard's scope. Safe to call multiple times.
func (g *ScopeGuard) Close() { g.scope.Close() }

// ScopeManager owns a frame scope and a stack of nested (per-pass) scopes.
type ScopeManager struct {
	mu         sync.Mutex
	frameScope *Scope
	stack      []*Scope
}

// NewScopeManager constructs a manager with an open frame scope.
func NewScopeManager() *ScopeManager {
	return &ScopeManager{frameScope: NewScope("frame")}
}

// FrameScope returns the manager's persistent per-frame scope.
func (m *ScopeManager) FrameScope() *Scope { return m.frameScope }

// BeginFrame closes and reopens the frame scope, releasing anything
// deferred to it during the previous frame.
func (m *ScopeManager) BeginFrame() {
	m.mu.Lock()
	old := m.frameScope
	m.frameScope = NewScope("frame")
	m.mu.Unlock()
	old.Close()
}

func (m *ScopeManager) pushScope(name string) *Scope {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := NewScope(fmt.Sprintf("%s#%d", name, len(m.stack)))
	m.stack = append(m.stack, s)
	return s
}

// Depth reports how many nested scopes are currently open.
func (m *ScopeManager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stack)
}

// popIfTop removes s from the stack if it is the topmost entry; used by
// tests and diagnostics to assert well-nested acquire/release pairs. It is
// not required for correctness since each Scope tracks its own closed
// state independently.
func (m *ScopeManager) popIfTop(s *Scope) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.stack)
	if n == 0 || m.stack[n-1] != s {
		return false
	}
	m.stack = m.stack[:n-1]
	return true
}
