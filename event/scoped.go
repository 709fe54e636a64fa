package event

import "sync"

// ScopedSubscriptions is a scoped acquisition of a set of bus
// subscriptions, released together on every exit path. Closing without an
// explicit unsubscribe leaves zero dangling subscribers.
type ScopedSubscriptions struct {
	mu     sync.Mutex
	unsubs []func()
	closed bool
}

// NewScopedSubscriptions returns an empty scope ready to accumulate
// subscriptions via Add.
func NewScopedSubscriptions() *ScopedSubscriptions {
	return &ScopedSubscriptions{}
}

// Add registers unsubscribe to run when the scope closes. If the scope is
// already closed, unsubscribe runs immediately.
func (s *ScopedSubscriptions) Add(unsubscribe func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsubscribe()
		return
	}
	s.unsubs = append(s.unsubs, unsubscribe)
	s.mu.Unlock()
}

// Close releases every subscription accumulated in the scope. It is
// idempotent and safe to call multiple times (e.g. once explicitly and once
// via defer).
func (s *ScopedSubscriptions) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for i := len(unsubs) - 1; i >= 0; i-- {
		unsubs[i]()
	}
}

// Len reports the number of subscriptions currently held by the scope.
func (s *ScopedSubscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unsubs)
}

// ScopedSubscribe subscribes handler on bus and registers the resulting
// unsubscribe with scope in one call, the common case in node Setup/Cleanup
// pairs.
func ScopedSubscribe[T any](scope *ScopedSubscriptions, bus *Bus, handler Handler[T]) {
	scope.Add(Subscribe(bus, handler))
}
