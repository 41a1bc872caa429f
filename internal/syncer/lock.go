package syncer

import "sync"

// scopeLocks serializes reconciliation passes per scope within this process.
// The debounce check-then-act on the cursor is not atomic, so without the
// lock two concurrent triggers inside the window could both run a full pass;
// harmless (each mutation is idempotent) but wasteful.
type scopeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newScopeLocks() *scopeLocks {
	return &scopeLocks{locks: map[string]*sync.Mutex{}}
}

func (s *scopeLocks) get(scopeID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[scopeID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[scopeID] = l
	}
	return l
}
