package agent

import "sync"

// listenerSet holds callbacks fired after any mutation (upload or delete)
// completes. Callbacks run synchronously on the mutating goroutine, outside
// the set's lock, so a listener may itself call back into the agent.
type listenerSet struct {
	mu     sync.Mutex
	nextID int
	funcs  map[int]func()
}

func (s *listenerSet) add(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.funcs == nil {
		s.funcs = make(map[int]func())
	}
	id := s.nextID
	s.nextID++
	s.funcs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.funcs, id)
	}
}

func (s *listenerSet) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.funcs))
	for _, fn := range s.funcs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// RegisterListener subscribes fn to run after every successful mutation of
// the backup set. The returned function removes the subscription.
func (a *Agent) RegisterListener(fn func()) func() {
	return a.listeners.add(fn)
}
