package engine

import (
	"context"
	"sync"
)

// sessionSlots serializes turns per session. Waiters on the same slot are
// released in arrival order; different sessions never block each other.
type sessionSlots struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func newSessionSlots() *sessionSlots {
	return &sessionSlots{slots: make(map[string]*slot)}
}

// acquire blocks until the slot for key is free or ctx is done.
func (s *sessionSlots) acquire(ctx context.Context, key string) (func(), error) {
	s.mu.Lock()
	sl, ok := s.slots[key]
	if !ok {
		sl = &slot{ch: make(chan struct{}, 1)}
		s.slots[key] = sl
	}
	sl.refs++
	s.mu.Unlock()

	select {
	case sl.ch <- struct{}{}:
	case <-ctx.Done():
		s.drop(key, sl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-sl.ch
			s.drop(key, sl)
		})
	}, nil
}

func (s *sessionSlots) drop(key string, sl *slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(s.slots, key)
	}
}

func (s *sessionSlots) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}
