package engine

import (
	"context"
	"sync"
)

// targetLocks serialises the decide and act stages per pod so that two
// overlapping runs cannot both act on the same restart count.
type targetLocks struct {
	mu    sync.Mutex
	slots map[string]*targetSlot
}

type targetSlot struct {
	ch   chan struct{}
	refs int
}

func newTargetLocks() *targetLocks {
	return &targetLocks{slots: make(map[string]*targetSlot)}
}

// acquire blocks until key is free or ctx is done. The returned func releases
// the key and must be called exactly once.
func (l *targetLocks) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &targetSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return func() {
			<-s.ch
			l.drop(key, s)
		}, nil
	case <-ctx.Done():
		l.drop(key, s)
		return nil, ctx.Err()
	}
}

func (l *targetLocks) drop(key string, s *targetSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// held reports how many callers hold or wait on key.
func (l *targetLocks) held(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.slots[key]; ok {
		return s.refs
	}
	return 0
}
