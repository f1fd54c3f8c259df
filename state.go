package lkcosmetics

import "sync"

// stateStore serializes session state updates. Listeners run after the lock is
// released, in registration order, with the snapshot produced by the update.
//
// epoch numbers sessions. Login and Logout (and an expired refresh) start a
// new epoch; work that began under an older epoch commits only through the
// *If methods, which refuse once the epoch moved on.
type stateStore struct {
	mu        sync.Mutex
	state     State
	epoch     uint64
	listeners []*listener
}

type listener struct {
	fn func(State)
}

func (s *stateStore) get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *stateStore) update(fn func(*State)) State {
	s.mu.Lock()
	fn(&s.state)
	return s.unlockAndNotify()
}

// unlockAndNotify must be called with mu held.
func (s *stateStore) unlockAndNotify() State {
	snap := s.state.clone()
	ls := append([]*listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range ls {
		l.fn(snap.clone())
	}
	return snap
}

func (s *stateStore) currentEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// advance starts a new epoch and applies fn in the same critical section.
func (s *stateStore) advance(fn func(*State)) State {
	s.mu.Lock()
	s.epoch++
	fn(&s.state)
	return s.unlockAndNotify()
}

// advanceIf is advance for a caller that belongs to epoch. It reports false,
// without calling fn, when a newer epoch has started.
func (s *stateStore) advanceIf(epoch uint64, fn func(*State)) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	s.epoch++
	fn(&s.state)
	s.unlockAndNotify()
	return true
}

// updateIf is update for a caller that belongs to epoch.
func (s *stateStore) updateIf(epoch uint64, fn func(*State)) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	fn(&s.state)
	s.unlockAndNotify()
	return true
}

// within runs fn under the lock when epoch is current, without notifying
// listeners. fn must not touch the state store.
func (s *stateStore) within(epoch uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return false
	}
	fn()
	return true
}

func (s *stateStore) subscribe(fn func(State)) func() {
	l := &listener{fn: fn}
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, cur := range s.listeners {
				if cur == l {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}
