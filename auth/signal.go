package auth

import "sync"

// Signal holds the "authorized" flag and fans every change out to subscribers.
// Each subscriber channel has a buffer of one and always holds the most recent value;
// slow readers skip intermediate values rather than block the writer.
type Signal struct {
	lock        sync.RWMutex
	value       bool
	subscribers map[chan bool]struct{}
}

func NewSignal(initial bool) *Signal {
	return &Signal{
		value:       initial,
		subscribers: make(map[chan bool]struct{}),
	}
}

func (s *Signal) Value() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.value
}

// Set stores the value and notifies every subscriber, including when the value is unchanged.
func (s *Signal) Set(value bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.value = value
	for ch := range s.subscribers {
		deliverLatest(ch, value)
	}
}

// Subscribe returns a channel that first receives the current value and then every update.
// The returned cancel func closes the channel; it is safe to call more than once.
func (s *Signal) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)

	s.lock.Lock()
	ch <- s.value
	s.subscribers[ch] = struct{}{}
	s.lock.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.lock.Lock()
			delete(s.subscribers, ch)
			s.lock.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// deliverLatest replaces any unread value. Callers hold the write lock, so no other writer races.
func deliverLatest(ch chan bool, value bool) {
	select {
	case <-ch:
	default:
	}
	ch <- value
}
