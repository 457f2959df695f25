// Package session holds the per-session sample text shared by every preview.
package session

import "sync"

// State is the sample text. The zero value is not usable; call New.
type State struct {
	mu   sync.RWMutex
	text string
	rev  uint64
	subs map[int]chan string
	next int
}

// New returns a State with empty sample text.
func New() *State {
	return &State{subs: make(map[int]chan string)}
}

// Text returns the current sample text.
func (s *State) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}

// Current returns the sample text with its revision. The revision starts
// at zero and grows by one on every SetText.
func (s *State) Current() (string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text, s.rev
}

// Revision returns the number of SetText calls so far.
func (s *State) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// SetText replaces the sample text and notifies every subscriber. A
// subscriber that has not consumed the previous value only sees the latest.
func (s *State) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	s.rev++
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- text
	}
}

// Subscribe returns a channel receiving each new sample text and a function
// that ends the subscription. The channel is closed on cancel.
func (s *State) Subscribe() (<-chan string, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	ch := make(chan string, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}
