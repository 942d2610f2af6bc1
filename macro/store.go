package macro

import "sync"

// Store is a thread-safe, append-only sequence of captured events.
// The zero value is ready for use.
//
// Readers always get copies, so a snapshot taken before playback is not
// affected by a capture session appending to the same store.
type Store struct {
	mu     sync.RWMutex
	events []Event
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Append adds an event to the end of the sequence.
func (s *Store) Append(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, e)
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.events)
}

// Snapshot returns a copy of the full sequence.
func (s *Store) Snapshot() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Event, len(s.events))
	copy(result, s.events)
	return result
}

// Since returns a copy of the events at index i and later, for pollers that
// have already seen the first i events. Out-of-range indexes return an empty
// slice.
func (s *Store) Since(i int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i < 0 {
		i = 0
	}
	if i >= len(s.events) {
		return []Event{}
	}

	result := make([]Event, len(s.events)-i)
	copy(result, s.events[i:])
	return result
}

// Replace swaps the stored sequence for the given one. The slice is copied;
// the caller keeps ownership of its argument.
func (s *Store) Replace(events []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make([]Event, len(events))
	copy(s.events, events)
}
