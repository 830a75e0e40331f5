package watcher

import "sync"

// DefaultSetCapacity bounds the in-memory dedup window.
const DefaultSetCapacity = 4096

// ProcessedSet is a bounded FIFO membership set over classification ids.
// It is the fast-path duplicate guard; the on-chain processed flag remains
// the authoritative one once an id ages out of the window.
type ProcessedSet struct {
	mu      sync.Mutex
	max     int
	order   []string
	members map[string]struct{}
}

// NewProcessedSet creates a set holding at most max ids. Non-positive max
// falls back to the default capacity.
func NewProcessedSet(max int) *ProcessedSet {
	if max <= 0 {
		max = DefaultSetCapacity
	}
	return &ProcessedSet{
		max:     max,
		members: make(map[string]struct{}, max),
	}
}

// Add inserts an id. Returns false if the id was already present. At
// capacity the oldest id is evicted first.
func (s *ProcessedSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[id]; ok {
		return false
	}

	if len(s.order) >= s.max {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.members, oldest)
	}

	s.order = append(s.order, id)
	s.members[id] = struct{}{}
	return true
}

// Contains reports membership without mutating the set.
func (s *ProcessedSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[id]
	return ok
}

// Len returns the current number of tracked ids.
func (s *ProcessedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
