package engine

import "sync"

// DefaultSeenMax is the size above which a sweep clears the seen-set.
const DefaultSeenMax = 100

// SeenSet remembers event identities that already produced a notification.
// It is owned by the runner; Sweep empties it wholesale once it grows past max.
type SeenSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
	max  int
}

// NewSeenSet returns an empty set that sweeps above max entries.
func NewSeenSet(max int) *SeenSet {
	if max <= 0 {
		max = DefaultSeenMax
	}
	return &SeenSet{keys: map[string]struct{}{}, max: max}
}

// SeenAndRecord reports whether key was already present and records it if not.
func (s *SeenSet) SeenAndRecord(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return true
	}
	s.keys[key] = struct{}{}
	return false
}

// Forget drops key so a failed notification can be retried.
func (s *SeenSet) Forget(key string) {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
}

// Size returns the number of remembered keys.
func (s *SeenSet) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Sweep evicts every key when the set holds more than max entries and
// reports whether it did.
func (s *SeenSet) Sweep() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.keys) <= s.max {
		return false
	}
	s.keys = map[string]struct{}{}
	return true
}
