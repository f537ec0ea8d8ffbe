package events

import "sync"

// Default dedupe window size.
const defaultSeenCapacity = 10000

// seenSet remembers recently published event ids so a redelivered envelope
// is appended to the log at most once. Bounded: when full, the oldest id is
// forgotten (FIFO), which is enough for the redelivery windows we see.
type seenSet struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	next  int
	cap   int
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = defaultSeenCapacity
	}
	return &seenSet{
		ids:   make(map[string]struct{}, capacity),
		order: make([]string, capacity),
		cap:   capacity,
	}
}

// seenAndRecord atomically checks membership and records the id if new.
// Returns true when the id was already present.
func (s *seenSet) seenAndRecord(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return true
	}
	if evicted := s.order[s.next]; evicted != "" {
		delete(s.ids, evicted)
	}
	s.order[s.next] = id
	s.next = (s.next + 1) % s.cap
	s.ids[id] = struct{}{}
	return false
}

func (s *seenSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
