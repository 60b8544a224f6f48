package dispatch

import "sync"

// indicatorSet caps how many live progress reactions exist at once.
// Tasks past the cap still run, just without a visible indicator.
type indicatorSet struct {
	mu    sync.Mutex
	limit int
	live  map[string]string
}

func newIndicatorSet(limit int) *indicatorSet {
	return &indicatorSet{limit: limit, live: map[string]string{}}
}

// reserve claims a slot for the task. False means the cap is reached.
func (s *indicatorSet) reserve(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit > 0 && len(s.live) >= s.limit {
		return false
	}
	s.live[taskID] = ""
	return true
}

// replace swaps the stored reaction event for a reserved task and
// returns the previous one. ok is false when the task holds no slot.
func (s *indicatorSet) replace(taskID, eventID string) (old string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok = s.live[taskID]
	if ok {
		s.live[taskID] = eventID
	}
	return old, ok
}

// release frees the task's slot and returns its last reaction event.
func (s *indicatorSet) release(taskID string) (event string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok = s.live[taskID]
	delete(s.live, taskID)
	return event, ok
}

// size reports how many slots are held.
func (s *indicatorSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}
