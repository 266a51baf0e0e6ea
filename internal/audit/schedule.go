package audit

import (
	"sync"
	"time"
)

// schedule runs fn once, delay after being armed. Arming an armed schedule is
// a no-op. A timer that fires after cancel and re-arm is ignored through the
// generation counter.
type schedule struct {
	mu    sync.Mutex
	delay time.Duration
	fn    func()
	timer *time.Timer
	gen   uint64
}

func newSchedule(delay time.Duration, fn func()) *schedule {
	return &schedule{delay: delay, fn: fn}
}

func (s *schedule) arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		return
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.delay, func() { s.fire(gen) })
}

func (s *schedule) armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *schedule) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *schedule) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()
	s.fn()
}
