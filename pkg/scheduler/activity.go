package scheduler

import (
	"sync/atomic"
)

// ActivitySignal reports whether a batch is currently in flight. Rendering
// layers consult it to decide between a full progress view and a compact
// suppressed one while a larger task owns the screen.
type ActivitySignal struct {
	active int64
}

// Begin marks the start of a unit of foreground activity.
func (s *ActivitySignal) Begin() {
	atomic.AddInt64(&s.active, 1)
}

// End marks the end of a unit of foreground activity. Calls are paired with
// Begin; an unmatched End leaves the signal inactive.
func (s *ActivitySignal) End() {
	if atomic.AddInt64(&s.active, -1) < 0 {
		atomic.StoreInt64(&s.active, 0)
	}
}

// Active reports whether any activity is in progress.
func (s *ActivitySignal) Active() bool {
	return atomic.LoadInt64(&s.active) > 0
}
