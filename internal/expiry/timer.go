// Package expiry owns the single wall-clock callback that ends a session on
// time. At most one callback is ever pending: arming always clears the
// previous registration first, since only one session can be live.
package expiry

import (
	"sync"
	"time"
)

type Timer struct {
	mu      sync.Mutex
	pending *time.Timer
}

func NewTimer() *Timer {
	return &Timer{}
}

// Arm schedules fire to run at the given time, replacing any prior
// registration. A time already in the past fires immediately. The callback
// itself must re-validate session identity and endTime; a late fire against a
// newer session must be a no-op at the call site.
func (t *Timer) Arm(at time.Time, fire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil {
		t.pending.Stop()
	}
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	t.pending = time.AfterFunc(d, fire)
}

// Clear cancels any pending registration. A callback already in flight may
// still run; callers guard against that by re-reading persisted state.
func (t *Timer) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}
