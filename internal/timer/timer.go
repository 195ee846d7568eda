// Package timer implements the drift-free countdown primitive used for
// per-question and review-phase windows. Remaining time is always recomputed
// from absolute timestamps — duration − (now − start − pausedTotal) — never
// by decrementing a counter, so irregular or delayed ticks cannot accumulate
// error.
package timer

import (
	"sync"
	"time"

	"github.com/exambuddy/exambuddy-backend/internal/clock"
)

// WarningThreshold marks the informational low-time sub-state. It has no
// effect on timing decisions.
const WarningThreshold = 10 * time.Second

// State enumerates the timer lifecycle.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateExpired
)

// Timer is a single countdown. Pause/Resume exist only to freeze elapsed-time
// accounting around an in-flight submission; the paused duration is
// accumulated and subtracted so a resumed countdown is exact.
type Timer struct {
	mu          sync.Mutex
	clk         clock.Clock
	duration    time.Duration
	startedAt   time.Time
	pausedAt    time.Time
	pausedTotal time.Duration
	state       State
	onExpire    func()
}

// New creates an idle timer. onExpire fires exactly once, from the Tick that
// first observes expiry; it may be nil.
func New(clk clock.Clock, onExpire func()) *Timer {
	if clk == nil {
		clk = clock.System{}
	}
	return &Timer{clk: clk, onExpire: onExpire}
}

// Start begins a countdown of the given duration.
func (t *Timer) Start(duration time.Duration) {
	t.StartAt(t.clk.Now(), duration)
}

// StartAt begins a countdown whose window opened at start, which may lie in
// the past. Used when the authoritative start timestamp was recorded
// elsewhere.
func (t *Timer) StartAt(start time.Time, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.duration = duration
	t.startedAt = start
	t.pausedAt = time.Time{}
	t.pausedTotal = 0
	t.state = StateRunning
}

// Reset restarts the countdown with a new duration, clearing any pause
// accounting and a previous expiry.
func (t *Timer) Reset(duration time.Duration) {
	t.Start(duration)
}

// Pause freezes elapsed-time accounting. No-op unless running.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateRunning {
		return
	}
	t.pausedAt = t.clk.Now()
	t.state = StatePaused
}

// Resume continues the countdown, adding the time spent paused to the total
// excluded from elapsed accounting. No-op unless paused.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StatePaused {
		return
	}
	t.pausedTotal += t.clk.Now().Sub(t.pausedAt)
	t.pausedAt = time.Time{}
	t.state = StateRunning
}

// Remaining computes the time left from absolute timestamps. Never negative.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked()
}

func (t *Timer) remainingLocked() time.Duration {
	switch t.state {
	case StateIdle:
		return 0
	case StateExpired:
		return 0
	}
	now := t.clk.Now()
	if t.state == StatePaused {
		now = t.pausedAt
	}
	elapsed := now.Sub(t.startedAt) - t.pausedTotal
	remaining := t.duration - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Warning reports the informational low-time sub-state.
func (t *Timer) Warning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateRunning {
		return false
	}
	return t.remainingLocked() <= WarningThreshold
}

// State returns the current lifecycle state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Tick re-evaluates the countdown and returns the remaining time. The first
// Tick observing zero remaining moves the timer to its terminal EXPIRED
// state and fires onExpire; later ticks are no-ops. A paused timer never
// expires from a Tick.
func (t *Timer) Tick() time.Duration {
	t.mu.Lock()
	if t.state != StateRunning {
		rem := t.remainingLocked()
		t.mu.Unlock()
		return rem
	}
	rem := t.remainingLocked()
	if rem > 0 {
		t.mu.Unlock()
		return rem
	}
	t.state = StateExpired
	fire := t.onExpire
	t.mu.Unlock()

	if fire != nil {
		fire()
	}
	return 0
}
