package timer

import (
	"testing"
	"time"

	"github.com/exambuddy/exambuddy-backend/internal/clock"
)

func TestTimer_Remaining_NoDriftUnderIrregularTicks(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	tm := New(clk, nil)
	tm.Start(60 * time.Second)

	// Irregular tick schedule: jittered, delayed, bursty. Remaining must
	// always equal duration − elapsed regardless of how often Tick ran.
	steps := []time.Duration{
		700 * time.Millisecond,
		1300 * time.Millisecond,
		5 * time.Second,
		1 * time.Millisecond,
		12999 * time.Millisecond,
	}
	var elapsed time.Duration
	for _, step := range steps {
		clk.Advance(step)
		elapsed += step
		got := tm.Tick()
		want := 60*time.Second - elapsed
		if got != want {
			t.Fatalf("after %v elapsed: remaining = %v, want %v", elapsed, got, want)
		}
	}
}

func TestTimer_ExpiresExactlyOnce(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	fired := 0
	tm := New(clk, func() { fired++ })
	tm.Start(10 * time.Second)

	clk.Advance(9999 * time.Millisecond)
	if rem := tm.Tick(); rem <= 0 {
		t.Fatalf("timer expired early, remaining = %v", rem)
	}
	if fired != 0 {
		t.Fatalf("onExpire fired before T=10s")
	}

	clk.Advance(1 * time.Millisecond)
	tm.Tick()
	if fired != 1 {
		t.Fatalf("onExpire fired %d times at expiry, want 1", fired)
	}
	if tm.State() != StateExpired {
		t.Errorf("state = %v, want StateExpired", tm.State())
	}

	// Further ticks are no-ops against the terminal state.
	clk.Advance(time.Hour)
	tm.Tick()
	tm.Tick()
	if fired != 1 {
		t.Fatalf("onExpire fired %d times after expiry, want 1", fired)
	}
	if tm.Remaining() != 0 {
		t.Errorf("remaining after expiry = %v, want 0", tm.Remaining())
	}
}

func TestTimer_PauseDoesNotLeakIntoElapsed(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	tm := New(clk, nil)
	tm.Start(30 * time.Second)

	clk.Advance(5 * time.Second)
	tm.Pause()

	// 7 seconds pass while paused (an in-flight submission retrying).
	clk.Advance(7 * time.Second)
	if got := tm.Remaining(); got != 25*time.Second {
		t.Fatalf("remaining while paused = %v, want 25s", got)
	}

	tm.Resume()
	clk.Advance(10 * time.Second)

	// 15s of real countdown elapsed; the 7s pause is excluded.
	if got := tm.Remaining(); got != 15*time.Second {
		t.Fatalf("remaining after resume = %v, want 15s", got)
	}
}

func TestTimer_PausedTimerDoesNotExpire(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	fired := 0
	tm := New(clk, func() { fired++ })
	tm.Start(10 * time.Second)

	clk.Advance(9 * time.Second)
	tm.Pause()
	clk.Advance(time.Minute)
	tm.Tick()
	if fired != 0 {
		t.Fatal("paused timer must not expire from a tick")
	}

	tm.Resume()
	clk.Advance(time.Second)
	tm.Tick()
	if fired != 1 {
		t.Fatalf("onExpire fired %d times after resume past deadline, want 1", fired)
	}
}

func TestTimer_ResetClearsExpiry(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	tm := New(clk, nil)
	tm.Start(time.Second)
	clk.Advance(2 * time.Second)
	tm.Tick()
	if tm.State() != StateExpired {
		t.Fatal("expected expired timer")
	}

	tm.Reset(20 * time.Second)
	if tm.State() != StateRunning {
		t.Fatalf("state after reset = %v, want StateRunning", tm.State())
	}
	if got := tm.Remaining(); got != 20*time.Second {
		t.Fatalf("remaining after reset = %v, want 20s", got)
	}
}

func TestTimer_WarningIsInformationalOnly(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	tm := New(clk, nil)
	tm.Start(60 * time.Second)

	if tm.Warning() {
		t.Error("warning at 60s remaining")
	}
	clk.Advance(50 * time.Second)
	if !tm.Warning() {
		t.Error("no warning at 10s remaining")
	}
	// Warning state must not change the countdown itself.
	if got := tm.Remaining(); got != 10*time.Second {
		t.Errorf("remaining = %v, want 10s", got)
	}
}

func TestTimer_StartAtAnchorsToPastWindow(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	start := clk.Now()
	clk.Advance(25 * time.Second)

	// The window opened 25s ago; the timer picks up mid-countdown.
	tm := New(clk, nil)
	tm.StartAt(start, 60*time.Second)

	if got, want := tm.Remaining(), 35*time.Second; got != want {
		t.Fatalf("Remaining() = %v, want %v", got, want)
	}

	clk.Advance(35 * time.Second)
	if got := tm.Tick(); got != 0 {
		t.Fatalf("Tick() = %v, want 0", got)
	}
	if tm.State() != StateExpired {
		t.Fatalf("state = %v, want expired", tm.State())
	}
}
