package timer

import (
	"testing"
	"time"

	"github.com/exambuddy/exambuddy-backend/internal/clock"
)

func TestPublisher_PerSubscriberRemaining(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clk := clock.NewFake(start)
	pub := NewPublisher(clk, time.Second)

	// Two sessions that started at different times share the one ticker but
	// must each see remaining derived from their own (start, duration).
	a := pub.Subscribe(start, 30*time.Second)
	b := pub.Subscribe(start.Add(-10*time.Second), 30*time.Second)

	clk.Advance(5 * time.Second)
	pub.Broadcast()

	tickA := <-a.C()
	tickB := <-b.C()

	if tickA.Remaining != 25*time.Second {
		t.Errorf("subscriber A remaining = %v, want 25s", tickA.Remaining)
	}
	if tickB.Remaining != 15*time.Second {
		t.Errorf("subscriber B remaining = %v, want 15s", tickB.Remaining)
	}
}

func TestPublisher_ExpiryClosesSubscription(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clk := clock.NewFake(start)
	pub := NewPublisher(clk, time.Second)

	sub := pub.Subscribe(start, 3*time.Second)

	clk.Advance(3 * time.Second)
	pub.Broadcast()

	tick, ok := <-sub.C()
	if !ok {
		t.Fatal("channel closed before delivering the expiry tick")
	}
	if !tick.Expired || tick.Remaining != 0 {
		t.Fatalf("expected expired tick, got %+v", tick)
	}
	if _, ok := <-sub.C(); ok {
		t.Error("channel must close after the expiry tick")
	}
	if pub.Len() != 0 {
		t.Errorf("publisher still holds %d subscriptions after expiry", pub.Len())
	}
}

func TestPublisher_UnsubscribeIsIdempotent(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	pub := NewPublisher(clk, time.Second)

	sub := pub.Subscribe(clk.Now(), time.Minute)
	pub.Unsubscribe(sub)
	pub.Unsubscribe(sub) // second call must not panic on a closed channel

	if pub.Len() != 0 {
		t.Errorf("expected no subscriptions, got %d", pub.Len())
	}
}

func TestPublisher_SlowConsumerDropsTicksNotAccuracy(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clk := clock.NewFake(start)
	pub := NewPublisher(clk, time.Second)

	sub := pub.Subscribe(start, time.Minute)

	// Nobody reads between broadcasts; intermediate ticks are dropped.
	for i := 0; i < 5; i++ {
		clk.Advance(time.Second)
		pub.Broadcast()
	}

	tick := <-sub.C()
	// Whatever tick survives the buffer reflects absolute elapsed time, not
	// a count of delivered ticks.
	if tick.Remaining != 55*time.Second {
		t.Errorf("remaining = %v, want 55s", tick.Remaining)
	}
}
