package timer

import (
	"context"
	"sync"
	"time"

	"github.com/exambuddy/exambuddy-backend/internal/clock"
)

// Tick is one broadcast update for a subscriber's countdown.
type Tick struct {
	Remaining time.Duration
	Warning   bool
	Expired   bool
}

// Subscription is one countdown fed by the shared publisher. Each
// subscription runs its own Timer anchored to the session's absolute window,
// so sessions stay drift-free even though they share a single ticker.
type Subscription struct {
	t    *Timer
	ch   chan Tick
	done bool
}

// C delivers ticks once per publisher interval. It is closed after the
// expiry tick or on Unsubscribe.
func (s *Subscription) C() <-chan Tick { return s.ch }

// Publisher consolidates many concurrently running countdowns onto one
// ticker. One OS timer serves N sessions; per-session remaining time is
// still derived from each subscription's own absolute timestamps.
type Publisher struct {
	clk      clock.Clock
	interval time.Duration

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewPublisher creates a publisher ticking at the given interval.
func NewPublisher(clk clock.Clock, interval time.Duration) *Publisher {
	if clk == nil {
		clk = clock.System{}
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Publisher{
		clk:      clk,
		interval: interval,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a countdown that started at start and runs for
// duration. The subscriber receives ticks until expiry or Unsubscribe.
func (p *Publisher) Subscribe(start time.Time, duration time.Duration) *Subscription {
	t := New(p.clk, nil)
	t.StartAt(start, duration)
	sub := &Subscription{
		t:  t,
		ch: make(chan Tick, 1),
	}
	p.mu.Lock()
	p.subs[sub] = struct{}{}
	p.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (p *Publisher) Unsubscribe(sub *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subs[sub]; !ok {
		return
	}
	delete(p.subs, sub)
	if !sub.done {
		sub.done = true
		close(sub.ch)
	}
}

// Run drives the shared ticker until the context is cancelled. Call in a
// goroutine.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.closeAll()
			return
		case <-ticker.C:
			p.Broadcast()
		}
	}
}

// Broadcast pushes one tick to every live subscription. Slow consumers drop
// ticks rather than blocking the shared loop; the next tick carries the
// freshly recomputed remaining time, so nothing is lost.
func (p *Publisher) Broadcast() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for sub := range p.subs {
		remaining := sub.t.Tick()
		tick := Tick{
			Remaining: remaining,
			Warning:   remaining > 0 && remaining <= WarningThreshold,
			Expired:   remaining == 0,
		}
		select {
		case sub.ch <- tick:
		default:
			// Slow consumer: replace the stale buffered tick so the
			// subscriber always wakes to the latest remaining time.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- tick:
			default:
			}
		}
		if tick.Expired {
			delete(p.subs, sub)
			sub.done = true
			close(sub.ch)
		}
	}
}

func (p *Publisher) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sub := range p.subs {
		delete(p.subs, sub)
		if !sub.done {
			sub.done = true
			close(sub.ch)
		}
	}
}

// Len reports the number of live subscriptions.
func (p *Publisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}
