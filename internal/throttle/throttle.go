// Package throttle rate-limits a callback to at most one call per interval.
//
// The first call in a quiet period runs immediately. Calls that arrive while
// the interval is running are coalesced into one trailing call at the end of
// the interval, made with the most recent argument.
package throttle

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Throttle 호출 빈도 제한기
type Throttle[T any] struct {
	clock    clock.Clock
	interval time.Duration
	fn       func(T)

	// running is held while fn runs, so Stop can wait out a flush in progress.
	running sync.Mutex

	mu         sync.Mutex
	last       time.Time
	timer      *clock.Timer
	pending    T
	hasPending bool
	gen        uint64
}

// New returns a throttle around fn. A nil clock uses the wall clock.
func New[T any](clk clock.Clock, interval time.Duration, fn func(T)) *Throttle[T] {
	if clk == nil {
		clk = clock.New()
	}
	return &Throttle[T]{clock: clk, interval: interval, fn: fn}
}

// Call runs fn(v) now if the interval since the last run has passed, and
// otherwise schedules it as the trailing call, replacing any earlier pending
// argument.
func (t *Throttle[T]) Call(v T) {
	t.mu.Lock()
	now := t.clock.Now()
	elapsed := now.Sub(t.last)
	if t.last.IsZero() || elapsed >= t.interval {
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		t.clearPending()
		t.last = now
		t.mu.Unlock()

		t.running.Lock()
		defer t.running.Unlock()
		t.fn(v)
		return
	}

	t.pending = v
	t.hasPending = true
	if t.timer == nil {
		t.timer = t.clock.AfterFunc(t.interval-elapsed, t.flush)
	}
	t.mu.Unlock()
}

func (t *Throttle[T]) flush() {
	t.mu.Lock()
	t.timer = nil
	if !t.hasPending {
		t.mu.Unlock()
		return
	}
	v := t.pending
	gen := t.gen
	t.clearPending()
	t.last = t.clock.Now()
	t.mu.Unlock()

	t.running.Lock()
	defer t.running.Unlock()
	t.mu.Lock()
	stopped := t.gen != gen
	t.mu.Unlock()
	if stopped {
		return
	}
	t.fn(v)
}

// Stop drops any pending trailing call and waits for a trailing call that is
// already running. No call scheduled before Stop runs after it returns.
func (t *Throttle[T]) Stop() {
	t.mu.Lock()
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.clearPending()
	t.mu.Unlock()

	t.running.Lock()
	t.running.Unlock()
}

func (t *Throttle[T]) clearPending() {
	var zero T
	t.pending = zero
	t.hasPending = false
}
