// Package clock provides an injectable time source so that timer-driven
// code (debounced values, heartbeats, reconnect loops) can be tested with
// virtual time.
package clock

import "time"

// Clock is the subset of the time package used by tigerwatch.
type Clock interface {
	Now() time.Time

	// AfterFunc calls f in its own goroutine (real) or during Advance
	// (fake) once d has elapsed. A non-positive d is due immediately but
	// is never run synchronously by AfterFunc itself.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker delivers ticks on C every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a cancellable scheduled call.
type Timer struct {
	stop func() bool
}

// Stop prevents the call from running. It reports false if the call has
// already run or the timer was already stopped.
func (t *Timer) Stop() bool { return t.stop() }

// Ticker delivers periodic ticks on C. C is buffered with capacity 1;
// ticks are dropped when the reader falls behind.
type Ticker struct {
	C    <-chan time.Time
	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }
