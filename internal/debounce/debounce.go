// Package debounce delays propagation of a rapidly changing value until it
// has been stable for a quiescence period.
//
// A Value owns exactly one pending commit at a time. Every Set cancels the
// outstanding commit before scheduling its replacement, so only the most
// recent input can ever become the committed value, and never earlier than
// the configured delay after the last change.
package debounce

import (
	"sync"
	"time"

	"github.com/sweeney/tigerwatch/internal/clock"
)

// DefaultDelay is the quiescence period used by search inputs.
const DefaultDelay = 500 * time.Millisecond

// Option configures a Value.
type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock sets the time source. The real clock is used by default.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Value is a debounced value of type T. Safe for concurrent use.
type Value[T any] struct {
	clock clock.Clock

	// notify serialises commits so OnCommit observers see values in
	// commit order.
	notify sync.Mutex

	mu        sync.Mutex
	delay     time.Duration
	committed T
	latest    T
	pending   *clock.Timer
	gen       uint64
	closed    bool
	onCommit  func(T)
}

// New returns a Value whose committed value is initial. A negative delay is
// treated as zero.
func New[T any](initial T, delay time.Duration, opts ...Option) *Value[T] {
	o := options{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}
	if delay < 0 {
		delay = 0
	}
	return &Value[T]{
		clock:     o.clock,
		delay:     delay,
		committed: initial,
		latest:    initial,
	}
}

// OnCommit registers f to be called with every committed value. f runs
// outside the Value's lock and may call back into it.
func (v *Value[T]) OnCommit(f func(T)) {
	v.mu.Lock()
	v.onCommit = f
	v.mu.Unlock()
}

// Set records x as the latest input and restarts the quiescence period.
// It never commits synchronously, even with a zero delay.
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.latest = x
	v.scheduleLocked()
}

// SetDelay changes the quiescence period. A pending commit is rescheduled
// from now using the new delay.
func (v *Value[T]) SetDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || d == v.delay {
		return
	}
	v.delay = d
	if v.pending != nil {
		v.scheduleLocked()
	}
}

// Delay returns the current quiescence period.
func (v *Value[T]) Delay() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.delay
}

// Value returns the most recently committed value.
func (v *Value[T]) Value() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.committed
}

// Pending reports whether a commit is scheduled.
func (v *Value[T]) Pending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pending != nil
}

// Close cancels any pending commit. After Close no commit fires and Set
// and SetDelay are no-ops. Close is idempotent.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.cancelLocked()
}

func (v *Value[T]) scheduleLocked() {
	v.cancelLocked()
	v.gen++
	gen, x := v.gen, v.latest
	v.pending = v.clock.AfterFunc(v.delay, func() { v.commit(gen, x) })
}

func (v *Value[T]) cancelLocked() {
	if v.pending == nil {
		return
	}
	v.pending.Stop()
	v.pending = nil
	// A callback that already started still holds the old generation and
	// will be discarded by commit.
	v.gen++
}

func (v *Value[T]) commit(gen uint64, x T) {
	v.notify.Lock()
	defer v.notify.Unlock()

	v.mu.Lock()
	if v.closed || gen != v.gen {
		v.mu.Unlock()
		return
	}
	v.committed = x
	v.pending = nil
	f := v.onCommit
	v.mu.Unlock()

	if f != nil {
		f(x)
	}
}
