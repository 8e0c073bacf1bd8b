// Package search runs a query function against a debounced input, keeping
// only the latest query in flight.
package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/tigerwatch/internal/clock"
	"github.com/sweeney/tigerwatch/internal/debounce"
)

// Func runs one query. It must return promptly once ctx is cancelled.
type Func[R any] func(ctx context.Context, query string) (R, error)

// Result is the outcome of one committed query.
type Result[R any] struct {
	Query string
	Value R
	Err   error
}

// Options configures a Searcher.
type Options struct {
	Delay  time.Duration // zero runs each query on the next tick
	Clock  clock.Clock
	Logger *zap.Logger
}

// Searcher feeds raw input through a debounce.Value. Each commit cancels
// the query still running and starts a new one; results of superseded
// queries are discarded.
type Searcher[R any] struct {
	input   *debounce.Value[string]
	run     Func[R]
	deliver func(Result[R])
	logger  *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	stop   context.CancelFunc
	cancel context.CancelFunc // in-flight query
	gen    uint64
	closed bool
	wg     sync.WaitGroup
}

// New returns a Searcher whose committed queries run fn and hand the
// result to deliver. deliver is called from the query goroutine.
func New[R any](fn Func[R], deliver func(Result[R]), opts Options) *Searcher[R] {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, stop := context.WithCancel(context.Background())
	s := &Searcher[R]{
		input:   debounce.New("", opts.Delay, debounce.WithClock(opts.Clock)),
		run:     fn,
		deliver: deliver,
		logger:  opts.Logger.Named("search"),
		ctx:     ctx,
		stop:    stop,
	}
	s.input.OnCommit(s.start)
	return s
}

// Type records the current raw input. The query runs once the input has
// been stable for the debounce delay.
func (s *Searcher[R]) Type(query string) {
	s.input.Set(query)
}

// Query returns the most recently committed query.
func (s *Searcher[R]) Query() string {
	return s.input.Value()
}

// SetDelay changes the debounce delay.
func (s *Searcher[R]) SetDelay(d time.Duration) {
	s.input.SetDelay(d)
}

// Close cancels the pending commit and the in-flight query, then waits for
// the query goroutine to return.
func (s *Searcher[R]) Close() {
	s.input.Close()

	s.mu.Lock()
	s.closed = true
	s.stop()
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Searcher[R]) start(query string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Debug("query committed", zap.String("query", query))
	go func() {
		defer s.wg.Done()
		defer cancel()

		value, err := s.run(ctx, query)
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		current := gen == s.gen && !s.closed
		s.mu.Unlock()
		if !current {
			return
		}
		if err != nil {
			s.logger.Warn("query failed", zap.String("query", query), zap.Error(err))
		}
		s.deliver(Result[R]{Query: query, Value: value, Err: err})
	}()
}
