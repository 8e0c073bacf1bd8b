package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sweeney/tigerwatch/internal/clock"
)

// DefaultRetryInterval is the wait between reconnect attempts.
const DefaultRetryInterval = 5 * time.Second

// ErrUnauthorized is returned by Run when the server rejects the
// credential during the handshake.
var ErrUnauthorized = errors.New("live: unauthorized")

// TokenSource supplies the bearer credential for the handshake.
type TokenSource interface {
	Token() (string, bool)
}

// ConsumerOptions configure a Consumer. Zero values select defaults.
type ConsumerOptions struct {
	Tokens         TokenSource
	Dialer         *websocket.Dialer
	RetryInterval  time.Duration
	Clock          clock.Clock
	Logger         *zap.Logger
	OnUnauthorized func()
	OnConnect      func(connected bool)
}

// Consumer reads events from the WebSocket channel and passes them to a
// handler, reconnecting until its context ends.
type Consumer struct {
	url     string
	handler func(Event)
	opts    ConsumerOptions

	connected atomic.Bool
}

// NewConsumer returns a Consumer for the channel at url.
func NewConsumer(url string, handler func(Event), opts ConsumerOptions) *Consumer {
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Consumer{url: url, handler: handler, opts: opts}
}

// Connected reports whether the socket is currently open.
func (c *Consumer) Connected() bool { return c.connected.Load() }

// Run connects and consumes until ctx is cancelled (returning nil) or the
// credential is rejected (returning ErrUnauthorized). Other failures are
// logged and retried after the retry interval.
func (c *Consumer) Run(ctx context.Context) error {
	log := c.opts.Logger
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrUnauthorized) {
			log.Warn("live channel rejected credential")
			if c.opts.OnUnauthorized != nil {
				c.opts.OnUnauthorized()
			}
			return err
		}
		log.Warn("live channel disconnected",
			zap.Error(err),
			zap.Duration("retry_in", c.opts.RetryInterval))

		if !c.wait(ctx) {
			return nil
		}
	}
}

func (c *Consumer) wait(ctx context.Context) bool {
	done := make(chan struct{})
	t := c.opts.Clock.AfterFunc(c.opts.RetryInterval, func() { close(done) })
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-done:
		return true
	}
}

func (c *Consumer) session(ctx context.Context) error {
	header := http.Header{}
	if c.opts.Tokens != nil {
		if tok, ok := c.opts.Tokens.Token(); ok {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer conn.Close()

	c.setConnected(true)
	defer c.setConnected(false)
	c.opts.Logger.Info("live channel connected", zap.String("url", c.url))

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		ev, err := Decode(raw)
		if err != nil {
			c.opts.Logger.Warn("skipping live message", zap.Error(err))
			continue
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = c.opts.Clock.Now()
		}
		c.handler(ev)
	}
}

func (c *Consumer) setConnected(v bool) {
	if c.connected.Swap(v) != v && c.opts.OnConnect != nil {
		c.opts.OnConnect(v)
	}
}
