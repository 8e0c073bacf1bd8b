package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/tigerwatch/internal/api"
	"github.com/sweeney/tigerwatch/internal/auth"
	"github.com/sweeney/tigerwatch/internal/clock"
	"github.com/sweeney/tigerwatch/internal/config"
	"github.com/sweeney/tigerwatch/internal/live"
	"github.com/sweeney/tigerwatch/internal/relay"
	"github.com/sweeney/tigerwatch/internal/status"
	"github.com/sweeney/tigerwatch/internal/web"
)

var (
	httpAddr  string
	broker    string
	heartbeat time.Duration
	feedSize  int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web console, live event consumer and MQTT relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		var publisher relay.Publisher = relay.Nop{}
		if cfg.MQTTBroker != "" {
			p, err := relay.NewRealPublisher(relay.Options{Broker: cfg.MQTTBroker, Logger: logger})
			if err != nil {
				return fmt.Errorf("init mqtt: %w", err)
			}
			publisher = p
		}
		defer publisher.Close()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		return serve(cmd.Context(), serveDeps{
			cfg:       cfg,
			logger:    logger,
			clock:     clock.Real(),
			publisher: publisher,
			signals:   sigCh,
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&httpAddr, "http", "", "HTTP listen address (TIGERWATCH_HTTP_ADDR)")
	serveCmd.Flags().StringVar(&broker, "broker", "", "MQTT broker for the event relay, empty disables (TIGERWATCH_MQTT_BROKER)")
	serveCmd.Flags().DurationVar(&heartbeat, "heartbeat", 0, "Heartbeat interval, 0 disables (TIGERWATCH_HEARTBEAT)")
	serveCmd.Flags().IntVar(&feedSize, "feed-size", 0, "Activity log entries kept (TIGERWATCH_FEED_SIZE)")
}

type serveDeps struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     clock.Clock
	publisher relay.Publisher
	signals   <-chan os.Signal
	listener  net.Listener // nil: listen on cfg.HTTPAddr
}

// console is the state shared by the serve goroutines.
type console struct {
	deps    serveDeps
	log     *zap.Logger
	store   *auth.Store
	client  *api.Client
	feed    *live.Feed
	tracker *status.Tracker
	login   chan struct{}

	mu         sync.Mutex
	endSession context.CancelFunc // stops the live session in progress
}

func serve(ctx context.Context, d serveDeps) error {
	log := d.logger
	store, err := auth.NewStore(d.cfg.TokenFile, log)
	if err != nil {
		return fmt.Errorf("init credentials: %w", err)
	}
	client, err := api.New(d.cfg.APIURL, api.Options{Tokens: store, Logger: log.Named("api"), Clock: d.clock})
	if err != nil {
		return fmt.Errorf("init api client: %w", err)
	}

	c := &console{
		deps:   d,
		log:    log,
		store:  store,
		client: client,
		feed:   live.NewFeed(d.cfg.FeedSize),
		tracker: status.NewTracker(d.clock.Now(), status.Config{
			APIURL:           d.cfg.APIURL,
			WSURL:            d.cfg.WSURL,
			Broker:           d.cfg.MQTTBroker,
			HTTPAddr:         d.cfg.HTTPAddr,
			HeartbeatMs:      d.cfg.Heartbeat.Milliseconds(),
			SearchDebounceMs: d.cfg.SearchDebounce.Milliseconds(),
			FeedSize:         d.cfg.FeedSize,
		}),
		login: make(chan struct{}, 1),
	}
	c.tracker.SetClock(d.clock.Now)
	c.syncAuth()
	client.SetUnauthorizedHandler(func() {
		c.tracker.SetAuthenticated(false, "", time.Time{})
		c.dropSession()
		log.Warn("credential rejected, sign in again")
	})

	c.publishSystem("STARTUP", "")

	srv := web.New(d.cfg.HTTPAddr, web.Deps{
		Tracker:     c.tracker,
		Client:      client,
		Feed:        c.feed,
		Credentials: store,
		Logger:      log,
		Now:         d.clock.Now,
		OnLogin: func() {
			select {
			case c.login <- struct{}{}:
			default:
			}
		},
		OnLogout: c.dropSession,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if d.listener != nil {
			err = srv.Serve(d.listener)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("graceful shutdown incomplete", zap.Error(err))
			return srv.Close()
		}
		return nil
	})
	g.Go(func() error { return c.runLive(ctx) })
	g.Go(func() error { return c.runHeartbeat(ctx) })

	reason := ""
	g.Go(func() error {
		select {
		case s := <-d.signals:
			reason = signalName(s)
			log.Info("shutting down", zap.String("signal", reason))
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	log.Info("started",
		zap.String("api", d.cfg.APIURL),
		zap.String("http", d.cfg.HTTPAddr),
		zap.String("broker", d.cfg.MQTTBroker),
		zap.Duration("heartbeat", d.cfg.Heartbeat))

	err = g.Wait()
	c.publishSystem("SHUTDOWN", reason)
	return err
}

// handle folds one live event into local state and relays it.
func (c *console) handle(ev live.Event) {
	entry := c.feed.Apply(ev)
	c.tracker.UpdateFeed(c.feed.Counts(), c.feed.PendingApprovals(), entry.Time)
	c.log.Debug("event", zap.String("type", string(ev.Type)), zap.String("investigation", ev.InvestigationID))
	if err := c.deps.publisher.Publish(ev); err != nil {
		c.log.Warn("relay publish failed", zap.Error(err))
	}
	c.refreshMQTT()
}

// runLive consumes the event channel while a credential is held. After a
// rejection or a sign-out it waits for a new sign-in.
func (c *console) runLive(ctx context.Context) error {
	consumer := live.NewConsumer(c.deps.cfg.WSURL, c.handle, live.ConsumerOptions{
		Tokens:         c.store,
		Clock:          c.deps.clock,
		Logger:         c.log.Named("live"),
		OnUnauthorized: c.client.HandleUnauthorized,
		OnConnect:      c.tracker.SetLiveConnected,
	})
	for {
		if !c.store.Authenticated() {
			c.log.Info("live channel waiting for sign-in")
			select {
			case <-ctx.Done():
				return nil
			case <-c.login:
			}
			continue
		}

		session, stop := context.WithCancel(ctx)
		c.mu.Lock()
		c.endSession = stop
		c.mu.Unlock()

		err := consumer.Run(session)

		c.mu.Lock()
		c.endSession = nil
		c.mu.Unlock()
		stop()

		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, live.ErrUnauthorized) {
			return err
		}
	}
}

// dropSession closes the live socket opened under a credential that has
// since been cleared.
func (c *console) dropSession() {
	c.mu.Lock()
	stop := c.endSession
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (c *console) runHeartbeat(ctx context.Context) error {
	if c.deps.cfg.Heartbeat <= 0 {
		return nil
	}
	ticker := c.deps.clock.NewTicker(c.deps.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snap := c.publishSystem("HEARTBEAT", "")
			c.log.Info("heartbeat",
				zap.Duration("uptime", snap.Uptime()),
				zap.Int("events", snap.Counts.Total()),
				zap.Bool("live", snap.LiveConnected))
		}
	}
}

// publishSystem sends a lifecycle event carrying the status snapshot.
func (c *console) publishSystem(event, reason string) status.Snapshot {
	c.refreshMQTT()
	snap := c.tracker.Snapshot()
	err := c.deps.publisher.PublishSystem(relay.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		c.log.Warn("failed to publish system event", zap.String("event", event), zap.Error(err))
	}
	return snap
}

func (c *console) refreshMQTT() {
	if cs, ok := c.deps.publisher.(relay.ConnectionStatus); ok {
		c.tracker.SetMQTTConnected(cs.IsConnected())
	}
}

func (c *console) syncAuth() {
	if !c.store.Authenticated() {
		c.tracker.SetAuthenticated(false, "", time.Time{})
		return
	}
	claims, _ := c.store.Claims()
	c.tracker.SetAuthenticated(true, claims.Subject, claims.ExpiresAt)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
