// Package status tracks console health for the status page, the JSON
// endpoint and MQTT heartbeats.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/tigerwatch/internal/live"
)

// Config contains console configuration for display.
type Config struct {
	APIURL           string
	WSURL            string
	Broker           string // empty = relay disabled
	HTTPAddr         string
	HeartbeatMs      int64
	SearchDebounceMs int64
	FeedSize         int
}

// Snapshot is a point-in-time view of console state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	StartTime        time.Time
	Now              time.Time
	LiveConnected    bool
	MQTTConnected    bool
	Authenticated    bool
	Subject          string    // token subject, when the token is a JWT
	TokenExpiry      time.Time // zero when unknown
	Counts           live.EventCounts
	PendingApprovals int
	LastEvent        time.Time
	Config           Config
}

// Uptime returns the duration since the console started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether the console is signed in and receiving live events.
func (s Snapshot) Ready() bool {
	return s.Authenticated && s.LiveConnected
}

// Tracker holds mutable console state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetClock replaces the time source used to stamp snapshots.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// UpdateFeed records feed totals. Called after every applied event.
func (t *Tracker) UpdateFeed(counts live.EventCounts, pendingApprovals int, last time.Time) {
	t.mu.Lock()
	t.snap.Counts = counts
	t.snap.PendingApprovals = pendingApprovals
	if last.After(t.snap.LastEvent) {
		t.snap.LastEvent = last
	}
	t.mu.Unlock()
}

// SetLiveConnected sets the event channel link state.
func (t *Tracker) SetLiveConnected(connected bool) {
	t.mu.Lock()
	t.snap.LiveConnected = connected
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetAuthenticated sets the credential state. subject and expiry are
// cleared when authenticated is false.
func (t *Tracker) SetAuthenticated(authenticated bool, subject string, expiry time.Time) {
	t.mu.Lock()
	t.snap.Authenticated = authenticated
	if authenticated {
		t.snap.Subject = subject
		t.snap.TokenExpiry = expiry
	} else {
		t.snap.Subject = ""
		t.snap.TokenExpiry = time.Time{}
	}
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the console state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}
