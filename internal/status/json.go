package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/tigerwatch/internal/live"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event            string           `json:"event,omitempty"`
	Reason           string           `json:"reason,omitempty"`
	Ready            bool             `json:"ready"`
	UptimeSeconds    int64            `json:"uptime_seconds"`
	StartTime        string           `json:"start_time"`
	Timestamp        string           `json:"timestamp"`
	LastEvent        string           `json:"last_event,omitempty"`
	Live             LinkStatus       `json:"live"`
	MQTT             MQTTStatus       `json:"mqtt"`
	Auth             AuthStatus       `json:"auth"`
	Counts           live.EventCounts `json:"event_counts"`
	PendingApprovals int              `json:"pending_approvals"`
	Config           ConfigJSON       `json:"config"`
}

// LinkStatus reports the event channel state.
type LinkStatus struct {
	Connected bool   `json:"connected"`
	URL       string `json:"url"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Enabled   bool   `json:"enabled"`
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// AuthStatus reports the credential state. The token itself is never
// included.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	Subject       string `json:"subject,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// ConfigJSON is the JSON representation of console config.
type ConfigJSON struct {
	APIURL           string `json:"api_url"`
	HTTPAddr         string `json:"http_addr"`
	HeartbeatMs      int64  `json:"heartbeat_ms"`
	SearchDebounceMs int64  `json:"search_debounce_ms"`
	FeedSize         int    `json:"feed_size"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Ready:         snap.Ready(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Live:          LinkStatus{Connected: snap.LiveConnected, URL: snap.Config.WSURL},
		MQTT: MQTTStatus{
			Enabled:   snap.Config.Broker != "",
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
		},
		Auth:             AuthStatus{Authenticated: snap.Authenticated, Subject: snap.Subject},
		Counts:           snap.Counts,
		PendingApprovals: snap.PendingApprovals,
		Config: ConfigJSON{
			APIURL:           snap.Config.APIURL,
			HTTPAddr:         snap.Config.HTTPAddr,
			HeartbeatMs:      snap.Config.HeartbeatMs,
			SearchDebounceMs: snap.Config.SearchDebounceMs,
			FeedSize:         snap.Config.FeedSize,
		},
	}
	if !snap.LastEvent.IsZero() {
		inner.LastEvent = snap.LastEvent.UTC().Format(time.RFC3339)
	}
	if !snap.TokenExpiry.IsZero() {
		inner.Auth.ExpiresAt = snap.TokenExpiry.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
