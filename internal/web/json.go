package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sweeney/tigerwatch/internal/live"
	"github.com/sweeney/tigerwatch/internal/status"
)

// StreamEvent is the body of each activity stream message.
type StreamEvent struct {
	Counts           live.EventCounts `json:"counts"`
	PendingApprovals int              `json:"pending_approvals"`
	Latest           *live.Entry      `json:"latest,omitempty"`
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleActivityJSON(w http.ResponseWriter, r *http.Request) {
	data, _ := json.MarshalIndent(s.feed.Snapshot(), "", "  ")
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleActivityStream pushes a server-sent event on every feed change
// until the client disconnects or the console signs out.
func (s *Server) handleActivityStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ended := s.session()
	if _, ok := s.creds.Token(); !ok {
		s.redirectToLogin(w, r)
		return
	}
	ch := s.feed.Subscribe()
	defer s.feed.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	send := func() bool {
		snap := s.feed.Snapshot()
		ev := StreamEvent{Counts: snap.Counts, PendingApprovals: snap.PendingApprovals}
		if len(snap.Recent) > 0 {
			ev.Latest = &snap.Recent[0]
		}
		data, _ := json.Marshal(ev)
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send() {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ended:
			return
		case _, ok := <-ch:
			if !ok || !send() {
				return
			}
		}
	}
}
