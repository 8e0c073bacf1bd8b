package live

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/tigerwatch/internal/confidence"
	"github.com/sweeney/tigerwatch/internal/ring"
)

// Investigation statuses tracked by the feed.
const (
	StatusRunning          = "running"
	StatusAwaitingApproval = "awaiting_approval"
	StatusCompleted        = "completed"
)

const (
	// DefaultFeedSize is the number of entries kept in the global log.
	DefaultFeedSize = 200
	// perInvestigationSize bounds the activity kept per investigation.
	perInvestigationSize = 50
	// maxInvestigations bounds tracked investigations; the least recently
	// updated is evicted first.
	maxInvestigations = 256
)

// EventCounts tallies events received per type.
type EventCounts struct {
	AgentActivity          int `json:"agent_activity"`
	ApprovalRequired       int `json:"approval_required"`
	InvestigationCompleted int `json:"investigation_completed"`
	InvestigationCreated   int `json:"investigation_created"`
	TigerIdentified        int `json:"tiger_identified"`
}

// Total returns the sum of all counts.
func (c EventCounts) Total() int {
	return c.AgentActivity + c.ApprovalRequired + c.InvestigationCompleted +
		c.InvestigationCreated + c.TigerIdentified
}

// Entry is one line of the activity log.
type Entry struct {
	ID              string    `json:"id"`
	Time            time.Time `json:"time"`
	Type            Type      `json:"type"`
	InvestigationID string    `json:"investigation_id,omitempty"`
	Agent           string    `json:"agent,omitempty"`
	Message         string    `json:"message"`
}

// Progress is the accumulated state of one investigation.
type Progress struct {
	InvestigationID  string           `json:"investigation_id"`
	Title            string           `json:"title,omitempty"`
	Status           string           `json:"status"`
	Percent          float64          `json:"percent"`
	Summary          string           `json:"summary,omitempty"`
	PendingApprovals []Approval       `json:"pending_approvals,omitempty"`
	Identified       []Identification `json:"identified,omitempty"`
	Activity         []Entry          `json:"activity,omitempty"`
	StartedAt        time.Time        `json:"started_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	CompletedAt      time.Time        `json:"completed_at,omitempty"`
}

// Snapshot is a point-in-time copy of the feed.
type Snapshot struct {
	Counts           EventCounts `json:"counts"`
	PendingApprovals int         `json:"pending_approvals"`
	Recent           []Entry     `json:"recent"`
	Investigations   []Progress  `json:"investigations"`
}

type progressState struct {
	Progress
	activity *ring.Buffer[Entry]
}

// Feed accumulates live events. Safe for concurrent use.
type Feed struct {
	mu       sync.RWMutex
	log      *ring.Buffer[Entry]
	progress map[string]*progressState
	counts   EventCounts
	newID    func() string

	subMu sync.RWMutex
	subs  map[chan struct{}]struct{}
}

// NewFeed returns a feed keeping the last size entries in its global log.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{
		log:      ring.New[Entry](size),
		progress: make(map[string]*progressState),
		newID:    uuid.NewString,
		subs:     make(map[chan struct{}]struct{}),
	}
}

// Apply folds ev into the feed and returns the log entry it produced.
func (f *Feed) Apply(ev Event) Entry {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	entry := Entry{
		ID:              f.newID(),
		Time:            ev.Timestamp,
		Type:            ev.Type,
		InvestigationID: ev.InvestigationID,
		Message:         describe(ev),
	}
	if ev.Activity != nil {
		entry.Agent = ev.Activity.Agent
	} else if ev.Approval != nil {
		entry.Agent = ev.Approval.Agent
	}

	f.mu.Lock()
	f.count(ev.Type)
	f.log.Push(entry)
	if ev.InvestigationID != "" {
		f.applyProgress(ev, entry)
	}
	f.mu.Unlock()

	f.notify()
	return entry
}

func (f *Feed) count(t Type) {
	switch t {
	case AgentActivity:
		f.counts.AgentActivity++
	case ApprovalRequired:
		f.counts.ApprovalRequired++
	case InvestigationCompleted:
		f.counts.InvestigationCompleted++
	case InvestigationCreated:
		f.counts.InvestigationCreated++
	case TigerIdentified:
		f.counts.TigerIdentified++
	}
}

func (f *Feed) applyProgress(ev Event, entry Entry) {
	p := f.progressFor(ev.InvestigationID, ev.Timestamp)
	p.UpdatedAt = ev.Timestamp
	p.activity.Push(entry)
	completed := !p.CompletedAt.IsZero()

	switch {
	case ev.Creation != nil:
		p.Title = ev.Creation.Title
		p.StartedAt = ev.Timestamp
	case ev.Activity != nil:
		if pct := ev.Activity.Progress; pct > p.Percent && !completed {
			p.Percent = min(pct, 100)
		}
	case ev.Approval != nil:
		if !completed {
			p.PendingApprovals = append(p.PendingApprovals, *ev.Approval)
			p.Status = StatusAwaitingApproval
		}
	case ev.Identification != nil:
		p.Identified = upsertIdentification(p.Identified, *ev.Identification)
	case ev.Completion != nil:
		p.Status = StatusCompleted
		if s := ev.Completion.Status; s != "" {
			p.Status = s
		}
		p.Summary = ev.Completion.Summary
		p.Percent = 100
		p.PendingApprovals = nil
		p.CompletedAt = ev.Timestamp
	}
}

func (f *Feed) progressFor(id string, now time.Time) *progressState {
	if p, ok := f.progress[id]; ok {
		return p
	}
	if len(f.progress) >= maxInvestigations {
		f.evictOldest()
	}
	p := &progressState{
		Progress: Progress{
			InvestigationID: id,
			Status:          StatusRunning,
			StartedAt:       now,
		},
		activity: ring.New[Entry](perInvestigationSize),
	}
	f.progress[id] = p
	return p
}

func (f *Feed) evictOldest() {
	var oldest string
	var oldestAt time.Time
	for id, p := range f.progress {
		if oldest == "" || p.UpdatedAt.Before(oldestAt) {
			oldest, oldestAt = id, p.UpdatedAt
		}
	}
	delete(f.progress, oldest)
}

func upsertIdentification(list []Identification, id Identification) []Identification {
	for i := range list {
		if list[i].TigerID == id.TigerID {
			list[i] = id
			return list
		}
	}
	return append(list, id)
}

// ResolveApproval removes a pending approval once it has been answered.
// It reports whether the approval was pending.
func (f *Feed) ResolveApproval(investigationID, approvalID string) bool {
	f.mu.Lock()
	p, ok := f.progress[investigationID]
	if !ok {
		f.mu.Unlock()
		return false
	}
	found := false
	kept := p.PendingApprovals[:0]
	for _, a := range p.PendingApprovals {
		if a.ApprovalID == approvalID {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	p.PendingApprovals = kept
	if found && len(kept) == 0 && p.Status == StatusAwaitingApproval {
		p.Status = StatusRunning
	}
	f.mu.Unlock()

	if found {
		f.notify()
	}
	return found
}

// Investigation returns the progress of one investigation.
func (f *Feed) Investigation(id string) (Progress, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.progress[id]
	if !ok {
		return Progress{}, false
	}
	return p.copy(), true
}

// PendingApprovals returns the number of unanswered approval requests.
func (f *Feed) PendingApprovals() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, p := range f.progress {
		n += len(p.PendingApprovals)
	}
	return n
}

// Counts returns the per-type event counts.
func (f *Feed) Counts() EventCounts {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.counts
}

// Snapshot returns a copy of the whole feed, investigations ordered by most
// recent update and the log newest first.
func (f *Feed) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s := Snapshot{Counts: f.counts}
	recent := f.log.Items()
	for i := len(recent) - 1; i >= 0; i-- {
		s.Recent = append(s.Recent, recent[i])
	}
	for _, p := range f.progress {
		s.PendingApprovals += len(p.PendingApprovals)
		s.Investigations = append(s.Investigations, p.copy())
	}
	sort.Slice(s.Investigations, func(i, j int) bool {
		a, b := s.Investigations[i], s.Investigations[j]
		if a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.InvestigationID < b.InvestigationID
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})
	return s
}

func (p *progressState) copy() Progress {
	out := p.Progress
	out.PendingApprovals = append([]Approval(nil), p.PendingApprovals...)
	out.Identified = append([]Identification(nil), p.Identified...)
	out.Activity = p.activity.Items()
	return out
}

// Subscribe returns a channel that receives a signal after every change.
// Signals are coalesced when the reader is slow.
func (f *Feed) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	f.subMu.Lock()
	f.subs[ch] = struct{}{}
	f.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch.
func (f *Feed) Unsubscribe(ch chan struct{}) {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	if _, ok := f.subs[ch]; ok {
		delete(f.subs, ch)
		close(ch)
	}
}

func (f *Feed) notify() {
	f.subMu.RLock()
	defer f.subMu.RUnlock()
	for ch := range f.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func describe(ev Event) string {
	switch {
	case ev.Activity != nil:
		if ev.Activity.Message != "" {
			return ev.Activity.Message
		}
		return ev.Activity.Action
	case ev.Approval != nil:
		if ev.Approval.Description != "" {
			return fmt.Sprintf("Approval required: %s (%s)", ev.Approval.Action, ev.Approval.Description)
		}
		return "Approval required: " + ev.Approval.Action
	case ev.Creation != nil:
		return "Investigation created: " + ev.Creation.Title
	case ev.Identification != nil:
		name := ev.Identification.TigerName
		if name == "" {
			name = ev.Identification.TigerID
		}
		score := ev.Identification.Confidence
		return fmt.Sprintf("Tiger identified: %s (%s confidence, %s)",
			name, confidence.Classify(score), confidence.Percent(score))
	case ev.Completion != nil:
		if ev.Completion.Summary != "" {
			return "Investigation completed: " + ev.Completion.Summary
		}
		return "Investigation completed"
	}
	return string(ev.Type)
}
