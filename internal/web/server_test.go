package web

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sweeney/tigerwatch/internal/api"
	"github.com/sweeney/tigerwatch/internal/auth"
	"github.com/sweeney/tigerwatch/internal/live"
	"github.com/sweeney/tigerwatch/internal/status"
)

// fakeAPI serves canned responses under /api/v1 and records requests.
type fakeAPI struct {
	mu       sync.Mutex
	requests []string // "METHOD path?query"
	bodies   map[string]string
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeAPI() *fakeAPI {
	f := &fakeAPI{bodies: map[string]string{}, routes: map[string]func(http.ResponseWriter, *http.Request){}}
	f.json("GET /api/v1/analytics/summary", api.AnalyticsSummary{
		TotalInvestigations: 12, ActiveInvestigations: 3, TotalTigers: 40,
		AverageConfidence: 0.72, ByStatus: map[string]int{"active": 3},
	})
	f.json("GET /api/v1/tigers", api.Page[api.Tiger]{
		Data:  []api.Tiger{{ID: "t-1", Name: "Raja", Status: "verified", Confidence: 0.91, Model: "wildlife_tools"}},
		Total: 1, Page: 1, PageSize: 25,
	})
	f.json("GET /api/v1/tigers/t-1", api.Tiger{ID: "t-1", Name: "Raja", Status: "verified", Confidence: 0.91, Model: "wildlife_tools"})
	f.json("GET /api/v1/investigations", api.Page[api.Investigation]{
		Data:  []api.Investigation{{ID: "inv-1", Title: "Roadside zoo", Status: "active"}},
		Total: 60, Page: 2, PageSize: 25,
	})
	f.json("GET /api/v1/investigations/inv-1", api.Investigation{ID: "inv-1", Title: "Roadside zoo", Status: "active"})
	f.json("GET /api/v1/investigations/inv-1/annotations", []api.Annotation{{ID: "n-1", Author: "ana", Body: "cub sold twice"}})
	f.json("GET /api/v1/facilities", api.Page[api.Facility]{Data: []api.Facility{{ID: "f-1", Name: "Big Cat Ranch"}}, Total: 1, Page: 1, PageSize: 25})
	f.json("GET /api/v1/facilities/f-1", api.Facility{ID: "f-1", Name: "Big Cat Ranch", Country: "US", TigerCount: 14})
	f.json("GET /api/v1/verification", api.Page[api.VerificationItem]{
		Data:  []api.VerificationItem{{ID: "v-1", TigerID: "t-1", Confidence: 0.5, Status: "pending"}},
		Total: 1, Page: 1, PageSize: 25,
	})
	f.json("GET /api/v1/integrations", []api.Integration{{Name: "usda", Enabled: true, Status: "active"}})
	for _, route := range []string{
		"POST /api/v1/investigations/inv-1/approvals/ap-1",
		"POST /api/v1/investigations/inv-1/annotations",
		"POST /api/v1/verification/v-1/approve",
		"POST /api/v1/verification/v-1/reject",
		"POST /api/v1/integrations/usda/sync",
	} {
		f.json(route, map[string]bool{"ok": true})
	}
	return f
}

func (f *fakeAPI) json(route string, v any) {
	f.routes[route] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
}

func (f *fakeAPI) status(route string, code int) {
	f.routes[route] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		w.Write([]byte(`{"detail":"nope"}`))
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	key := r.Method + " " + r.URL.Path
	f.mu.Lock()
	f.requests = append(f.requests, key+"?"+r.URL.RawQuery)
	f.bodies[key] = string(body)
	h, ok := f.routes[key]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func (f *fakeAPI) seen(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.requests {
		if strings.HasPrefix(r, prefix) {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeAPI) body(route string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[route]
}

type fixture struct {
	ts      *httptest.Server
	api     *fakeAPI
	store   *auth.Store
	feed    *live.Feed
	tracker *status.Tracker
	logins  atomic.Int32
	logouts atomic.Int32
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	fx := &fixture{api: newFakeAPI(), feed: live.NewFeed(10)}
	apiServer := httptest.NewServer(fx.api)
	t.Cleanup(apiServer.Close)

	store, err := auth.NewStore("", nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if token != "" {
		store.Set(token)
	}
	fx.store = store

	client, err := api.New(apiServer.URL, api.Options{Tokens: store})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	fx.tracker = status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), status.Config{
		APIURL: apiServer.URL, HTTPAddr: ":8080", HeartbeatMs: 900000, FeedSize: 10,
	})

	srv := New(":0", Deps{
		Tracker:     fx.tracker,
		Client:      client,
		Feed:        fx.feed,
		Credentials: store,
		OnLogin:     func() { fx.logins.Add(1) },
		OnLogout:    func() { fx.logouts.Add(1) },
	})
	fx.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(fx.ts.Close)
	return fx
}

// noRedirect returns responses to redirects instead of following them.
var noRedirect = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
}

func get(t *testing.T, fx *fixture, path string) (*http.Response, string) {
	t.Helper()
	resp, err := noRedirect.Get(fx.ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func post(t *testing.T, fx *fixture, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := noRedirect.PostForm(fx.ts.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	resp.Body.Close()
	return resp
}

func TestJSONEndpoint(t *testing.T) {
	fx := newFixture(t, "")
	fx.tracker.SetMQTTConnected(true)
	fx.tracker.UpdateFeed(live.EventCounts{AgentActivity: 5}, 1, time.Now())

	resp, body := get(t, fx, "/index.json")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal([]byte(body), &sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Counts.AgentActivity != 5 {
		t.Errorf("Counts.AgentActivity: got %d, want 5", sj.Status.Counts.AgentActivity)
	}
	if sj.Status.PendingApprovals != 1 {
		t.Errorf("PendingApprovals: got %d, want 1", sj.Status.PendingApprovals)
	}
	if sj.Status.Config.HeartbeatMs != 900000 {
		t.Errorf("Config.HeartbeatMs: got %d", sj.Status.Config.HeartbeatMs)
	}
}

func TestRedirectsToLoginWithoutToken(t *testing.T) {
	fx := newFixture(t, "")

	for _, path := range []string{"/", "/tigers", "/investigations/inv-1", "/activity.json"} {
		resp, _ := get(t, fx, path)
		if resp.StatusCode != http.StatusSeeOther {
			t.Errorf("%s: got %d, want 303", path, resp.StatusCode)
			continue
		}
		loc := resp.Header.Get("Location")
		if !strings.HasPrefix(loc, "/login") {
			t.Errorf("%s: Location %q", path, loc)
		}
	}
	if got := fx.api.seen(""); len(got) != 0 {
		t.Errorf("API should not be called without a token, saw %v", got)
	}

	resp, _ := get(t, fx, "/tigers?q=raja")
	if loc := resp.Header.Get("Location"); loc != "/login?next=%2Ftigers%3Fq%3Draja" {
		t.Errorf("Location: got %q", loc)
	}
}

func expiredToken(t *testing.T) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "analyst",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestRedirectsWithExpiredToken(t *testing.T) {
	fx := newFixture(t, expiredToken(t))

	resp, _ := get(t, fx, "/tigers")
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status: got %d, want 303", resp.StatusCode)
	}
}

func TestLoginStoresToken(t *testing.T) {
	fx := newFixture(t, "")

	resp := post(t, fx, "/login", url.Values{"token": {"  abc123  "}, "next": {"/tigers"}})
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status: got %d, want 303", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/tigers" {
		t.Errorf("Location: got %q, want /tigers", loc)
	}
	if tok, _ := fx.store.Token(); tok != "abc123" {
		t.Errorf("token: got %q, want abc123", tok)
	}
	if !fx.tracker.Snapshot().Authenticated {
		t.Error("expected tracker to report authenticated")
	}
	if n := fx.logins.Load(); n != 1 {
		t.Errorf("OnLogin calls: got %d, want 1", n)
	}

	resp, body := get(t, fx, "/tigers")
	if resp.StatusCode != 200 {
		t.Fatalf("after login: got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Raja") {
		t.Error("tiger list missing Raja")
	}
}

func TestLoginRejectsEmptyToken(t *testing.T) {
	fx := newFixture(t, "")
	resp := post(t, fx, "/login", url.Values{"token": {" "}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
	if fx.store.Authenticated() {
		t.Error("empty token should not be stored")
	}
}

func TestLoginRejectsExpiredTokenKeepsCurrent(t *testing.T) {
	fx := newFixture(t, "valid-session")

	resp := post(t, fx, "/login", url.Values{"token": {expiredToken(t)}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
	if tok, ok := fx.store.Token(); !ok || tok != "valid-session" {
		t.Errorf("token after refused login: got %q ok=%v, want valid-session", tok, ok)
	}
	if n := fx.logins.Load(); n != 0 {
		t.Errorf("OnLogin calls: got %d, want 0", n)
	}
}

func TestLoginIgnoresOffsiteNext(t *testing.T) {
	fx := newFixture(t, "")
	for _, next := range []string{"https://evil.example", "//evil.example", "/\\evil", ""} {
		resp := post(t, fx, "/login", url.Values{"token": {"abc"}, "next": {next}})
		if loc := resp.Header.Get("Location"); loc != "/" {
			t.Errorf("next %q: Location %q, want /", next, loc)
		}
	}
}

func TestLogout(t *testing.T) {
	fx := newFixture(t, "abc")
	resp := post(t, fx, "/logout", nil)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Errorf("logout: got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if fx.store.Authenticated() {
		t.Error("token should be cleared")
	}
	if n := fx.logouts.Load(); n != 1 {
		t.Errorf("OnLogout calls: got %d, want 1", n)
	}
}

func TestAPIUnauthorizedRedirectsAndClearsToken(t *testing.T) {
	fx := newFixture(t, "stale")
	fx.api.status("GET /api/v1/tigers", http.StatusUnauthorized)

	resp, _ := get(t, fx, "/tigers")
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status: got %d, want 303", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); !strings.HasPrefix(loc, "/login") {
		t.Errorf("Location: got %q", loc)
	}
	if fx.store.Authenticated() {
		t.Error("401 should clear the stored token")
	}
	if fx.tracker.Snapshot().Authenticated {
		t.Error("tracker should report signed out")
	}
}

func TestTigerDetailShowsConfidence(t *testing.T) {
	fx := newFixture(t, "abc")

	resp, body := get(t, fx, "/tigers/t-1")
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type: got %q", ct)
	}
	for _, want := range []string{"Raja", "91.0% High", "#166534", "wildlife_tools"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestNotFound(t *testing.T) {
	fx := newFixture(t, "abc")

	resp, _ := get(t, fx, "/tigers/missing")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing tiger: got %d, want 404", resp.StatusCode)
	}
	resp, _ = get(t, fx, "/nope")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown path: got %d, want 404", resp.StatusCode)
	}
}

func TestAPIFailureIsBadGateway(t *testing.T) {
	fx := newFixture(t, "abc")
	fx.api.status("GET /api/v1/facilities", http.StatusInternalServerError)

	resp, body := get(t, fx, "/facilities")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status: got %d, want 502", resp.StatusCode)
	}
	if !strings.Contains(body, "nope") {
		t.Error("error page should carry the API message")
	}
}

func TestInvestigationsListPassesQuery(t *testing.T) {
	fx := newFixture(t, "abc")

	resp, body := get(t, fx, "/investigations?q=raja&status=active&page=2")
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	seen := fx.api.seen("GET /api/v1/investigations?")
	if len(seen) != 1 {
		t.Fatalf("requests: %v", seen)
	}
	for _, want := range []string{"page=2", "page_size=25", "search=raja", "status=active"} {
		if !strings.Contains(seen[0], want) {
			t.Errorf("query %q missing %q", seen[0], want)
		}
	}
	if !strings.Contains(body, "page 2 of 3") {
		t.Error("pager missing")
	}
}

func TestInvestigationDetailShowsLiveProgress(t *testing.T) {
	fx := newFixture(t, "abc")
	fx.feed.Apply(live.Event{
		Type: live.ApprovalRequired, Timestamp: time.Now(), InvestigationID: "inv-1",
		Approval: &live.Approval{InvestigationID: "inv-1", ApprovalID: "ap-1", Action: "contact facility"},
	})

	_, body := get(t, fx, "/investigations/inv-1")
	for _, want := range []string{"Roadside zoo", "cub sold twice", "contact facility", "/investigations/inv-1/approvals/ap-1"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestApproveResolvesFeedApproval(t *testing.T) {
	fx := newFixture(t, "abc")
	fx.feed.Apply(live.Event{
		Type: live.ApprovalRequired, Timestamp: time.Now(), InvestigationID: "inv-1",
		Approval: &live.Approval{InvestigationID: "inv-1", ApprovalID: "ap-1", Action: "contact facility"},
	})

	resp := post(t, fx, "/investigations/inv-1/approvals/ap-1", nil)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/investigations/inv-1" {
		t.Errorf("approve: got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if len(fx.api.seen("POST /api/v1/investigations/inv-1/approvals/ap-1")) != 1 {
		t.Error("approval not sent to API")
	}
	p, _ := fx.feed.Investigation("inv-1")
	if len(p.PendingApprovals) != 0 {
		t.Errorf("pending approvals: got %d, want 0", len(p.PendingApprovals))
	}
}

func TestAnnotate(t *testing.T) {
	fx := newFixture(t, "abc")
	post(t, fx, "/investigations/inv-1/annotations", url.Values{"body": {"seen at auction"}})
	if got := fx.api.body("POST /api/v1/investigations/inv-1/annotations"); got != `{"body":"seen at auction"}` {
		t.Errorf("annotation body: got %s", got)
	}

	// blank notes are not sent
	post(t, fx, "/investigations/inv-1/annotations", url.Values{"body": {"  "}})
	if n := len(fx.api.seen("POST /api/v1/investigations/inv-1/annotations")); n != 1 {
		t.Errorf("annotation posts: got %d, want 1", n)
	}
}

func TestVerificationDecisions(t *testing.T) {
	fx := newFixture(t, "abc")

	_, body := get(t, fx, "/verification")
	if !strings.Contains(body, "50.0% Low") {
		t.Error("queue should show classified confidence")
	}
	if seen := fx.api.seen("GET /api/v1/verification?"); len(seen) != 1 || !strings.Contains(seen[0], "status=pending") {
		t.Errorf("queue defaults to pending: %v", seen)
	}

	resp := post(t, fx, "/verification/v-1/approve", nil)
	if resp.Header.Get("Location") != "/verification" {
		t.Errorf("approve Location: %q", resp.Header.Get("Location"))
	}
	post(t, fx, "/verification/v-1/reject", url.Values{"reason": {"different stripes"}})
	if got := fx.api.body("POST /api/v1/verification/v-1/reject"); got != `{"reason":"different stripes"}` {
		t.Errorf("reject body: got %s", got)
	}
	if len(fx.api.seen("POST /api/v1/verification/v-1/approve")) != 1 {
		t.Error("approve not sent")
	}
}

func TestAnalyticsAndSync(t *testing.T) {
	fx := newFixture(t, "abc")

	resp, body := get(t, fx, "/analytics")
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	for _, want := range []string{"usda", "72.0% Medium", "/integrations/usda/sync"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}

	resp = post(t, fx, "/integrations/usda/sync", nil)
	if resp.Header.Get("Location") != "/analytics" {
		t.Errorf("sync Location: %q", resp.Header.Get("Location"))
	}
	if len(fx.api.seen("POST /api/v1/integrations/usda/sync")) != 1 {
		t.Error("sync not sent")
	}
}

func TestFacilityPages(t *testing.T) {
	fx := newFixture(t, "abc")
	_, body := get(t, fx, "/facilities")
	if !strings.Contains(body, "Big Cat Ranch") {
		t.Error("facility list missing entry")
	}
	_, body = get(t, fx, "/facilities/f-1")
	if !strings.Contains(body, "US") || !strings.Contains(body, "14") {
		t.Error("facility detail missing fields")
	}
}

func TestDashboardSurvivesAnalyticsFailure(t *testing.T) {
	fx := newFixture(t, "abc")
	fx.api.status("GET /api/v1/analytics/summary", http.StatusServiceUnavailable)
	fx.feed.Apply(live.Event{
		Type: live.AgentActivity, Timestamp: time.Now(), InvestigationID: "inv-1",
		Activity: &live.Activity{InvestigationID: "inv-1", Agent: "research", Message: "scanning listings"},
	})

	resp, body := get(t, fx, "/")
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, "Summary unavailable") {
		t.Error("expected summary error")
	}
	if !strings.Contains(body, "research") {
		t.Error("expected recent activity")
	}
}

func TestActivityJSON(t *testing.T) {
	fx := newFixture(t, "abc")
	fx.feed.Apply(live.Event{
		Type: live.TigerIdentified, Timestamp: time.Now(), InvestigationID: "inv-1",
		Identification: &live.Identification{InvestigationID: "inv-1", TigerID: "t-1", Confidence: 0.9},
	})

	resp, body := get(t, fx, "/activity.json")
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	var snap live.Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Counts.TigerIdentified != 1 || len(snap.Investigations) != 1 {
		t.Errorf("snapshot: got %+v", snap)
	}
}

func TestActivityStream(t *testing.T) {
	fx := newFixture(t, "abc")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, fx.ts.URL+"/activity/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type: got %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	next := func() StreamEvent {
		t.Helper()
		for lines.Scan() {
			line := lines.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var ev StreamEvent
				if err := json.Unmarshal([]byte(data), &ev); err != nil {
					t.Fatalf("decode event: %v", err)
				}
				return ev
			}
		}
		t.Fatal("stream ended")
		return StreamEvent{}
	}

	if first := next(); first.Counts.Total() != 0 || first.Latest != nil {
		t.Errorf("initial event: got %+v", first)
	}

	fx.feed.Apply(live.Event{
		Type: live.InvestigationCreated, Timestamp: time.Now(), InvestigationID: "inv-9",
		Creation: &live.Creation{InvestigationID: "inv-9", Title: "Online cub sale"},
	})
	ev := next()
	if ev.Counts.InvestigationCreated != 1 {
		t.Errorf("counts: got %+v", ev.Counts)
	}
	if ev.Latest == nil || ev.Latest.InvestigationID != "inv-9" {
		t.Errorf("latest: got %+v", ev.Latest)
	}
}

func TestLogoutEndsActivityStream(t *testing.T) {
	fx := newFixture(t, "abc")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, fx.ts.URL+"/activity/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	lines := bufio.NewScanner(resp.Body)
	if !lines.Scan() || !strings.HasPrefix(lines.Text(), "data: ") {
		t.Fatalf("initial event: got %q", lines.Text())
	}

	post(t, fx, "/logout", nil)

	// The server closes the stream; the scan ends before the deadline.
	for lines.Scan() {
	}
	if ctx.Err() != nil {
		t.Error("stream still open after sign-out")
	}
}
