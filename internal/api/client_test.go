package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/tigerwatch/internal/clock"
)

type fakeTokens struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (f *fakeTokens) Token() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.token != ""
}

func (f *fakeTokens) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	f.cleared++
	return nil
}

type apiFixture struct {
	srv    *httptest.Server
	client *Client
	tokens *fakeTokens
	clock  *clock.FakeClock
	hits   map[string]*atomic.Int32
	mu     sync.Mutex
}

// hit counts requests by "METHOD /path".
func (f *apiFixture) hit(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.hits[route]; ok {
		return int(c.Load())
	}
	return 0
}

func newFixture(t *testing.T, mux *http.ServeMux) *apiFixture {
	t.Helper()
	f := &apiFixture{
		tokens: &fakeTokens{token: "secret"},
		clock:  clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		hits:   map[string]*atomic.Int32{},
	}
	counting := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		key := r.Method + " " + r.URL.Path
		c, ok := f.hits[key]
		if !ok {
			c = &atomic.Int32{}
			f.hits[key] = c
		}
		f.mu.Unlock()
		c.Add(1)
		mux.ServeHTTP(w, r)
	})
	f.srv = httptest.NewServer(counting)
	t.Cleanup(f.srv.Close)

	c, err := New(f.srv.URL, Options{Tokens: f.tokens, Clock: f.clock})
	require.NoError(t, err)
	f.client = c
	return f
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestNewRejectsBadScheme(t *testing.T) {
	_, err := New("ftp://example.org", Options{})
	assert.Error(t, err)
}

func TestListInvestigationsSendsQueryAndToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/investigations", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "25", r.URL.Query().Get("page_size"))
		assert.Equal(t, "bengal", r.URL.Query().Get("search"))
		assert.Equal(t, "active", r.URL.Query().Get("status"))
		writeJSON(w, Page[Investigation]{
			Data:     []Investigation{{ID: "inv-1", Title: "Bengal smuggling ring", Status: "active"}},
			Total:    26,
			Page:     2,
			PageSize: 25,
		})
	})
	f := newFixture(t, mux)

	p, err := f.client.Investigations.List(context.Background(), ListOptions{Page: 2, PageSize: 25, Search: " bengal ", Status: "active"})
	require.NoError(t, err)
	require.Len(t, p.Data, 1)
	assert.Equal(t, "inv-1", p.Data[0].ID)
	assert.Equal(t, 2, p.Pages())
}

func TestGetIsCachedUntilTTL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/tigers/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, Tiger{ID: r.PathValue("id"), Name: "Raja", Confidence: 0.91})
	})
	f := newFixture(t, mux)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tg, err := f.client.Tigers.Get(ctx, "t-7")
		require.NoError(t, err)
		assert.Equal(t, "Raja", tg.Name)
	}
	assert.Equal(t, 1, f.hit("GET /api/v1/tigers/t-7"))

	f.clock.Advance(DefaultCacheTTL)
	_, err := f.client.Tigers.Get(ctx, "t-7")
	require.NoError(t, err)
	assert.Equal(t, 2, f.hit("GET /api/v1/tigers/t-7"))
}

func TestMutationInvalidatesTags(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/investigations/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, Investigation{ID: r.PathValue("id"), Status: "active"})
	})
	mux.HandleFunc("GET /api/v1/investigations", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, Page[Investigation]{})
	})
	mux.HandleFunc("GET /api/v1/tigers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, Page[Tiger]{})
	})
	mux.HandleFunc("PATCH /api/v1/investigations/{id}", func(w http.ResponseWriter, r *http.Request) {
		var in InvestigationInput
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		writeJSON(w, Investigation{ID: r.PathValue("id"), Status: in.Status})
	})
	f := newFixture(t, mux)
	ctx := context.Background()

	_, err := f.client.Investigations.Get(ctx, "inv-1")
	require.NoError(t, err)
	_, err = f.client.Investigations.List(ctx, ListOptions{})
	require.NoError(t, err)
	_, err = f.client.Tigers.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, f.client.Cache().Len())

	inv, err := f.client.Investigations.Update(ctx, "inv-1", InvestigationInput{Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, "completed", inv.Status)

	// The tiger list survives; the investigation entries are refetched.
	assert.Equal(t, 1, f.client.Cache().Len())
	_, err = f.client.Investigations.Get(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.hit("GET /api/v1/investigations/inv-1"))
	assert.Equal(t, 1, f.hit("PATCH /api/v1/investigations/inv-1"))
}

func TestUnauthorizedClearsCredential(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/facilities", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, Page[Facility]{})
	})
	mux.HandleFunc("GET /api/v1/analytics/summary", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	f := newFixture(t, mux)
	ctx := context.Background()

	var redirected atomic.Int32
	f.client.SetUnauthorizedHandler(func() { redirected.Add(1) })

	_, err := f.client.Facilities.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, f.client.Cache().Len())

	_, err = f.client.Analytics.Summary(ctx)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), redirected.Load())
	assert.Equal(t, 1, f.tokens.cleared)
	assert.Equal(t, 0, f.client.Cache().Len())

	_, ok := f.tokens.Token()
	assert.False(t, ok)
}

func TestErrorResponses(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/facilities/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"detail": "facility not found"})
	})
	mux.HandleFunc("POST /api/v1/verification/{id}/reject", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue locked", http.StatusConflict)
	})
	f := newFixture(t, mux)
	ctx := context.Background()

	_, err := f.client.Facilities.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "facility not found", apiErr.Message)

	err = f.client.Verification.Reject(ctx, "v-1", "blurry")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "queue locked", apiErr.Message)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestApproveAndAnnotations(t *testing.T) {
	var approved atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/investigations/{id}/approvals/{approval}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "inv-9", r.PathValue("id"))
		assert.Equal(t, "ap-1", r.PathValue("approval"))
		approved.Store(true)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/v1/investigations/{id}/annotations", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []Annotation{{ID: "a-1", Body: "seen at border"}})
	})
	mux.HandleFunc("POST /api/v1/investigations/{id}/annotations", func(w http.ResponseWriter, r *http.Request) {
		var in AnnotationInput
		json.NewDecoder(r.Body).Decode(&in)
		writeJSON(w, Annotation{ID: "a-2", Body: in.Body})
	})
	f := newFixture(t, mux)
	ctx := context.Background()

	require.NoError(t, f.client.Investigations.Approve(ctx, "inv-9", "ap-1"))
	assert.True(t, approved.Load())

	notes, err := f.client.Investigations.Annotations(ctx, "inv-9")
	require.NoError(t, err)
	assert.Len(t, notes, 1)

	a, err := f.client.Investigations.AddAnnotation(ctx, "inv-9", AnnotationInput{Body: "plates match"})
	require.NoError(t, err)
	assert.Equal(t, "plates match", a.Body)

	_, err = f.client.Investigations.Annotations(ctx, "inv-9")
	require.NoError(t, err)
	// The add invalidated the cached list, so it is fetched again.
	assert.Equal(t, 2, f.hit("GET /api/v1/investigations/inv-9/annotations"))
	assert.Equal(t, 1, f.hit("POST /api/v1/investigations/inv-9/annotations"))
}

func TestPathSegmentsEscaped(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/integrations/{name}/sync", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cites/trade", r.PathValue("name"))
		w.WriteHeader(http.StatusAccepted)
	})
	f := newFixture(t, mux)
	require.NoError(t, f.client.Integrations.Sync(context.Background(), "cites/trade"))
}
