// Package web serves the operator console: server-rendered views over the
// investigation API, the live activity feed and console status.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/tigerwatch/internal/api"
	"github.com/sweeney/tigerwatch/internal/auth"
	"github.com/sweeney/tigerwatch/internal/live"
	"github.com/sweeney/tigerwatch/internal/status"
)

// pageSize is the number of rows requested per list page.
const pageSize = 25

// Credentials is the bearer token holder. *auth.Store implements it.
type Credentials interface {
	Token() (string, bool)
	Set(token string) error
	Clear() error
	Claims() (auth.Claims, bool)
	Expired(now time.Time) bool
}

// Deps are the collaborators a Server reads from.
type Deps struct {
	Tracker     *status.Tracker
	Client      *api.Client
	Feed        *live.Feed
	Credentials Credentials
	Logger      *zap.Logger
	Now         func() time.Time

	// OnLogin is called after a new token has been stored.
	OnLogin func()

	// OnLogout is called after the token has been cleared by sign-out.
	OnLogout func()
}

// Server serves the console over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	client     *api.Client
	feed       *live.Feed
	creds      Credentials
	logger     *zap.Logger
	now        func() time.Time
	onLogin    func()
	onLogout   func()

	mu         sync.Mutex
	sessionEnd chan struct{} // closed when the credential goes away
}

// New creates a Server listening on addr.
func New(addr string, deps Deps) *Server {
	s := &Server{
		tracker: deps.Tracker,
		client:  deps.Client,
		feed:    deps.Feed,
		creds:   deps.Credentials,
		logger:  deps.Logger,
		now:     deps.Now,
		onLogin:    deps.OnLogin,
		onLogout:   deps.OnLogout,
		sessionEnd: make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("web")
	if s.now == nil {
		s.now = time.Now
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.requireAuth(s.handleIndex))
	mux.HandleFunc("GET /index.html", s.requireAuth(s.handleIndex))
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("GET /activity.json", s.requireAuth(s.handleActivityJSON))
	mux.HandleFunc("GET /activity/stream", s.requireAuth(s.handleActivityStream))

	mux.HandleFunc("GET /investigations", s.requireAuth(s.handleInvestigations))
	mux.HandleFunc("GET /investigations/{id}", s.requireAuth(s.handleInvestigation))
	mux.HandleFunc("POST /investigations/{id}/approvals/{approval}", s.requireAuth(s.handleApprove))
	mux.HandleFunc("POST /investigations/{id}/annotations", s.requireAuth(s.handleAnnotate))
	mux.HandleFunc("GET /tigers", s.requireAuth(s.handleTigers))
	mux.HandleFunc("GET /tigers/{id}", s.requireAuth(s.handleTiger))
	mux.HandleFunc("GET /facilities", s.requireAuth(s.handleFacilities))
	mux.HandleFunc("GET /facilities/{id}", s.requireAuth(s.handleFacility))
	mux.HandleFunc("GET /verification", s.requireAuth(s.handleVerification))
	mux.HandleFunc("POST /verification/{id}/approve", s.requireAuth(s.handleVerify))
	mux.HandleFunc("POST /verification/{id}/reject", s.requireAuth(s.handleVerify))
	mux.HandleFunc("GET /analytics", s.requireAuth(s.handleAnalytics))
	mux.HandleFunc("POST /integrations/{name}/sync", s.requireAuth(s.handleSync))

	mux.HandleFunc("GET /login", s.handleLoginForm)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the request router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Close drops open connections, including activity streams that would
// otherwise hold Shutdown until its deadline.
func (s *Server) Close() error {
	return s.httpServer.Close()
}

// requireAuth redirects to the sign-in view when no usable token is held.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.creds.Token(); !ok || s.creds.Expired(s.now()) {
			s.redirectToLogin(w, r)
			return
		}
		next(w, r)
	}
}

func (s *Server) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := "/login"
	if r.Method == http.MethodGet && r.URL.Path != "/" {
		target += "?next=" + url.QueryEscape(r.URL.RequestURI())
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// fail maps an API error onto a response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		s.syncAuth()
		s.endSessions()
		s.redirectToLogin(w, r)
	case errors.Is(err, api.ErrNotFound):
		s.renderError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		s.logger.Warn("api request failed", zap.String("path", r.URL.Path), zap.Error(err))
		s.renderError(w, http.StatusBadGateway, "The investigation service is unavailable: "+err.Error())
	}
}

// session returns a channel closed once the current credential is cleared.
func (s *Server) session() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionEnd
}

// endSessions ends streams opened under the cleared credential.
func (s *Server) endSessions() {
	s.mu.Lock()
	close(s.sessionEnd)
	s.sessionEnd = make(chan struct{})
	s.mu.Unlock()
}

// syncAuth copies the credential state into the tracker.
func (s *Server) syncAuth() {
	if s.tracker == nil {
		return
	}
	if _, ok := s.creds.Token(); !ok {
		s.tracker.SetAuthenticated(false, "", time.Time{})
		return
	}
	claims, _ := s.creds.Claims()
	s.tracker.SetAuthenticated(true, claims.Subject, claims.ExpiresAt)
}

// safeNext returns next when it is a local path, "/" otherwise.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
