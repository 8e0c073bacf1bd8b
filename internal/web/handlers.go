package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sweeney/tigerwatch/internal/api"
	"github.com/sweeney/tigerwatch/internal/auth"
	"github.com/sweeney/tigerwatch/internal/live"
)

// listQuery reads ?q=&status=&page= from the request.
func listQuery(r *http.Request) api.ListOptions {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	return api.ListOptions{
		Page:     page,
		PageSize: pageSize,
		Search:   strings.TrimSpace(r.URL.Query().Get("q")),
		Status:   strings.TrimSpace(r.URL.Query().Get("status")),
	}
}

type dashboardView struct {
	Summary      *api.AnalyticsSummary
	SummaryError string
	Feed         live.Snapshot
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	view := dashboardView{Feed: s.feed.Snapshot()}
	if len(view.Feed.Recent) > 20 {
		view.Feed.Recent = view.Feed.Recent[:20]
	}
	summary, err := s.client.Analytics.Summary(r.Context())
	switch {
	case err == nil:
		view.Summary = &summary
	case isUnauthorized(err):
		s.fail(w, r, err)
		return
	default:
		// the dashboard still shows local state
		s.logger.Warn("analytics summary", zap.Error(err))
		view.SummaryError = err.Error()
	}
	s.render(w, r, dashboardPage, "Dashboard", view)
}

type listView[T any] struct {
	Query  api.ListOptions
	Result api.Page[T]
}

func (s *Server) handleInvestigations(w http.ResponseWriter, r *http.Request) {
	q := listQuery(r)
	page, err := s.client.Investigations.List(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, r, investigationsPage, "Investigations", listView[api.Investigation]{Query: q, Result: page})
}

type investigationView struct {
	Investigation api.Investigation
	Annotations   []api.Annotation
	Progress      *live.Progress
}

func (s *Server) handleInvestigation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	inv, err := s.client.Investigations.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	notes, err := s.client.Investigations.Annotations(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view := investigationView{Investigation: inv, Annotations: notes}
	if p, ok := s.feed.Investigation(id); ok {
		view.Progress = &p
	}
	s.render(w, r, investigationPage, inv.Title, view)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, approval := r.PathValue("id"), r.PathValue("approval")
	if err := s.client.Investigations.Approve(r.Context(), id, approval); err != nil {
		s.fail(w, r, err)
		return
	}
	s.feed.ResolveApproval(id, approval)
	s.logger.Info("approval granted", zap.String("investigation", id), zap.String("approval", approval))
	http.Redirect(w, r, "/investigations/"+id, http.StatusSeeOther)
}

func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body := strings.TrimSpace(r.FormValue("body"))
	if body == "" {
		http.Redirect(w, r, "/investigations/"+id, http.StatusSeeOther)
		return
	}
	if _, err := s.client.Investigations.AddAnnotation(r.Context(), id, api.AnnotationInput{Body: body}); err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/investigations/"+id, http.StatusSeeOther)
}

func (s *Server) handleTigers(w http.ResponseWriter, r *http.Request) {
	q := listQuery(r)
	page, err := s.client.Tigers.List(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, r, tigersPage, "Tigers", listView[api.Tiger]{Query: q, Result: page})
}

func (s *Server) handleTiger(w http.ResponseWriter, r *http.Request) {
	tiger, err := s.client.Tigers.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, r, tigerPage, tiger.Name, tiger)
}

func (s *Server) handleFacilities(w http.ResponseWriter, r *http.Request) {
	q := listQuery(r)
	page, err := s.client.Facilities.List(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, r, facilitiesPage, "Facilities", listView[api.Facility]{Query: q, Result: page})
}

func (s *Server) handleFacility(w http.ResponseWriter, r *http.Request) {
	facility, err := s.client.Facilities.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, r, facilityPage, facility.Name, facility)
}

func (s *Server) handleVerification(w http.ResponseWriter, r *http.Request) {
	q := listQuery(r)
	if q.Status == "" {
		q.Status = "pending"
	}
	page, err := s.client.Verification.List(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, r, verificationPage, "Verification queue", listView[api.VerificationItem]{Query: q, Result: page})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var err error
	decision := "approve"
	if strings.HasSuffix(r.URL.Path, "/reject") {
		decision = "reject"
		err = s.client.Verification.Reject(r.Context(), id, strings.TrimSpace(r.FormValue("reason")))
	} else {
		err = s.client.Verification.Approve(r.Context(), id)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("verification decided", zap.String("item", id), zap.String("decision", decision))
	http.Redirect(w, r, "/verification", http.StatusSeeOther)
}

type analyticsView struct {
	Summary      api.AnalyticsSummary
	Integrations []api.Integration
	Counts       live.EventCounts
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	summary, err := s.client.Analytics.Summary(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	integrations, err := s.client.Integrations.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, r, analyticsPage, "Analytics", analyticsView{
		Summary:      summary,
		Integrations: integrations,
		Counts:       s.feed.Counts(),
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.client.Integrations.Sync(r.Context(), name); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("integration sync requested", zap.String("integration", name))
	http.Redirect(w, r, "/analytics", http.StatusSeeOther)
}

type loginView struct {
	Next  string
	Error string
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, loginPage, "Sign in", loginView{Next: safeNext(r.URL.Query().Get("next"))})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.FormValue("next"))
	token := strings.TrimSpace(r.FormValue("token"))
	if token == "" {
		s.renderStatus(w, r, http.StatusBadRequest, loginPage, "Sign in", loginView{Next: next, Error: "A token is required."})
		return
	}
	// An expired token is refused before it can displace the current one.
	if c, ok := auth.ParseClaims(token); ok && c.Expired(s.now()) {
		s.renderStatus(w, r, http.StatusBadRequest, loginPage, "Sign in", loginView{Next: next, Error: "That token has expired."})
		return
	}
	if err := s.creds.Set(token); err != nil {
		s.logger.Error("store credential", zap.Error(err))
		s.renderError(w, http.StatusInternalServerError, "Could not store the token.")
		return
	}
	s.client.Cache().Reset()
	s.syncAuth()
	s.logger.Info("signed in")
	if s.onLogin != nil {
		s.onLogin()
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.creds.Clear(); err != nil {
		s.logger.Warn("clear credential", zap.Error(err))
	}
	s.client.Cache().Reset()
	s.syncAuth()
	s.endSessions()
	s.logger.Info("signed out")
	if s.onLogout != nil {
		s.onLogout()
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func isUnauthorized(err error) bool {
	return errors.Is(err, api.ErrUnauthorized)
}
