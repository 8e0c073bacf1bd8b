package api

import (
	"context"
	"net/http"
)

// Cache tags.
const (
	tagInvestigation = "Investigation"
	tagTiger         = "Tiger"
	tagFacility      = "Facility"
	tagVerification  = "Verification"
	tagAnalytics     = "Analytics"
	tagAnnotation    = "Annotation"
	tagIntegration   = "Integration"
	listSuffix       = ":LIST"
)

func idTag(kind, id string) string { return kind + ":" + id }
func listTag(kind string) string   { return kind + listSuffix }

// InvestigationService covers /investigations.
type InvestigationService struct{ c *Client }

// List returns one page of investigations.
func (s *InvestigationService) List(ctx context.Context, opts ListOptions) (Page[Investigation], error) {
	var p Page[Investigation]
	err := s.c.get(ctx, "investigations", opts.values(),
		[]string{tagInvestigation, listTag(tagInvestigation)}, &p)
	return p, err
}

// Get returns one investigation.
func (s *InvestigationService) Get(ctx context.Context, id string) (Investigation, error) {
	var inv Investigation
	err := s.c.get(ctx, join("investigations", id), nil,
		[]string{tagInvestigation, idTag(tagInvestigation, id)}, &inv)
	return inv, err
}

// Create opens a new investigation.
func (s *InvestigationService) Create(ctx context.Context, in InvestigationInput) (Investigation, error) {
	var inv Investigation
	err := s.c.send(ctx, http.MethodPost, "investigations", in, &inv,
		listTag(tagInvestigation), tagAnalytics)
	return inv, err
}

// Update patches an investigation.
func (s *InvestigationService) Update(ctx context.Context, id string, in InvestigationInput) (Investigation, error) {
	var inv Investigation
	err := s.c.send(ctx, http.MethodPatch, join("investigations", id), in, &inv,
		idTag(tagInvestigation, id), listTag(tagInvestigation), tagAnalytics)
	return inv, err
}

// Delete removes an investigation.
func (s *InvestigationService) Delete(ctx context.Context, id string) error {
	return s.c.send(ctx, http.MethodDelete, join("investigations", id), nil, nil,
		idTag(tagInvestigation, id), listTag(tagInvestigation), tagAnalytics)
}

// Approve answers an approval request raised by the investigation agent.
func (s *InvestigationService) Approve(ctx context.Context, id, approvalID string) error {
	return s.c.send(ctx, http.MethodPost, join("investigations", id, "approvals", approvalID), struct {
		Approved bool `json:"approved"`
	}{true}, nil, idTag(tagInvestigation, id))
}

// Annotations lists analyst notes for an investigation.
func (s *InvestigationService) Annotations(ctx context.Context, id string) ([]Annotation, error) {
	var out []Annotation
	err := s.c.get(ctx, join("investigations", id, "annotations"), nil,
		[]string{tagAnnotation, idTag(tagAnnotation, id)}, &out)
	return out, err
}

// AddAnnotation attaches a note to an investigation.
func (s *InvestigationService) AddAnnotation(ctx context.Context, id string, in AnnotationInput) (Annotation, error) {
	var a Annotation
	err := s.c.send(ctx, http.MethodPost, join("investigations", id, "annotations"), in, &a,
		idTag(tagAnnotation, id))
	return a, err
}

// TigerService covers /tigers.
type TigerService struct{ c *Client }

// List returns one page of tiger records.
func (s *TigerService) List(ctx context.Context, opts ListOptions) (Page[Tiger], error) {
	var p Page[Tiger]
	err := s.c.get(ctx, "tigers", opts.values(), []string{tagTiger, listTag(tagTiger)}, &p)
	return p, err
}

// Get returns one tiger record.
func (s *TigerService) Get(ctx context.Context, id string) (Tiger, error) {
	var t Tiger
	err := s.c.get(ctx, join("tigers", id), nil, []string{tagTiger, idTag(tagTiger, id)}, &t)
	return t, err
}

// FacilityService covers /facilities.
type FacilityService struct{ c *Client }

// List returns one page of facilities.
func (s *FacilityService) List(ctx context.Context, opts ListOptions) (Page[Facility], error) {
	var p Page[Facility]
	err := s.c.get(ctx, "facilities", opts.values(), []string{tagFacility, listTag(tagFacility)}, &p)
	return p, err
}

// Get returns one facility.
func (s *FacilityService) Get(ctx context.Context, id string) (Facility, error) {
	var f Facility
	err := s.c.get(ctx, join("facilities", id), nil, []string{tagFacility, idTag(tagFacility, id)}, &f)
	return f, err
}

// VerificationService covers the /verification queue.
type VerificationService struct{ c *Client }

// List returns one page of queued verifications.
func (s *VerificationService) List(ctx context.Context, opts ListOptions) (Page[VerificationItem], error) {
	var p Page[VerificationItem]
	err := s.c.get(ctx, "verification", opts.values(), []string{tagVerification}, &p)
	return p, err
}

// Approve confirms a proposed identification.
func (s *VerificationService) Approve(ctx context.Context, id string) error {
	return s.c.send(ctx, http.MethodPost, join("verification", id, "approve"), nil, nil,
		tagVerification, tagTiger, tagAnalytics)
}

// Reject declines a proposed identification.
func (s *VerificationService) Reject(ctx context.Context, id, reason string) error {
	return s.c.send(ctx, http.MethodPost, join("verification", id, "reject"), struct {
		Reason string `json:"reason,omitempty"`
	}{reason}, nil, tagVerification, tagTiger, tagAnalytics)
}

// AnalyticsService covers /analytics.
type AnalyticsService struct{ c *Client }

// Summary returns dashboard totals.
func (s *AnalyticsService) Summary(ctx context.Context) (AnalyticsSummary, error) {
	var sum AnalyticsSummary
	err := s.c.get(ctx, "analytics/summary", nil, []string{tagAnalytics}, &sum)
	return sum, err
}

// IntegrationService covers /integrations.
type IntegrationService struct{ c *Client }

// List returns configured integrations.
func (s *IntegrationService) List(ctx context.Context) ([]Integration, error) {
	var out []Integration
	err := s.c.get(ctx, "integrations", nil, []string{tagIntegration}, &out)
	return out, err
}

// Sync triggers a sync of the named integration.
func (s *IntegrationService) Sync(ctx context.Context, name string) error {
	return s.c.send(ctx, http.MethodPost, join("integrations", name, "sync"), nil, nil, tagIntegration)
}
