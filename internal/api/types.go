package api

import "time"

// Page is the paginated list envelope returned by list endpoints.
type Page[T any] struct {
	Data     []T `json:"data"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Pages returns the number of pages implied by Total and PageSize.
func (p Page[T]) Pages() int {
	if p.PageSize <= 0 {
		return 1
	}
	n := (p.Total + p.PageSize - 1) / p.PageSize
	if n < 1 {
		return 1
	}
	return n
}

// ListOptions are the query parameters shared by list endpoints. Zero
// fields are omitted.
type ListOptions struct {
	Page     int
	PageSize int
	Search   string
	Status   string
}

// Investigation is a trafficking investigation case.
type Investigation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority,omitempty"`
	AssignedTo  string    `json:"assigned_to,omitempty"`
	TigerIDs    []string  `json:"tiger_ids,omitempty"`
	FacilityIDs []string  `json:"facility_ids,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// InvestigationInput is the body of create and update requests.
type InvestigationInput struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Priority    string `json:"priority,omitempty"`
	AssignedTo  string `json:"assigned_to,omitempty"`
}

// Annotation is an analyst note attached to an investigation.
type Annotation struct {
	ID              string    `json:"id"`
	InvestigationID string    `json:"investigation_id"`
	Author          string    `json:"author"`
	Body            string    `json:"body"`
	CreatedAt       time.Time `json:"created_at"`
}

// AnnotationInput is the body of an annotation create request.
type AnnotationInput struct {
	Body string `json:"body"`
}

// Tiger is a tiger identity record.
type Tiger struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	FacilityID string    `json:"facility_id,omitempty"`
	Status     string    `json:"status"`
	Confidence float64   `json:"confidence"`
	Model      string    `json:"model,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	LastSeen   time.Time `json:"last_seen"`
}

// Facility is a captive facility holding tigers.
type Facility struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Location      string `json:"location,omitempty"`
	Country       string `json:"country,omitempty"`
	LicenseStatus string `json:"license_status,omitempty"`
	RiskLevel     string `json:"risk_level,omitempty"`
	TigerCount    int    `json:"tiger_count"`
}

// VerificationItem is a proposed identification awaiting human review.
type VerificationItem struct {
	ID              string    `json:"id"`
	TigerID         string    `json:"tiger_id"`
	InvestigationID string    `json:"investigation_id,omitempty"`
	Model           string    `json:"model,omitempty"`
	Confidence      float64   `json:"confidence"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason,omitempty"`
	SubmittedAt     time.Time `json:"submitted_at"`
}

// AnalyticsSummary holds dashboard totals.
type AnalyticsSummary struct {
	TotalInvestigations  int            `json:"total_investigations"`
	ActiveInvestigations int            `json:"active_investigations"`
	TotalTigers          int            `json:"total_tigers"`
	IdentifiedTigers     int            `json:"identified_tigers"`
	TotalFacilities      int            `json:"total_facilities"`
	PendingVerifications int            `json:"pending_verifications"`
	AverageConfidence    float64        `json:"average_confidence"`
	ByStatus             map[string]int `json:"by_status,omitempty"`
}

// Integration is an external data source connector.
type Integration struct {
	Name     string    `json:"name"`
	Enabled  bool      `json:"enabled"`
	Status   string    `json:"status"`
	LastSync time.Time `json:"last_sync"`
}
