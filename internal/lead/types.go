// Package lead defines the core types shared by the collectors, the lead
// stores, and the HTTP API.
package lead

import (
	"strings"
	"time"
)

// OperatingStatus reports whether a business is currently trading.
type OperatingStatus string

// Operating status values.
const (
	OperatingStatusOperating OperatingStatus = "OPERATING"
	OperatingStatusClosed    OperatingStatus = "CLOSED"
	OperatingStatusUnknown   OperatingStatus = "UNKNOWN"
)

// WorkflowStatus is the sales pipeline state owned by the admin collaborator.
type WorkflowStatus string

// Workflow status values. The engine only ever writes StatusNew.
const (
	StatusNew           WorkflowStatus = "NEW"
	StatusContacted     WorkflowStatus = "CONTACTED"
	StatusInterested    WorkflowStatus = "INTERESTED"
	StatusClient        WorkflowStatus = "CLIENT"
	StatusInDevelopment WorkflowStatus = "IN_DEVELOPMENT"
	StatusNoWhatsApp    WorkflowStatus = "NO_WHATSAPP"
	StatusRejected      WorkflowStatus = "REJECTED"

	// StatusAll is a filter value that disables the default REJECTED exclusion.
	StatusAll WorkflowStatus = "ALL"
)

var workflowStatuses = map[WorkflowStatus]struct{}{
	StatusNew:           {},
	StatusContacted:     {},
	StatusInterested:    {},
	StatusClient:        {},
	StatusInDevelopment: {},
	StatusNoWhatsApp:    {},
	StatusRejected:      {},
}

// ParseWorkflowStatus normalizes s and reports whether it names a stored status.
func ParseWorkflowStatus(s string) (WorkflowStatus, bool) {
	status := WorkflowStatus(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := workflowStatuses[status]
	return status, ok
}

// Source identifies which collector produced a lead.
type Source string

// Source values.
const (
	SourcePlacesAPI Source = "places_api"
	SourceBrowser   Source = "browser"
)

// RejectionReason explains why a candidate failed qualification.
type RejectionReason string

// Rejection reasons in rule order.
const (
	RejectionNone           RejectionReason = "NONE"
	RejectionNotOperating   RejectionReason = "NOT_OPERATING"
	RejectionHasWebsite     RejectionReason = "HAS_WEBSITE"
	RejectionLowReviewCount RejectionReason = "LOW_REVIEW_COUNT"
)

// Candidate is a normalized, unfiltered business record from any source.
// Empty strings mean the source did not provide the field.
type Candidate struct {
	ExternalID      string
	Name            string
	Address         string
	Phone           string
	Website         string
	ReviewCount     int
	Rating          *float64
	OperatingStatus OperatingStatus
	MapsURL         string
	BusinessType    string
}

// Lead is a persisted, qualified candidate.
type Lead struct {
	ID              int64           `json:"id"`
	ExternalID      string          `json:"external_id"`
	BatchID         *int64          `json:"batch_id,omitempty"`
	Name            string          `json:"name"`
	Address         *string         `json:"address,omitempty"`
	Phone           *string         `json:"phone,omitempty"`
	Website         *string         `json:"website,omitempty"`
	ReviewCount     int             `json:"review_count"`
	Rating          *float64        `json:"rating,omitempty"`
	OperatingStatus OperatingStatus `json:"operating_status"`
	BusinessType    *string         `json:"business_type,omitempty"`
	MapsURL         *string         `json:"maps_url,omitempty"`
	Source          Source          `json:"source"`
	SourceQuery     string          `json:"source_query"`
	Status          WorkflowStatus  `json:"status"`
	AdminNotes      *string         `json:"admin_notes,omitempty"`
	Country         string          `json:"country,omitempty"`
	DiscoveredAt    time.Time       `json:"discovered_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// FromCandidate builds the Lead row written for a qualified candidate.
func FromCandidate(c Candidate, source Source, query string, batchID *int64) Lead {
	return Lead{
		ExternalID:      c.ExternalID,
		BatchID:         batchID,
		Name:            c.Name,
		Address:         optional(c.Address),
		Phone:           optional(c.Phone),
		Website:         optional(c.Website),
		ReviewCount:     c.ReviewCount,
		Rating:          c.Rating,
		OperatingStatus: c.OperatingStatus,
		BusinessType:    optional(c.BusinessType),
		MapsURL:         optional(c.MapsURL),
		Source:          source,
		SourceQuery:     query,
		Status:          StatusNew,
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// UpsertOutcome reports whether an upsert created or refreshed a row.
type UpsertOutcome string

// Upsert outcomes.
const (
	Inserted UpsertOutcome = "inserted"
	Updated  UpsertOutcome = "updated"
)

// Patch carries the admin-owned fields that may be changed on a lead.
type Patch struct {
	Status     *WorkflowStatus `json:"status,omitempty"`
	AdminNotes *string         `json:"admin_notes,omitempty"`
	Phone      *string         `json:"phone,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Status == nil && p.AdminNotes == nil && p.Phone == nil
}

// Filter narrows a lead search.
type Filter struct {
	Query      string
	Status     WorkflowStatus
	Country    string
	MinReviews int
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}

// Paging bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize fills paging defaults and clamps the page size.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	if f.MinReviews < 0 {
		f.MinReviews = 0
	}
	return f
}

// Offset returns the zero-based row offset for the filter's page.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Page is one page of search results.
type Page struct {
	Leads      []Lead `json:"leads"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalPages int    `json:"total_pages"`
}

// NewPage assembles a Page and computes TotalPages.
func NewPage(leads []Lead, total int, f Filter) Page {
	if leads == nil {
		leads = []Lead{}
	}
	pages := 0
	if f.PageSize > 0 {
		pages = (total + f.PageSize - 1) / f.PageSize
	}
	return Page{
		Leads:      leads,
		Total:      total,
		Page:       f.Page,
		PageSize:   f.PageSize,
		TotalPages: pages,
	}
}

// Batch groups the leads discovered by one browser run.
type Batch struct {
	ID          int64     `json:"id"`
	QueryText   string    `json:"query_text"`
	ResultCount int       `json:"result_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Rejections counts rejected candidates by reason.
type Rejections struct {
	NotOperating int `json:"not_operating"`
	HasWebsite   int `json:"has_website"`
	LowReviews   int `json:"low_reviews"`
}

// Add increments the counter for reason. RejectionNone is ignored.
func (r *Rejections) Add(reason RejectionReason) {
	switch reason {
	case RejectionNotOperating:
		r.NotOperating++
	case RejectionHasWebsite:
		r.HasWebsite++
	case RejectionLowReviewCount:
		r.LowReviews++
	}
}

// Merge adds other into r.
func (r *Rejections) Merge(other Rejections) {
	r.NotOperating += other.NotOperating
	r.HasWebsite += other.HasWebsite
	r.LowReviews += other.LowReviews
}

// Total returns the number of rejected candidates.
func (r Rejections) Total() int {
	return r.NotOperating + r.HasWebsite + r.LowReviews
}

// WriteStats summarizes a sequence of upserts.
type WriteStats struct {
	Attempted int `json:"attempted"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
}

// Succeeded returns rows written, new or refreshed.
func (s WriteStats) Succeeded() int {
	return s.Inserted + s.Updated
}

// Record counts one upsert outcome.
func (s *WriteStats) Record(outcome UpsertOutcome, err error) {
	s.Attempted++
	switch {
	case err != nil:
		s.Failed++
	case outcome == Inserted:
		s.Inserted++
	default:
		s.Updated++
	}
}

// Merge adds other into s.
func (s *WriteStats) Merge(other WriteStats) {
	s.Attempted += other.Attempted
	s.Inserted += other.Inserted
	s.Updated += other.Updated
	s.Failed += other.Failed
}

// JobStatus represents the lifecycle state of a background browser run.
type JobStatus string

// Job status values.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// BrowserRunParams are the inputs of a browser run.
type BrowserRunParams struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// Job is the metadata kept for a submitted browser run.
type Job struct {
	ID        string            `json:"id"`
	Status    JobStatus         `json:"status"`
	Params    BrowserRunParams  `json:"params"`
	Submitted time.Time         `json:"submitted_at"`
	Started   *time.Time        `json:"started_at,omitempty"`
	Finished  *time.Time        `json:"finished_at,omitempty"`
	ErrorText string            `json:"error_text,omitempty"`
	Result    *BrowserRunResult `json:"result,omitempty"`
}

// BrowserRunResult summarizes one browser-automation run.
type BrowserRunResult struct {
	BatchID     int64      `json:"batch_id"`
	FinalState  string     `json:"final_state"`
	StopReason  string     `json:"stop_reason,omitempty"`
	Examined    int        `json:"examined"`
	Skipped     int        `json:"skipped"`
	Qualified   int        `json:"qualified"`
	Writes      WriteStats `json:"writes"`
	Rejections  Rejections `json:"rejection_breakdown"`
	Scrolls     int        `json:"scrolls"`
	ArtifactURI string     `json:"artifact_uri,omitempty"`
}

// QueueItem is the unit of work handed to browser-run workers.
type QueueItem struct {
	JobID     string
	Params    BrowserRunParams
	Submitted int64
}
