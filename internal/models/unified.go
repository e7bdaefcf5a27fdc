package models

import "time"

type SearchTarget string

const (
	TargetAll      SearchTarget = "all"
	TargetProperty SearchTarget = "property"
	TargetLease    SearchTarget = "lease"
	TargetDocument SearchTarget = "document"
)

type UnifiedSearchRequest struct {
	Query     string `json:"query"`
	RequestID string `json:"-"`
	Caller    Caller `json:"-"`
}

type UnifiedResults struct {
	Properties []PropertyRow `json:"properties"`
	Leases     []LeaseRow    `json:"leases"`
	Documents  []DocumentRow `json:"documents"`
}

type UnifiedMeta struct {
	Query           string            `json:"query"`
	Target          SearchTarget      `json:"target"`
	ExtractedParams *ExtractedFilters `json:"extracted_params,omitempty"`
	Geocoded        *ResolvedLocation `json:"geocoded,omitempty"`
}

type UnifiedSearchResponse struct {
	Success bool           `json:"success"`
	Meta    UnifiedMeta    `json:"meta"`
	Results UnifiedResults `json:"results"`
}

// ChangeEvent announces a property mutation made by the system of record.
type ChangeEvent struct {
	Type       string       `json:"type"` // CREATE, UPDATE, DELETE
	PropertyID string       `json:"property_id"`
	Property   *PropertyRow `json:"property,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
	Version    int64        `json:"version"`
}

type IndexAction struct {
	Action    string       `json:"action"` // index, delete
	Index     string       `json:"index"`
	ID        string       `json:"id"`
	Body      *PropertyRow `json:"body,omitempty"`
	Version   int64        `json:"version"`
	Timestamp time.Time    `json:"timestamp"`
}

type AnalyticsEvent struct {
	EventType   string    `json:"event_type"`
	QueryHash   string    `json:"query_hash"`
	Mode        string    `json:"mode"`
	Intent      string    `json:"intent"`
	DurationMs  float64   `json:"duration_ms"`
	TotalHits   int64     `json:"total_hits"`
	IsRadius    bool      `json:"is_radius"`
	HasAdmin    bool      `json:"has_admin"`
	HasAddress  bool      `json:"has_address"`
	HasSemantic bool      `json:"has_semantic"`
	Rejected    bool      `json:"rejected"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
	TraceID     string    `json:"trace_id"`
}

type AuditEvent struct {
	ID          string    `json:"id" firestore:"id"`
	UserID      string    `json:"user_id" firestore:"user_id"`
	Role        string    `json:"role" firestore:"role"`
	AccountID   string    `json:"account_id" firestore:"account_id"`
	ActionType  string    `json:"action_type" firestore:"action_type"`
	TableName   string    `json:"table_name" firestore:"table_name"`
	Description string    `json:"description" firestore:"description"`
	IPAddress   string    `json:"ip_address" firestore:"ip_address"`
	UserAgent   string    `json:"user_agent" firestore:"user_agent"`
	Timestamp   time.Time `json:"timestamp" firestore:"timestamp"`
}

// AuditQuery selects one page of the audit trail. Empty fields do not filter.
type AuditQuery struct {
	UserID     string
	AccountID  string
	ActionType string
	Page       int
	PageSize   int
}

type AuditListResponse struct {
	Success  bool         `json:"success"`
	Logs     []AuditEvent `json:"logs"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
	HasMore  bool         `json:"has_more"`
}
