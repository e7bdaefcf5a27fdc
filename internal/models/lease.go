package models

import "time"

const DefaultLeaseSort = "created_at"

var LeaseSortFields = map[string]bool{
	"lease_start":   true,
	"lease_end":     true,
	"tenant":        true,
	"landlord":      true,
	"property_name": true,
	"status":        true,
	"annual_rent":   true,
	"created_at":    true,
	"updated_at":    true,
}

// LeaseFilters is what the model extracts from a natural-language lease query.
// Dates are ISO-8601 (YYYY-MM-DD).
type LeaseFilters struct {
	Tenant         *string `json:"tenant"`
	Landlord       *string `json:"landlord"`
	PropertyName   *string `json:"property_name"`
	Status         *string `json:"status"`
	LeaseStartFrom *string `json:"lease_start_from"`
	LeaseEndTo     *string `json:"lease_end_to"`
}

type LeaseQuery struct {
	Search     string
	Page       int
	PageSize   int
	SortField  string
	SortOrder  string
	PropertyID string
	UserID     string
	Status     string
	RequestID  string
	Caller     Caller
}

type LeaseRow struct {
	LeaseID      string     `json:"lease_id" db:"lease_id"`
	PropertyID   *string    `json:"property_id" db:"property_id"`
	PropertyName *string    `json:"property_name" db:"property_name"`
	UserID       *string    `json:"user_id" db:"user_id"`
	Tenant       *string    `json:"tenant" db:"tenant"`
	Landlord     *string    `json:"landlord" db:"landlord"`
	Status       *string    `json:"status" db:"status"`
	LeaseStart   *time.Time `json:"lease_start" db:"lease_start"`
	LeaseEnd     *time.Time `json:"lease_end" db:"lease_end"`
	AnnualRent   *float64   `json:"annual_rent" db:"annual_rent"`
	Comments     *string    `json:"comments" db:"comments"`
	CreatedAt    *time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at" db:"updated_at"`
}

// LeaseListQuery is the fully resolved filter set handed to the lease store.
type LeaseListQuery struct {
	Term       string
	PropertyID string
	UserID     string
	Status     string
	AI         *LeaseFilters
	SortField  string
	SortOrder  string
	Offset     int
	Limit      int
}

type LeaseSearchResponse struct {
	Success          bool          `json:"success"`
	Mode             string        `json:"mode"`
	ExtractedFilters *LeaseFilters `json:"extracted_filters"`
	Data             []LeaseRow    `json:"data"`
	Total            int64         `json:"total"`
	Page             int           `json:"page"`
	PageSize         int           `json:"pageSize"`
}

type DocumentRow struct {
	DocumentID string     `json:"document_id" db:"document_id"`
	Name       *string    `json:"name" db:"name"`
	Category   *string    `json:"category" db:"category"`
	PropertyID *string    `json:"property_id" db:"property_id"`
	LeaseID    *string    `json:"lease_id" db:"lease_id"`
	FileURL    *string    `json:"file_url" db:"file_url"`
	Similarity *float64   `json:"similarity,omitempty" db:"similarity"`
	CreatedAt  *time.Time `json:"created_at" db:"created_at"`
}
