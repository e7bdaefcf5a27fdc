package models

import (
	"strings"
	"time"
)

type Intent int

const (
	IntentTraditional Intent = iota
	IntentAssisted
)

func (i Intent) String() string {
	switch i {
	case IntentTraditional:
		return "traditional"
	case IntentAssisted:
		return "assisted"
	default:
		return "unknown"
	}
}

const (
	SortAsc  = "asc"
	SortDesc = "desc"

	DefaultPropertySort = "property_created_at"
)

// PropertySortFields lists the columns a property listing may be ordered by.
var PropertySortFields = map[string]bool{
	"property_created_at": true,
	"property_updated_at": true,
	"price":               true,
	"cap_rate":            true,
	"name":                true,
}

// NormalizeSort returns field if allowed lists it, else def, together with
// the order folded to asc or desc (desc unless asc is requested).
func NormalizeSort(field, order string, allowed map[string]bool, def string) (string, string) {
	if !allowed[field] {
		field = def
	}
	if strings.EqualFold(strings.TrimSpace(order), SortAsc) {
		return field, SortAsc
	}
	return field, SortDesc
}

// SearchQuery is the raw property search input. Filters carries values chosen
// through UI controls; they bypass extraction entirely.
type SearchQuery struct {
	Search    string          `json:"search,omitempty"`
	Query     string          `json:"query,omitempty"`
	Page      int             `json:"page"`
	Limit     int             `json:"limit"`
	SortField string          `json:"sort_field,omitempty"`
	SortOrder string          `json:"sort_order,omitempty"`
	Filters   ExplicitFilters `json:"filters"`
	RequestID string          `json:"request_id,omitempty"`
	Caller    Caller          `json:"-"`
}

type ExplicitFilters struct {
	PropertyType *string  `json:"type,omitempty"`
	Status       *string  `json:"status,omitempty"`
	MinPrice     *float64 `json:"min_price,omitempty"`
	MaxPrice     *float64 `json:"max_price,omitempty"`
}

func (f ExplicitFilters) IsEmpty() bool {
	return f.PropertyType == nil && f.Status == nil && f.MinPrice == nil && f.MaxPrice == nil
}

// ExtractedFilters is the structured reading of a natural-language query.
// A nil field means the query expressed no constraint for it. Money is in
// dollars, distances in meters, cap rates in percent.
type ExtractedFilters struct {
	LocationText *string  `json:"location"`
	OriginLat    *float64 `json:"origin_lat"`
	OriginLng    *float64 `json:"origin_lng"`
	RadiusMeters *float64 `json:"radius_m"`
	PropertyType *string  `json:"property_type"`
	Status       *string  `json:"status"`
	MinPrice     *float64 `json:"min_price"`
	MaxPrice     *float64 `json:"max_price"`
	MinCapRate   *float64 `json:"min_cap_rate"`
	MaxCapRate   *float64 `json:"max_cap_rate"`
	City         *string  `json:"city"`
	State        *string  `json:"state"`
}

func (f ExtractedFilters) Location() ResolvedLocation {
	return ResolvedLocation{
		City:  f.City,
		State: f.State,
		Lat:   f.OriginLat,
		Lng:   f.OriginLng,
	}
}

type ResolvedLocation struct {
	City  *string  `json:"city"`
	State *string  `json:"state"`
	Lat   *float64 `json:"lat"`
	Lng   *float64 `json:"lng"`
}

// GeoCacheEntry is a geocoding result as remembered by the resolver cache.
// Locality and AdminArea are the short names of the first result's locality
// and administrative_area_level_1 components, when present.
type GeoCacheEntry struct {
	Lat              float64   `json:"lat"`
	Lng              float64   `json:"lng"`
	FormattedAddress string    `json:"formatted_address"`
	Locality         string    `json:"locality,omitempty"`
	AdminArea        string    `json:"admin_area,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// DispatchParameters mirrors the named parameters of the search_properties_ai
// database procedure. Nil is sent as SQL NULL, which the procedure reads as
// "no constraint".
type DispatchParameters struct {
	Lat          *float64 `json:"p_lat"`
	Lng          *float64 `json:"p_lng"`
	RadiusMeters *float64 `json:"p_radius_m"`
	Address      *string  `json:"p_address"`
	City         *string  `json:"p_city"`
	State        *string  `json:"p_state"`
	PropertyType *string  `json:"p_type"`
	Status       *string  `json:"p_status"`
	MinPrice     *float64 `json:"p_min_price"`
	MaxPrice     *float64 `json:"p_max_price"`
	MinCapRate   *float64 `json:"p_min_cap_rate"`
	MaxCapRate   *float64 `json:"p_max_cap_rate"`
}

// Args returns the parameters in procedure argument order.
func (d DispatchParameters) Args() []any {
	return []any{
		d.Lat, d.Lng, d.RadiusMeters,
		d.Address, d.City, d.State,
		d.PropertyType, d.Status,
		d.MinPrice, d.MaxPrice,
		d.MinCapRate, d.MaxCapRate,
	}
}

// TraditionalQuery is a substring search delegated to the search backend
// together with its sort and page window.
type TraditionalQuery struct {
	Term      string          `json:"term"`
	SortField string          `json:"sort_field"`
	SortOrder string          `json:"sort_order"`
	Offset    int             `json:"offset"`
	Limit     int             `json:"limit"`
	Filters   ExplicitFilters `json:"filters"`
}

type PropertyRow struct {
	PropertyID string     `json:"property_id" db:"property_id"`
	Name       *string    `json:"name" db:"name"`
	Landlord   *string    `json:"landlord" db:"landlord"`
	Address    *string    `json:"address" db:"address"`
	City       *string    `json:"city" db:"city"`
	State      *string    `json:"state" db:"state"`
	Type       *string    `json:"type" db:"type"`
	Status     *string    `json:"status" db:"status"`
	Price      *float64   `json:"price" db:"price"`
	CapRate    *float64   `json:"cap_rate" db:"cap_rate"`
	FileURL    *string    `json:"file_url" db:"file_url"`
	Latitude   *float64   `json:"latitude" db:"latitude"`
	Longitude  *float64   `json:"longitude" db:"longitude"`
	CreatedAt  *time.Time `json:"property_created_at" db:"property_created_at"`
	UpdatedAt  *time.Time `json:"property_updated_at" db:"property_updated_at"`
}

type PropertySearchResponse struct {
	Success         bool              `json:"success"`
	Mode            string            `json:"mode"`
	Data            []PropertyRow     `json:"data"`
	Total           int64             `json:"total"`
	Page            int               `json:"page"`
	Limit           int               `json:"limit"`
	ExtractedParams *ExtractedFilters `json:"extracted_params,omitempty"`
	Source          string            `json:"source,omitempty"`
	CacheHit        bool              `json:"cache_hit,omitempty"`
	Stale           bool              `json:"stale,omitempty"`
}

// Caller identifies who issued a request, for row-level scoping and audit.
type Caller struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	AccountID string `json:"account_id"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}
