package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrGeocodingFailed means a location the query depends on could not be
	// turned into coordinates or an administrative area.
	ErrGeocodingFailed = errors.New("geocoding failed")

	// ErrDownstreamSearch wraps failures reported by the search backend.
	ErrDownstreamSearch = errors.New("downstream search failed")

	ErrEmptyQuery = errors.New("query is required")
)

type GeocodingError struct {
	Location string
	Err      error
}

func (e *GeocodingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("geocoding failed for %q", e.Location)
	}
	return fmt.Sprintf("geocoding failed for %q: %v", e.Location, e.Err)
}

func (e *GeocodingError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrGeocodingFailed}
	}
	return []error{ErrGeocodingFailed, e.Err}
}

// DownstreamError carries the search backend's own failure so callers can
// report its message unchanged.
type DownstreamError struct {
	Op  string
	Err error
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrDownstreamSearch, e.Err)
}

func (e *DownstreamError) Unwrap() []error {
	return []error{ErrDownstreamSearch, e.Err}
}

// Message is the backend's error text.
func (e *DownstreamError) Message() string {
	if e.Err == nil {
		return ErrDownstreamSearch.Error()
	}
	return e.Err.Error()
}

func downstreamError(op string, err error) error {
	return &DownstreamError{Op: op, Err: err}
}
