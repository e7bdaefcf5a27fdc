package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/config"
	"github.com/shubhsaxena/property-search/internal/models"
	"github.com/shubhsaxena/property-search/internal/observability"
)

// Generator is the language model collaborator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

var errNoGenerator = errors.New("no language model configured")

// ParameterExtractor turns natural-language text into filters with the help
// of a language model. It never fails: any problem with the model or its
// output produces the configured fallback record.
type ParameterExtractor struct {
	gen      Generator
	fallback string
	now      func() time.Time
	logger   *zap.Logger
}

func NewParameterExtractor(gen Generator, fallbackPolicy string, logger *zap.Logger) *ParameterExtractor {
	return &ParameterExtractor{
		gen:      gen,
		fallback: fallbackPolicy,
		now:      time.Now,
		logger:   logger,
	}
}

// modelFilters accepts both numbers and strings for numeric keys; models
// regularly answer "750k" where 750000 was asked for.
type modelFilters struct {
	Location     json.RawMessage `json:"location"`
	RadiusM      json.RawMessage `json:"radius_m"`
	PropertyType json.RawMessage `json:"property_type"`
	Status       json.RawMessage `json:"status"`
	MinPrice     json.RawMessage `json:"min_price"`
	MaxPrice     json.RawMessage `json:"max_price"`
	MinCapRate   json.RawMessage `json:"min_cap_rate"`
	MaxCapRate   json.RawMessage `json:"max_cap_rate"`
	City         json.RawMessage `json:"city"`
	State        json.RawMessage `json:"state"`
}

func (m *modelFilters) toFilters() models.ExtractedFilters {
	f := models.ExtractedFilters{
		LocationText: stringField(m.Location),
		RadiusMeters: numberField(m.RadiusM, parseDistanceValue),
		PropertyType: stringField(m.PropertyType),
		MinPrice:     numberField(m.MinPrice, ParseAmount),
		MaxPrice:     numberField(m.MaxPrice, ParseAmount),
		MinCapRate:   numberField(m.MinCapRate, ParsePercent),
		MaxCapRate:   numberField(m.MaxCapRate, ParsePercent),
		City:         stringField(m.City),
		State:        stringField(m.State),
	}
	if s := stringField(m.Status); s != nil {
		f.Status = NormalizeStatus(*s)
	}
	return f
}

type modelLeaseFilters struct {
	Tenant         json.RawMessage `json:"tenant"`
	Landlord       json.RawMessage `json:"landlord"`
	PropertyName   json.RawMessage `json:"property_name"`
	Status         json.RawMessage `json:"status"`
	LeaseStartFrom json.RawMessage `json:"lease_start_from"`
	LeaseEndTo     json.RawMessage `json:"lease_end_to"`
}

func (m *modelLeaseFilters) toFilters() *models.LeaseFilters {
	f := &models.LeaseFilters{
		Tenant:         stringField(m.Tenant),
		Landlord:       stringField(m.Landlord),
		PropertyName:   stringField(m.PropertyName),
		LeaseStartFrom: dateField(m.LeaseStartFrom),
		LeaseEndTo:     dateField(m.LeaseEndTo),
	}
	if s := stringField(m.Status); s != nil {
		f.Status = normalizeLeaseStatus(*s)
	}
	return f
}

// Extract returns the filters expressed by text.
func (e *ParameterExtractor) Extract(ctx context.Context, text string) models.ExtractedFilters {
	defer observeStage("extract", time.Now())

	var mf modelFilters
	if reason, err := e.generateJSON(ctx, propertyPrompt(text), &mf); err != nil {
		return e.fallbackFilters(text, reason, err)
	}

	f := mf.toFilters()
	reconcile(text, &f)

	e.logger.Debug("filters extracted",
		zap.String("query_hash", observability.HashQuery(text)),
		zap.Bool("radius", f.RadiusMeters != nil),
		zap.Bool("city", f.City != nil),
		zap.Bool("state", f.State != nil),
	)
	return f
}

// ExtractLease returns the lease filters expressed by text, or false when the
// model could not be used and the caller should fall back to a substring
// search.
func (e *ParameterExtractor) ExtractLease(ctx context.Context, text string) (*models.LeaseFilters, bool) {
	defer observeStage("extract_lease", time.Now())

	var mf modelLeaseFilters
	if reason, err := e.generateJSON(ctx, leasePrompt(text, e.now()), &mf); err != nil {
		observability.ExtractionFallbacks.WithLabelValues("lease_" + reason).Inc()
		e.logger.Warn("lease extraction failed, using substring search",
			zap.String("reason", reason),
			zap.Error(err),
		)
		return nil, false
	}
	return mf.toFilters(), true
}

func (e *ParameterExtractor) generateJSON(ctx context.Context, prompt string, dst any) (string, error) {
	if e.gen == nil {
		return "disabled", errNoGenerator
	}

	raw, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "timeout", err
		}
		return "llm_error", err
	}

	if err := json.Unmarshal([]byte(SanitizeModelJSON(raw)), dst); err != nil {
		return "parse_error", fmt.Errorf("decoding model output: %w", err)
	}
	return "", nil
}

func (e *ParameterExtractor) fallbackFilters(text, reason string, err error) models.ExtractedFilters {
	observability.ExtractionFallbacks.WithLabelValues(reason).Inc()
	e.logger.Warn("extraction failed, using fallback filters",
		zap.String("reason", reason),
		zap.String("policy", e.fallback),
		zap.Error(err),
	)

	var f models.ExtractedFilters
	if e.fallback == config.FallbackLocation {
		if t := strings.TrimSpace(text); t != "" {
			f.LocationText = &t
		}
	}
	return f
}

// reconcile enforces what the model was told but may not have done. A radius
// needs an explicit distance phrase in the text and an origin, and excludes
// city and state. Price and cap-rate phrases the model missed are read from
// the text directly.
func reconcile(text string, f *models.ExtractedFilters) {
	distance, hasDistance := ParseDistance(text)

	switch {
	case f.RadiusMeters != nil && !hasDistance:
		f.RadiusMeters = nil
	case f.RadiusMeters == nil && hasDistance:
		if f.LocationText != nil || f.City != nil || f.State != nil {
			f.RadiusMeters = &distance
		}
	}
	if f.RadiusMeters != nil && *f.RadiusMeters <= 0 {
		f.RadiusMeters = nil
	}

	if f.RadiusMeters != nil {
		if f.LocationText == nil {
			f.LocationText = joinPlace(f.City, f.State)
		}
		f.City, f.State = nil, nil
		if f.LocationText == nil {
			f.RadiusMeters = nil
		}
	}

	if f.MinPrice == nil && f.MaxPrice == nil {
		f.MinPrice, f.MaxPrice = ParsePriceRange(text)
	}
	if f.MinCapRate == nil && f.MaxCapRate == nil {
		f.MinCapRate, f.MaxCapRate = ParseCapRateRange(text)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		f.MinPrice, f.MaxPrice = f.MaxPrice, f.MinPrice
	}
}

func joinPlace(city, state *string) *string {
	var parts []string
	if city != nil {
		parts = append(parts, *city)
	}
	if state != nil {
		parts = append(parts, *state)
	}
	if len(parts) == 0 {
		return nil
	}
	s := strings.Join(parts, ", ")
	return &s
}

var nullWords = map[string]bool{"null": true, "none": true, "n/a": true, "unknown": true}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func stringField(raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" || nullWords[strings.ToLower(s)] {
		return nil
	}
	return &s
}

func numberField(raw json.RawMessage, parse func(string) (float64, bool)) *float64 {
	if isNull(raw) {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}

	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case string:
		parsed, ok := parse(x)
		if !ok {
			return nil
		}
		n = parsed
	default:
		return nil
	}
	if n < 0 {
		return nil
	}
	return &n
}

func dateField(raw json.RawMessage) *string {
	s := stringField(raw)
	if s == nil {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, *s); err != nil {
		return nil
	}
	return s
}
