package orchestrator

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/cache"
	"github.com/shubhsaxena/property-search/internal/geocode"
	"github.com/shubhsaxena/property-search/internal/models"
	"github.com/shubhsaxena/property-search/internal/observability"
)

// Geocoder is the geocoding collaborator.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*geocode.Result, error)
}

var (
	errNoGeocoder  = errors.New("no geocoder configured")
	errEmptyOrigin = errors.New("empty radius origin")

	fillerPattern = regexp.MustCompile(`(?i)\b(?:outside(?:\s+of)?|nearby|near|around|within|close\s+to|next\s+to)\b`)
)

// LocationResolver turns the location parts of extracted filters into
// something the search procedure can use: coordinates for a radius search,
// or a single city or state code for an administrative search.
type LocationResolver struct {
	geocoder Geocoder
	cache    cache.GeoCache
	ttl      time.Duration
	logger   *zap.Logger
}

func NewLocationResolver(geocoder Geocoder, geoCache cache.GeoCache, ttl time.Duration, logger *zap.Logger) *LocationResolver {
	return &LocationResolver{
		geocoder: geocoder,
		cache:    geoCache,
		ttl:      ttl,
		logger:   logger,
	}
}

// Resolve returns a copy of in with its location resolved. A location that
// is required but cannot be geocoded yields a *GeocodingError; filters that
// name no location pass through without any geocoding.
func (r *LocationResolver) Resolve(ctx context.Context, in models.ExtractedFilters) (models.ExtractedFilters, error) {
	defer observeStage("resolve", time.Now())
	ctx, span := observability.StartSpan(ctx, "resolver.resolve",
		attribute.Bool("radius", in.RadiusMeters != nil),
	)
	defer span.End()

	f := in
	if f.RadiusMeters != nil && f.LocationText != nil {
		return r.resolveRadiusOrigin(ctx, f)
	}
	f.RadiusMeters, f.OriginLat, f.OriginLng = nil, nil, nil

	switch {
	case f.City != nil && f.State == nil && isAmbiguousPlace(*f.City):
		if err := r.resolveAmbiguous(ctx, &f, *f.City); err != nil {
			return in, err
		}
	case f.State != nil && f.City == nil && isAmbiguousPlace(*f.State):
		if err := r.resolveAmbiguous(ctx, &f, *f.State); err != nil {
			return in, err
		}
	default:
		if f.State != nil {
			raw := *f.State
			f.State = NormalizeState(raw)
			if f.State == nil && f.City == nil && f.LocationText == nil {
				f.LocationText = &raw
			}
		}
		// One administrative level per search; the city is the narrower one.
		if f.City != nil && f.State != nil {
			f.State = nil
		}
	}

	if f.LocationText != nil && repeatsAdminArea(*f.LocationText, f.City, f.State) {
		f.LocationText = nil
	}

	return f, nil
}

func (r *LocationResolver) resolveRadiusOrigin(ctx context.Context, f models.ExtractedFilters) (models.ExtractedFilters, error) {
	origin := stripFiller(*f.LocationText)
	if origin == "" {
		return f, &GeocodingError{Location: *f.LocationText, Err: errEmptyOrigin}
	}

	entry, err := r.lookup(ctx, origin)
	if err != nil {
		return f, &GeocodingError{Location: origin, Err: err}
	}

	lat, lng := entry.Lat, entry.Lng
	f.LocationText = &origin
	f.OriginLat, f.OriginLng = &lat, &lng
	f.City, f.State = nil, nil

	r.logger.Debug("radius origin resolved",
		zap.String("origin", origin),
		zap.Float64("radius_m", *f.RadiusMeters),
	)
	return f, nil
}

// resolveAmbiguous settles a name that is both a city and a state. A state
// level component wins over a locality when the geocoder returns both.
func (r *LocationResolver) resolveAmbiguous(ctx context.Context, f *models.ExtractedFilters, name string) error {
	entry, err := r.lookup(ctx, name)
	if err != nil {
		return &GeocodingError{Location: name, Err: err}
	}

	switch {
	case entry.AdminArea != "" && NormalizeState(entry.AdminArea) != nil:
		f.State, f.City = NormalizeState(entry.AdminArea), nil
	case entry.Locality != "":
		city := entry.Locality
		f.City, f.State = &city, nil
	default:
		if code := NormalizeState(name); code != nil {
			f.State, f.City = code, nil
		}
	}

	r.logger.Debug("ambiguous place resolved",
		zap.String("name", name),
		zap.Bool("state", f.State != nil),
	)
	return nil
}

// lookup consults the cache before the geocoder. Cache failures degrade to a
// live lookup.
func (r *LocationResolver) lookup(ctx context.Context, location string) (*models.GeoCacheEntry, error) {
	key := cache.GeoKey(location)

	if r.cache != nil {
		entry, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.Warn("geocode cache read failed", zap.Error(err))
		}
		if entry != nil {
			return entry, nil
		}
	}

	if r.geocoder == nil {
		return nil, errNoGeocoder
	}

	result, err := r.geocoder.Geocode(ctx, location)
	if err != nil {
		return nil, err
	}

	entry := &models.GeoCacheEntry{
		Lat:              result.Geometry.Location.Lat,
		Lng:              result.Geometry.Location.Lng,
		FormattedAddress: result.FormattedAddress,
	}
	if c, ok := result.Component(geocode.TypeLocality); ok {
		entry.Locality = c.ShortName
	}
	if c, ok := result.Component(geocode.TypeAdminArea1); ok {
		entry.AdminArea = c.ShortName
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, entry, r.ttl); err != nil {
			r.logger.Warn("geocode cache write failed", zap.Error(err))
		}
	}
	return entry, nil
}

func stripFiller(location string) string {
	s := fillerPattern.ReplaceAllString(location, " ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " ,")
}

func repeatsAdminArea(location string, city, state *string) bool {
	if city != nil && strings.EqualFold(strings.TrimSpace(location), *city) {
		return true
	}
	if state != nil {
		if code := NormalizeState(location); code != nil && *code == *state {
			return true
		}
	}
	return false
}
