package orchestrator

import (
	"github.com/shubhsaxena/property-search/internal/models"
	"github.com/shubhsaxena/property-search/internal/observability"
)

type DispatchFlags struct {
	IsRadius    bool
	HasAdmin    bool
	HasAddress  bool
	HasSemantic bool
}

// Rejected reports a query that resolved to no usable constraint. That is an
// empty result, not an error.
func (d DispatchFlags) Rejected() bool {
	return !d.IsRadius && !d.HasAdmin && !d.HasAddress && !d.HasSemantic
}

func (d DispatchFlags) outcome() string {
	switch {
	case d.Rejected():
		return "rejected"
	case d.IsRadius:
		return "radius"
	case d.HasAdmin:
		return "administrative"
	case d.HasAddress:
		return "address"
	default:
		return "attributes"
	}
}

type Dispatch struct {
	Flags  DispatchFlags
	Params models.DispatchParameters
}

// BuildDispatchParameters shapes resolved filters into the search procedure
// parameters. Location modes are exclusive: radius fields only for a radius
// search, city and state only for an administrative one, the address only
// when a location was named without a radius. Attribute filters always pass
// through.
func BuildDispatchParameters(f models.ExtractedFilters) Dispatch {
	flags := DispatchFlags{
		IsRadius: f.RadiusMeters != nil && f.LocationText != nil,
		HasAdmin: f.City != nil || f.State != nil,
		HasSemantic: f.PropertyType != nil || f.Status != nil ||
			f.MinPrice != nil || f.MaxPrice != nil ||
			f.MinCapRate != nil || f.MaxCapRate != nil,
	}
	flags.HasAddress = !flags.IsRadius && f.LocationText != nil

	d := Dispatch{Flags: flags}
	observability.DispatchOutcomes.WithLabelValues(flags.outcome()).Inc()
	if flags.Rejected() {
		return d
	}

	p := models.DispatchParameters{
		PropertyType: f.PropertyType,
		Status:       f.Status,
		MinPrice:     f.MinPrice,
		MaxPrice:     f.MaxPrice,
		MinCapRate:   f.MinCapRate,
		MaxCapRate:   f.MaxCapRate,
	}

	switch {
	case flags.IsRadius:
		p.Lat, p.Lng, p.RadiusMeters = f.OriginLat, f.OriginLng, f.RadiusMeters
	case flags.HasAdmin:
		p.City, p.State = f.City, f.State
	}
	if flags.HasAddress {
		p.Address = f.LocationText
	}

	d.Params = p
	return d
}
