package orchestrator

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const metersPerMile = 1609.344

var (
	amountPattern = regexp.MustCompile(`^\$?\s*(\d[\d,]*(?:\.\d+)?)\s*(k|thousand|m|mm|mil|million|b|bn|billion)?$`)

	// priceAmount has three groups: dollar sign, number, magnitude suffix.
	priceAmount = `(\$)?\s*(\d[\d,]*(?:\.\d+)?)(?:\s*(k|thousand|m|mm|million|b|bn|billion)\b)?`

	priceBetweenPattern = regexp.MustCompile(`\b(?:between|from)\s+` + priceAmount + `\s+(?:and|to|-)\s+` + priceAmount)
	priceRangePattern   = regexp.MustCompile(priceAmount + `\s*(?:to|-)\s*` + priceAmount)
	priceMinPattern     = regexp.MustCompile(`\b(?:above|over|more than|greater than|at least|min(?:imum)?|starting at|from)\s+` + priceAmount)
	priceMaxPattern     = regexp.MustCompile(`\b(?:below|under|less than|at most|max(?:imum)?|up to)\s+` + priceAmount)

	percentAmount         = `(\d+(?:\.\d+)?)\s*%`
	capBetweenPattern     = regexp.MustCompile(`\bbetween\s+` + percentAmount + `\s+(?:and|to|-)\s+` + percentAmount)
	capMinPattern         = regexp.MustCompile(`\b(?:above|over|more than|greater than|at least|min(?:imum)?)\s+` + percentAmount)
	capMaxPattern         = regexp.MustCompile(`\b(?:below|under|less than|at most|max(?:imum)?|up to)\s+` + percentAmount)
	capBareComparePattern = regexp.MustCompile(`\bcap(?:\s*rates?)?\s+(?:of\s+)?(above|over|more than|greater than|at least|below|under|less than|at most|up to)\s+(\d+(?:\.\d+)?)\b`)

	distancePattern      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(miles?|mi|kilometers?|kilometres?|kms?|meters?|metres?|feet|ft)\b`)
	withinMetersPattern  = regexp.MustCompile(`\bwithin\s+(\d+(?:\.\d+)?)\s*m\b`)
	distanceValuePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([a-z]*)$`)
	percentValuePattern  = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*%?$`)
)

// ParseAmount reads a money amount such as "750k", "$2 million" or
// "1,250,000" into dollars.
func ParseAmount(s string) (float64, bool) {
	m := amountPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return n * magnitude(m[2]), true
}

func magnitude(suffix string) float64 {
	switch suffix {
	case "k", "thousand":
		return 1e3
	case "m", "mm", "mil", "million":
		return 1e6
	case "b", "bn", "billion":
		return 1e9
	default:
		return 1
	}
}

type priceMatch struct {
	value  float64
	suffix string
	dollar bool
}

// looksLikePrice keeps small bare numbers ("3 bedrooms", "5%") out of the
// price range.
func (p priceMatch) looksLikePrice() bool {
	return p.marked() || p.value >= 1000
}

// marked reports an explicit money marker: a dollar sign or a magnitude.
func (p priceMatch) marked() bool {
	return p.suffix != "" || p.dollar
}

func (p priceMatch) dollars() float64 {
	return p.value * magnitude(p.suffix)
}

func parsePriceGroups(groups []string) (priceMatch, bool) {
	n, err := strconv.ParseFloat(strings.ReplaceAll(groups[1], ",", ""), 64)
	if err != nil {
		return priceMatch{}, false
	}
	return priceMatch{value: n, suffix: groups[2], dollar: groups[0] != ""}, true
}

// parsePricePair reads two amounts from six groups. A lone magnitude on the
// upper bound carries to the lower one, so "1 to 3 million" is 1M..3M. With
// requireMarker a side must carry "$" or a magnitude, which keeps zip and
// street number ranges like "75001-75201" out.
func parsePricePair(groups []string, requireMarker bool) (lo, hi float64, ok bool) {
	a, okA := parsePriceGroups(groups[0:3])
	b, okB := parsePriceGroups(groups[3:6])
	if !okA || !okB {
		return 0, 0, false
	}
	if a.suffix == "" && b.suffix != "" {
		a.suffix = b.suffix
	}
	if requireMarker {
		if !a.marked() && !b.marked() {
			return 0, 0, false
		}
	} else if !a.looksLikePrice() && !b.looksLikePrice() {
		return 0, 0, false
	}
	return a.dollars(), b.dollars(), true
}

// priceBound returns the first amount after one of pattern's comparison
// words. "from" is also used for suite and street numbers, so it only counts
// with a money marker.
func priceBound(pattern *regexp.Regexp, text string) *float64 {
	for _, m := range pattern.FindAllStringSubmatch(text, -1) {
		p, ok := parsePriceGroups(m[1:])
		if !ok {
			continue
		}
		if p.marked() || (p.looksLikePrice() && !strings.HasPrefix(m[0], "from")) {
			v := p.dollars()
			return &v
		}
	}
	return nil
}

// ParsePriceRange reads comparison phrases over amounts in free text:
// "above 3 million" gives a minimum, "under 750k" a maximum and
// "between 1m and 3m" or "1m-3m" both. Worded bounds win over a bare
// "a-b" range.
func ParsePriceRange(text string) (min, max *float64) {
	t := strings.ToLower(text)

	for _, m := range priceBetweenPattern.FindAllStringSubmatch(t, -1) {
		if lo, hi, ok := parsePricePair(m[1:], strings.HasPrefix(m[0], "from")); ok {
			return &lo, &hi
		}
	}

	min, max = priceBound(priceMinPattern, t), priceBound(priceMaxPattern, t)
	if min != nil || max != nil {
		return min, max
	}

	for _, m := range priceRangePattern.FindAllStringSubmatch(t, -1) {
		if lo, hi, ok := parsePricePair(m[1:], true); ok {
			return &lo, &hi
		}
	}
	return nil, nil
}

// ParseCapRateRange reads cap-rate bounds in percent. Only text that mentions
// a cap rate is considered.
func ParseCapRateRange(text string) (min, max *float64) {
	t := strings.ToLower(text)
	if !strings.Contains(t, "cap") {
		return nil, nil
	}

	if m := capBetweenPattern.FindStringSubmatch(t); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		hi, _ := strconv.ParseFloat(m[2], 64)
		return &lo, &hi
	}
	if m := capMinPattern.FindStringSubmatch(t); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		min = &v
	}
	if m := capMaxPattern.FindStringSubmatch(t); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		max = &v
	}
	if min != nil || max != nil {
		return min, max
	}

	if m := capBareComparePattern.FindStringSubmatch(t); m != nil {
		v, _ := strconv.ParseFloat(m[2], 64)
		if v >= 100 {
			return nil, nil
		}
		switch m[1] {
		case "below", "under", "less than", "at most", "up to":
			return nil, &v
		default:
			return &v, nil
		}
	}
	return nil, nil
}

// ParsePercent reads "5%", "5.5 %" or "5".
func ParsePercent(s string) (float64, bool) {
	m := percentValuePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	return v, err == nil
}

// ConvertDistance converts value in unit to whole meters. An empty unit is
// taken as meters.
func ConvertDistance(value float64, unit string) (float64, error) {
	var factor float64
	switch strings.ToLower(unit) {
	case "", "m", "meter", "meters", "metre", "metres":
		factor = 1
	case "km", "kms", "kilometer", "kilometers", "kilometre", "kilometres":
		factor = 1000
	case "mi", "mile", "miles":
		factor = metersPerMile
	case "ft", "feet":
		factor = 0.3048
	default:
		return 0, fmt.Errorf("unknown distance unit %q", unit)
	}
	return math.Round(value * factor), nil
}

// ParseDistance finds the first explicit distance phrase in text and returns
// it in meters. A bare "m" only counts after "within", since "2m" is usually
// a price.
func ParseDistance(text string) (float64, bool) {
	t := strings.ToLower(text)

	if m := distancePattern.FindStringSubmatch(t); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		meters, err := ConvertDistance(v, m[2])
		if err == nil {
			return meters, true
		}
	}
	if m := withinMetersPattern.FindStringSubmatch(t); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		return math.Round(v), true
	}
	return 0, false
}

// parseDistanceValue reads a model-supplied distance string like "10 miles"
// or "5000".
func parseDistanceValue(s string) (float64, bool) {
	m := distanceValuePattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	meters, err := ConvertDistance(v, m[2])
	if err != nil {
		return 0, false
	}
	return meters, true
}

const (
	StatusAvailable = "Available"
	StatusPending   = "Pending"
	StatusSold      = "Sold"
	StatusLeased    = "Leased"
)

var statusVocabulary = map[string]string{
	"available":      StatusAvailable,
	"active":         StatusAvailable,
	"for sale":       StatusAvailable,
	"for lease":      StatusAvailable,
	"for rent":       StatusAvailable,
	"on market":      StatusAvailable,
	"on the market":  StatusAvailable,
	"listed":         StatusAvailable,
	"vacant":         StatusAvailable,
	"pending":        StatusPending,
	"under contract": StatusPending,
	"in escrow":      StatusPending,
	"under offer":    StatusPending,
	"sold":           StatusSold,
	"closed":         StatusSold,
	"off market":     StatusSold,
	"leased":         StatusLeased,
	"rented":         StatusLeased,
	"occupied":       StatusLeased,
}

// NormalizeStatus maps free status wording onto the closed property status
// set. Unknown wording yields nil.
func NormalizeStatus(s string) *string {
	key := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	if v, ok := statusVocabulary[key]; ok {
		return &v
	}
	return nil
}

var leaseStatuses = map[string]bool{"active": true, "expired": true, "expiring": true}

func normalizeLeaseStatus(s string) *string {
	v := strings.ToLower(strings.TrimSpace(s))
	if !leaseStatuses[v] {
		return nil
	}
	return &v
}
