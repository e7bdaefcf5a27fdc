package orchestrator

import (
	"regexp"
	"strings"
)

var usStates = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID",
	"illinois": "IL", "indiana": "IN", "iowa": "IA", "kansas": "KS",
	"kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS",
	"missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK",
	"oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT",
	"vermont": "VT", "virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY",
}

// Names that are both a well-known city and a state. Which one the user meant
// is settled by geocoding.
var ambiguousPlaces = map[string]bool{
	"new york":   true,
	"washington": true,
	"georgia":    true,
	"delaware":   true,
	"virginia":   true,
	"wyoming":    true,
}

var (
	stateSuffixPattern = regexp.MustCompile(`(?: state|, us|, usa)$`)
	twoLetterPattern   = regexp.MustCompile(`^[a-z]{2}$`)
)

// NormalizeState maps a state name or abbreviation to its two-letter code.
// It returns nil when raw is neither.
func NormalizeState(raw string) *string {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.ReplaceAll(cleaned, "state of ", "")
	cleaned = stateSuffixPattern.ReplaceAllString(cleaned, "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	if code, ok := usStates[cleaned]; ok {
		return &code
	}
	if twoLetterPattern.MatchString(cleaned) {
		code := strings.ToUpper(cleaned)
		return &code
	}
	return nil
}

func isAmbiguousPlace(name string) bool {
	return ambiguousPlaces[strings.Join(strings.Fields(strings.ToLower(name)), " ")]
}
