package orchestrator

import (
	"regexp"
	"strings"

	"github.com/shubhsaxena/property-search/internal/models"
)

var (
	// A leading house number ("351 Quarry") marks a street address.
	streetAddressPattern = regexp.MustCompile(`^\d+\s+[a-z]`)

	financialPattern = regexp.MustCompile(
		`\d+(?:\.\d+)?\s*(?:k|m|b|million|billion)\b` +
			`|%|\bcap\s*rates?\b` +
			`|\b(?:above|below|over|under|more than|less than|between|to)\b`,
	)

	assistedKeywordPattern = regexp.MustCompile(`\b(?:` +
		`near|nearby|around|within|radius|distance|close to|next to|beside` +
		`|km|kms|kilometers?|kilometres?|miles?|meters?|metres?` +
		`|find|show me|search for|looking for` +
		`|(?:properties|property|buildings|listings|warehouses|offices|homes) in` +
		`)\b`)

	questionPattern = regexp.MustCompile(`^(?:where|find|show|list|get|search|what|which|who)\b`)

	leaseKeywords = []string{
		"active", "expired", "expiring", "ending", "starting",
		"before", "after", "between",
		"this month", "next month", "last year",
		"tenant", "landlord", "property",
	}
)

// IntentClassifier decides whether free text goes through model-assisted
// extraction or a plain substring search. Rules are checked in order and the
// first match wins; the address rule must stay ahead of the financial and
// keyword rules because house numbers look like amounts.
type IntentClassifier struct{}

func NewIntentClassifier() *IntentClassifier {
	return &IntentClassifier{}
}

func (ic *IntentClassifier) Classify(text string) models.Intent {
	t := strings.ToLower(strings.TrimSpace(text))

	switch {
	case t == "":
		return models.IntentTraditional
	case streetAddressPattern.MatchString(t):
		return models.IntentTraditional
	case financialPattern.MatchString(t):
		return models.IntentAssisted
	case assistedKeywordPattern.MatchString(t):
		return models.IntentAssisted
	case questionPattern.MatchString(t):
		return models.IntentAssisted
	default:
		return models.IntentTraditional
	}
}

// ClassifyLease applies the lease list rules: single words are always
// substring searches, lease vocabulary or three or more words are assisted.
func (ic *IntentClassifier) ClassifyLease(text string) models.Intent {
	t := strings.ToLower(strings.TrimSpace(text))
	if !strings.Contains(t, " ") {
		return models.IntentTraditional
	}
	for _, k := range leaseKeywords {
		if strings.Contains(t, k) {
			return models.IntentAssisted
		}
	}
	if len(strings.Fields(t)) >= 3 {
		return models.IntentAssisted
	}
	return models.IntentTraditional
}
