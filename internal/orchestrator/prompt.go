package orchestrator

import (
	"strconv"
	"strings"
	"time"
)

const propertyPromptTemplate = `You are an expert commercial real-estate query parser. Convert the user's text into structured JSON.

Return ONLY valid JSON with exactly these keys:

{
  "location": string | null,
  "radius_m": number | null,
  "property_type": string | null,
  "status": "Available" | "Pending" | "Sold" | "Leased" | null,
  "min_price": number | null,
  "max_price": number | null,
  "min_cap_rate": number | null,
  "max_cap_rate": number | null,
  "city": string | null,
  "state": string | null
}

Rules:
1. Radius search: only when the text states an explicit distance ("within 10 miles", "5 km of"). Put the place the distance is measured from in "location", convert the distance to meters in "radius_m", and set "city" and "state" to null.
2. Administrative search: when the text names a city or state without a distance, set "city" or "state" and leave "radius_m" null. Use the state's full name or two-letter code.
3. A street address or landmark without a distance goes in "location" with "radius_m" null.
4. Prices are in US dollars as plain numbers: "750k" is 750000, "2m" and "2 million" are 2000000.
5. "above", "over", "more than" and "at least" set "min_price". "below", "under", "less than" and "up to" set "max_price". "between X and Y" sets both.
6. Cap rates are percentages as plain numbers: "cap rate above 5%" sets "min_cap_rate" to 5.
7. Map availability wording onto "status": for sale, for lease, on market or vacant is "Available"; under contract or in escrow is "Pending"; sold or closed is "Sold"; leased, rented or occupied is "Leased".
8. Copy the property type exactly as the user wrote it, singular and capitalized (for example "Warehouse", "Office", "Retail").
9. Any value the text does not state is null. Never guess.

User text: `

const leasePromptTemplate = `You are a lease search query parser. Extract only filters that exist in the lease system.

Return ONLY valid JSON with exactly these keys:

{
  "tenant": string | null,
  "landlord": string | null,
  "property_name": string | null,
  "status": "active" | "expired" | "expiring" | null,
  "lease_start_from": string | null,
  "lease_end_to": string | null
}

Rules:
1. Dates are ISO-8601 (YYYY-MM-DD). Resolve relative phrases such as "this month", "next month" or "last year" against today's date.
2. "lease_start_from" is the earliest lease start to include. "lease_end_to" is the latest lease end to include.
3. Leases ending within the next 90 days are "expiring".
4. Any value the text does not state is null. Never guess.

Today's date: `

// propertyPrompt embeds the user text as a quoted string so instructions
// inside it stay data.
func propertyPrompt(text string) string {
	return propertyPromptTemplate + strconv.Quote(text) + "\n"
}

func leasePrompt(text string, today time.Time) string {
	var b strings.Builder
	b.WriteString(leasePromptTemplate)
	b.WriteString(today.Format(time.DateOnly))
	b.WriteString("\nUser query: ")
	b.WriteString(strconv.Quote(text))
	b.WriteString("\n")
	return b.String()
}
