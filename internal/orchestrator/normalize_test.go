package orchestrator

import "testing"

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"750k", 750000, true},
		{"2m", 2000000, true},
		{"2 million", 2000000, true},
		{"2 Million", 2000000, true},
		{"$1,250,000", 1250000, true},
		{"1.5b", 1500000000, true},
		{"3 billion", 3000000000, true},
		{"500000", 500000, true},
		{"", 0, false},
		{"cheap", 0, false},
		{"2 acres", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseAmount(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseAmount(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParsePriceRange(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantMin *float64
		wantMax *float64
	}{
		{"above", "above 3 million", floatPtr(3000000), nil},
		{"between", "between 1m and 3m", floatPtr(1000000), floatPtr(3000000)},
		{"between shared suffix", "between 1 and 3 million", floatPtr(1000000), floatPtr(3000000)},
		{"dash range", "offices 1m-3m", floatPtr(1000000), floatPtr(3000000)},
		{"to range", "retail 500k to 2m", floatPtr(500000), floatPtr(2000000)},
		{"under", "warehouses under 750k", nil, floatPtr(750000)},
		{"dollar amount", "less than $900,000", nil, floatPtr(900000)},
		{"min and max", "over 1m and under 4m", floatPtr(1000000), floatPtr(4000000)},
		{"sentence", "warehouses near Dallas within 10 miles under 2 million", nil, floatPtr(2000000)},
		{"cap rate only", "cap rate above 5%", nil, nil},
		{"small numbers", "between 2 and 3 floors", nil, nil},
		{"zip code range", "zip 75001-75201 offices", nil, nil},
		{"street number range", "industrial at 1200 to 1400 main st", nil, nil},
		{"from bare numbers", "suites from 1200 to 1400", nil, nil},
		{"from marked range", "from $1m to $3m", floatPtr(1000000), floatPtr(3000000)},
		{"dollar grouped range", "$1,000,000-2,000,000", floatPtr(1000000), floatPtr(2000000)},
		{"comparison beats bare range", "offices in 75001-75201 under 1m", nil, floatPtr(1000000)},
		{"nothing", "hello", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			min, max := ParsePriceRange(tt.text)
			assertFloatPtr(t, "min", min, tt.wantMin)
			assertFloatPtr(t, "max", max, tt.wantMax)
		})
	}
}

func TestParseCapRateRange(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantMin *float64
		wantMax *float64
	}{
		{"above", "cap rate above 5%", floatPtr(5), nil},
		{"between", "cap rate between 5% and 7.5%", floatPtr(5), floatPtr(7.5)},
		{"under", "retail with cap rate under 6%", nil, floatPtr(6)},
		{"bare number", "cap rate over 6", floatPtr(6), nil},
		{"no cap mention", "above 5%", nil, nil},
		{"price not cap", "cap rate above 5% under 2 million", floatPtr(5), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			min, max := ParseCapRateRange(tt.text)
			assertFloatPtr(t, "min", min, tt.wantMin)
			assertFloatPtr(t, "max", max, tt.wantMax)
		})
	}
}

func TestParseDistance(t *testing.T) {
	tests := []struct {
		text   string
		want   float64
		wantOK bool
	}{
		{"within 10 miles", 16093, true},
		{"within 1 mile of Austin", 1609, true},
		{"2 mi radius", 3219, true},
		{"5 km", 5000, true},
		{"within 500m", 500, true},
		{"750 meters", 750, true},
		{"under 2m", 0, false},
		{"under 2 million", 0, false},
		{"near Dallas", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ParseDistance(tt.text)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseDistance(%q) = (%v, %v), want (%v, %v)", tt.text, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestConvertDistance_UnknownUnit(t *testing.T) {
	if _, err := ConvertDistance(3, "leagues"); err == nil {
		t.Error("expected error for unknown unit")
	}
}

func TestParsePercent(t *testing.T) {
	for in, want := range map[string]float64{"5%": 5, "5.5 %": 5.5, "7": 7} {
		got, ok := ParsePercent(in)
		if !ok || got != want {
			t.Errorf("ParsePercent(%q) = (%v, %v), want %v", in, got, ok, want)
		}
	}
	if _, ok := ParsePercent("high"); ok {
		t.Error("expected failure for non-numeric percent")
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want *string
	}{
		{"available", strPtr(StatusAvailable)},
		{"For Sale", strPtr(StatusAvailable)},
		{"under  contract", strPtr(StatusPending)},
		{"SOLD", strPtr(StatusSold)},
		{"leased", strPtr(StatusLeased)},
		{"haunted", nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assertStrPtr(t, "status", NormalizeStatus(tt.in), tt.want)
		})
	}
}

func TestNormalizeState(t *testing.T) {
	tests := []struct {
		in   string
		want *string
	}{
		{"Texas", strPtr("TX")},
		{"new york", strPtr("NY")},
		{"State of Washington", strPtr("WA")},
		{"Washington State", strPtr("WA")},
		{"N.Y.", strPtr("NY")},
		{"tx", strPtr("TX")},
		{"California, USA", strPtr("CA")},
		{"  Ohio, US ", strPtr("OH")},
		{"Ontario", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assertStrPtr(t, "state", NormalizeState(tt.in), tt.want)
		})
	}
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func assertFloatPtr(t *testing.T, name string, got, want *float64) {
	t.Helper()
	switch {
	case got == nil && want == nil:
	case got == nil || want == nil:
		t.Errorf("%s: got %v, want %v", name, fmtFloat(got), fmtFloat(want))
	case *got != *want:
		t.Errorf("%s: got %v, want %v", name, *got, *want)
	}
}

func assertStrPtr(t *testing.T, name string, got, want *string) {
	t.Helper()
	switch {
	case got == nil && want == nil:
	case got == nil || want == nil:
		t.Errorf("%s: got %v, want %v", name, fmtStr(got), fmtStr(want))
	case *got != *want:
		t.Errorf("%s: got %q, want %q", name, *got, *want)
	}
}

func fmtFloat(f *float64) any {
	if f == nil {
		return "<nil>"
	}
	return *f
}

func fmtStr(s *string) any {
	if s == nil {
		return "<nil>"
	}
	return *s
}
