package geocode

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/config"
	"github.com/shubhsaxena/property-search/internal/resilience"
)

const washingtonResponse = `{
  "status": "OK",
  "results": [{
    "formatted_address": "Washington, USA",
    "geometry": {"location": {"lat": 47.7511, "lng": -120.7401}},
    "address_components": [
      {"long_name": "Washington", "short_name": "Washington", "types": ["locality", "political"]},
      {"long_name": "Washington", "short_name": "WA", "types": ["administrative_area_level_1", "political"]},
      {"long_name": "United States", "short_name": "US", "types": ["country", "political"]}
    ]
  }]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.Geocoding.BaseURL = srv.URL
	cfg.Geocoding.APIKey = "maps-key"
	cfg.Geocoding.Timeout = 500 * time.Millisecond
	return NewClient(cfg.Geocoding, cfg.Search, zap.NewNop())
}

func TestGeocode_OK(t *testing.T) {
	var gotAddress, gotKey string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAddress = r.URL.Query().Get("address")
		gotKey = r.URL.Query().Get("key")
		w.Write([]byte(washingtonResponse))
	})

	res, err := c.Geocode(t.Context(), "Washington")
	require.NoError(t, err)

	assert.Equal(t, "Washington", gotAddress)
	assert.Equal(t, "maps-key", gotKey)
	assert.InDelta(t, 47.7511, res.Geometry.Location.Lat, 1e-9)
	assert.InDelta(t, -120.7401, res.Geometry.Location.Lng, 1e-9)
	assert.Equal(t, "Washington, USA", res.FormattedAddress)
}

func TestGeocode_AddressIsEscaped(t *testing.T) {
	var gotAddress string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAddress = r.URL.Query().Get("address")
		w.Write([]byte(washingtonResponse))
	})

	_, err := c.Geocode(t.Context(), "Dallas, TX & more")
	require.NoError(t, err)
	assert.Equal(t, "Dallas, TX & more", gotAddress)
}

func TestGeocode_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero results", `{"status":"ZERO_RESULTS","results":[]}`},
		{"ok but empty", `{"status":"OK","results":[]}`},
		{"denied", `{"status":"REQUEST_DENIED","results":[],"error_message":"invalid key"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			_, err := c.Geocode(t.Context(), "Atlantis")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNoResults)
			assert.True(t, resilience.IsPermanent(err))
		})
	}
}

func TestGeocode_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Geocode(t.Context(), "Dallas")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoResults)
}

func TestResult_Component(t *testing.T) {
	r := &Result{AddressComponents: []AddressComponent{
		{LongName: "Washington", ShortName: "Washington", Types: []string{"locality", "political"}},
		{LongName: "Washington", ShortName: "WA", Types: []string{"administrative_area_level_1", "political"}},
	}}

	admin, ok := r.Component(TypeAdminArea1)
	require.True(t, ok)
	assert.Equal(t, "WA", admin.ShortName)

	loc, ok := r.Component(TypeLocality)
	require.True(t, ok)
	assert.Equal(t, "Washington", loc.LongName)

	_, ok = r.Component("country")
	assert.False(t, ok)
}
