package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shubhsaxena/property-search/internal/config"
	"github.com/shubhsaxena/property-search/internal/observability"
	"github.com/shubhsaxena/property-search/internal/resilience"
)

const (
	TypeLocality   = "locality"
	TypeAdminArea1 = "administrative_area_level_1"
)

// ErrNoResults is returned when the service answers with a non-OK status or
// an empty result list.
var ErrNoResults = errors.New("geocode: no results")

type Response struct {
	Status       string   `json:"status"`
	Results      []Result `json:"results"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

type Result struct {
	Geometry struct {
		Location LatLng `json:"location"`
	} `json:"geometry"`
	FormattedAddress  string             `json:"formatted_address"`
	AddressComponents []AddressComponent `json:"address_components"`
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// Component returns the first address component tagged with typ.
func (r *Result) Component(typ string) (AddressComponent, bool) {
	for _, c := range r.AddressComponents {
		for _, t := range c.Types {
			if t == typ {
				return c, true
			}
		}
	}
	return AddressComponent{}, false
}

type Client struct {
	httpClient *http.Client
	cfg        config.GeocodingConfig
	cb         *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewClient(cfg config.GeocodingConfig, searchCfg config.SearchConfig, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{},
		cfg:        cfg,
		cb:         resilience.NewCircuitBreaker("geocoder", searchCfg.CircuitBreaker, logger),
		limiter:    resilience.NewLimiter(cfg.RequestsPerSecond, cfg.Burst),
		logger:     logger,
	}
}

// Geocode resolves a free-text address and returns the service's first result.
// A non-OK status or an empty result list is reported as ErrNoResults, marked
// permanent so it neither trips the breaker nor gets retried.
func (c *Client) Geocode(ctx context.Context, address string) (*Result, error) {
	ctx, span := observability.StartSpan(ctx, "geocode.lookup",
		attribute.String("geocode.query_hash", observability.HashQuery(address)),
	)
	defer span.End()

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	if err := resilience.Wait(ctx, c.limiter); err != nil {
		observability.GeocodeRequestsTotal.WithLabelValues("rate_limited").Inc()
		return nil, fmt.Errorf("geocode: rate limiter: %w", err)
	}

	out, err := c.cb.Execute(func() (any, error) {
		return c.lookup(ctx, address)
	})
	if err != nil {
		label := "error"
		if errors.Is(err, ErrNoResults) {
			label = "no_results"
		}
		observability.GeocodeRequestsTotal.WithLabelValues(label).Inc()
		return nil, fmt.Errorf("geocoding %q: %w", address, err)
	}

	observability.GeocodeRequestsTotal.WithLabelValues("ok").Inc()
	return out.(*Result), nil
}

func (c *Client) lookup(ctx context.Context, address string) (*Result, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("creating request: %w", err))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var gr Response
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	c.logger.Debug("geocode response",
		zap.String("status", gr.Status),
		zap.Int("results", len(gr.Results)),
		zap.Duration("duration", time.Since(start)),
	)

	if gr.Status != "OK" || len(gr.Results) == 0 {
		if gr.ErrorMessage != "" {
			return nil, resilience.Permanent(fmt.Errorf("%w: status=%s: %s", ErrNoResults, gr.Status, gr.ErrorMessage))
		}
		return nil, resilience.Permanent(fmt.Errorf("%w: status=%s", ErrNoResults, gr.Status))
	}

	return &gr.Results[0], nil
}
