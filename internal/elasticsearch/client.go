package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/config"
	"github.com/shubhsaxena/property-search/internal/models"
	"github.com/shubhsaxena/property-search/internal/observability"
	"github.com/shubhsaxena/property-search/internal/resilience"
)

var searchableFields = []string{"name", "address", "city", "state", "type", "status"}

// Text fields sort on their keyword sub-field.
var sortFields = map[string]string{
	"property_created_at": "property_created_at",
	"property_updated_at": "property_updated_at",
	"price":               "price",
	"cap_rate":            "cap_rate",
	"name":                "name.keyword",
}

type Client struct {
	es       *elasticsearch.Client
	cb       *gobreaker.CircuitBreaker
	cfg      config.ElasticsearchConfig
	retryCfg resilience.RetryConfig
	logger   *zap.Logger
}

func NewClient(cfg config.ElasticsearchConfig, searchCfg config.SearchConfig, logger *zap.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:  cfg.Addresses,
		Username:   cfg.Username,
		Password:   cfg.Password,
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	res, err := es.Ping()
	if err != nil {
		return nil, fmt.Errorf("pinging elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch ping returned status: %s", res.Status())
	}

	logger.Info("elasticsearch client connected",
		zap.Strings("addresses", cfg.Addresses),
		zap.String("index", cfg.PropertyIndex),
	)

	return &Client{
		es:       es,
		cb:       resilience.NewCircuitBreaker("elasticsearch", searchCfg.CircuitBreaker, logger),
		cfg:      cfg,
		retryCfg: resilience.RetryConfigFrom(searchCfg.Retry),
		logger:   logger,
	}, nil
}

// SearchProperties runs a traditional property search against the property
// index and returns one page plus the exact hit count.
func (c *Client) SearchProperties(ctx context.Context, q *models.TraditionalQuery) ([]models.PropertyRow, int64, error) {
	index := c.cfg.PropertyIndex
	ctx, span := observability.StartSpan(ctx, "es.search_properties",
		attribute.String("es.index", index),
	)
	defer span.End()

	query := buildPropertyQuery(q)
	start := time.Now()

	out, err := c.cb.Execute(func() (any, error) {
		var res *searchResult
		retryErr := resilience.Retry(ctx, c.retryCfg, func() error {
			var execErr error
			res, execErr = c.executeSearch(ctx, index, query)
			return execErr
		})
		return res, retryErr
	})

	duration := time.Since(start)
	if err != nil {
		observability.ESQueryDuration.WithLabelValues(index, "error").Observe(duration.Seconds())
		return nil, 0, fmt.Errorf("es search (index=%s): %w", index, err)
	}
	observability.ESQueryDuration.WithLabelValues(index, "success").Observe(duration.Seconds())

	res := out.(*searchResult)
	return res.rows, res.total, nil
}

type searchResult struct {
	rows  []models.PropertyRow
	total int64
}

// buildPropertyQuery translates a traditional query into the ES query DSL.
// Review listings are excluded as in the relational view.
func buildPropertyQuery(q *models.TraditionalQuery) map[string]any {
	var filters []map[string]any
	if q.Filters.PropertyType != nil {
		filters = append(filters, map[string]any{
			"term": map[string]any{"type.keyword": map[string]any{"value": *q.Filters.PropertyType, "case_insensitive": true}},
		})
	}
	if q.Filters.Status != nil {
		filters = append(filters, map[string]any{
			"term": map[string]any{"status.keyword": map[string]any{"value": *q.Filters.Status, "case_insensitive": true}},
		})
	}
	if q.Filters.MinPrice != nil || q.Filters.MaxPrice != nil {
		rng := map[string]any{}
		if q.Filters.MinPrice != nil {
			rng["gte"] = *q.Filters.MinPrice
		}
		if q.Filters.MaxPrice != nil {
			rng["lte"] = *q.Filters.MaxPrice
		}
		filters = append(filters, map[string]any{"range": map[string]any{"price": rng}})
	}

	boolQuery := map[string]any{
		"must_not": []map[string]any{
			{"term": map[string]any{"status.keyword": "Review"}},
		},
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	if term := strings.TrimSpace(q.Term); term != "" {
		should := make([]map[string]any, 0, len(searchableFields))
		pattern := "*" + escapeWildcard(strings.ToLower(term)) + "*"
		for _, f := range searchableFields {
			should = append(should, map[string]any{
				"wildcard": map[string]any{
					f + ".keyword": map[string]any{"value": pattern, "case_insensitive": true},
				},
			})
		}
		boolQuery["should"] = should
		boolQuery["minimum_should_match"] = 1
	}

	field, order := models.NormalizeSort(q.SortField, q.SortOrder, models.PropertySortFields, models.DefaultPropertySort)

	return map[string]any{
		"query": map[string]any{"bool": boolQuery},
		"sort": []map[string]any{
			{sortFields[field]: map[string]any{"order": order, "missing": "_last"}},
			{"property_id": map[string]any{"order": "asc"}},
		},
		"from":             q.Offset,
		"size":             q.Limit,
		"track_total_hits": true,
	}
}

func escapeWildcard(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`).Replace(s)
}

func (c *Client) executeSearch(ctx context.Context, index string, query map[string]any) (*searchResult, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("marshaling es query: %w", err))
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(body)),
		c.es.Search.WithTimeout(c.cfg.RequestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("executing es search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		err := fmt.Errorf("es search error status=%s body=%s", res.Status(), string(bodyBytes))
		if res.StatusCode >= 400 && res.StatusCode < 500 {
			return nil, resilience.Permanent(err)
		}
		return nil, err
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("decoding es response: %w", err)
	}
	if esResp.TimedOut {
		c.logger.Warn("es search timed out on some shards", zap.String("index", index))
	}

	rows := make([]models.PropertyRow, 0, len(esResp.Hits.Hits))
	for _, h := range esResp.Hits.Hits {
		row := h.Source
		if row.PropertyID == "" {
			row.PropertyID = h.ID
		}
		rows = append(rows, row)
	}

	return &searchResult{rows: rows, total: esResp.Hits.Total.Value}, nil
}

// BulkIndex applies index and delete actions in one request. Versions are
// external so a late-arriving older event cannot overwrite a newer document.
func (c *Client) BulkIndex(ctx context.Context, actions []models.IndexAction) error {
	if len(actions) == 0 {
		return nil
	}

	ctx, span := observability.StartSpan(ctx, "es.bulk_index",
		attribute.Int("batch_size", len(actions)),
	)
	defer span.End()

	body, err := buildBulkBody(actions)
	if err != nil {
		return err
	}

	res, err := c.es.Bulk(
		bytes.NewReader(body),
		c.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("executing bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bulk request error status=%s body=%s", res.Status(), string(bodyBytes))
	}

	var bulkResp bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("decoding bulk response: %w", err)
	}

	if bulkResp.Errors {
		var errMsgs []string
		for _, item := range bulkResp.Items {
			for _, result := range item {
				// 409 is a stale version; the newer document already won.
				if result.Error != nil && result.Status != 409 {
					errMsgs = append(errMsgs, fmt.Sprintf("id=%s: %s", result.ID, result.Error.Reason))
				}
			}
		}
		if len(errMsgs) > 0 {
			return fmt.Errorf("bulk indexing had errors: %s", strings.Join(errMsgs, "; "))
		}
	}

	return nil
}

func buildBulkBody(actions []models.IndexAction) ([]byte, error) {
	var buf bytes.Buffer
	for _, action := range actions {
		inner := map[string]any{
			"_index": action.Index,
			"_id":    action.ID,
		}
		if action.Version > 0 {
			inner["version"] = action.Version
			inner["version_type"] = "external"
		}

		metaLine, err := json.Marshal(map[string]any{action.Action: inner})
		if err != nil {
			return nil, fmt.Errorf("marshaling bulk meta: %w", err)
		}
		buf.Write(metaLine)
		buf.WriteByte('\n')

		if action.Action != "delete" && action.Body != nil {
			bodyLine, err := json.Marshal(action.Body)
			if err != nil {
				return nil, fmt.Errorf("marshaling bulk body: %w", err)
			}
			buf.Write(bodyLine)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

func (c *Client) PropertyIndex() string {
	return c.cfg.PropertyIndex
}

// HealthCheck fails when the cluster is red.
func (c *Client) HealthCheck(ctx context.Context) error {
	res, err := c.es.Cluster.Health(
		c.es.Cluster.Health.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("es health check: %w", err)
	}
	defer res.Body.Close()

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}
	if health.Status == "red" {
		return fmt.Errorf("es cluster status red")
	}
	return nil
}

type esSearchResponse struct {
	Took     int64 `json:"took"`
	TimedOut bool  `json:"timed_out"`
	Hits     struct {
		Total struct {
			Value    int64  `json:"value"`
			Relation string `json:"relation"`
		} `json:"total"`
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

type esHit struct {
	ID     string             `json:"_id"`
	Source models.PropertyRow `json:"_source"`
}

type bulkResponse struct {
	Errors bool                        `json:"errors"`
	Items  []map[string]bulkItemResult `json:"items"`
}

type bulkItemResult struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}
