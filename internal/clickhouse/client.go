package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/config"
	"github.com/shubhsaxena/property-search/internal/models"
	"github.com/shubhsaxena/property-search/internal/observability"
)

// Client is the search analytics sink.
type Client struct {
	conn   driver.Conn
	cfg    config.ClickHouseConfig
	logger *zap.Logger
}

func NewClient(cfg config.ClickHouseConfig, logger *zap.Logger) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addresses,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": int(cfg.QueryTimeout.Seconds()),
		},
		DialTimeout:  cfg.DialTimeout,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging clickhouse: %w", err)
	}

	logger.Info("clickhouse client connected", zap.Strings("addresses", cfg.Addresses))

	return &Client{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// WriteSearchEvent records one search, or one slow search, in search_events.
func (c *Client) WriteSearchEvent(ctx context.Context, event *models.AnalyticsEvent) error {
	start := time.Now()
	err := c.conn.Exec(ctx, `
		INSERT INTO search_events (
			event_type, query_hash, mode, intent, duration_ms, total_hits,
			is_radius, has_admin, has_address, has_semantic, rejected,
			source, timestamp, trace_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventType,
		event.QueryHash,
		event.Mode,
		event.Intent,
		event.DurationMs,
		event.TotalHits,
		event.IsRadius,
		event.HasAdmin,
		event.HasAddress,
		event.HasSemantic,
		event.Rejected,
		event.Source,
		event.Timestamp,
		event.TraceID,
	)
	observeCH("write_search_event", start, err)
	if err != nil {
		return fmt.Errorf("ch insert search event: %w", err)
	}
	return nil
}

// InsertPropertyChange appends a property change to the change log.
func (c *Client) InsertPropertyChange(ctx context.Context, event *models.ChangeEvent) error {
	start := time.Now()
	err := c.conn.Exec(ctx, `
		INSERT INTO property_changelog (
			property_id, operation, timestamp, version
		) VALUES (?, ?, ?, ?)`,
		event.PropertyID,
		event.Type,
		event.Timestamp,
		event.Version,
	)
	observeCH("insert_property_change", start, err)
	if err != nil {
		return fmt.Errorf("ch insert property change: %w", err)
	}
	return nil
}

// ModeStats summarizes searches of one mode over a window.
type ModeStats struct {
	Mode       string  `json:"mode"`
	Searches   uint64  `json:"searches"`
	Rejected   uint64  `json:"rejected"`
	AvgHits    float64 `json:"avg_hits"`
	P95Ms      float64 `json:"p95_ms"`
	SlowEvents uint64  `json:"slow_events"`
}

// SearchStats aggregates search_events since the given time, per mode.
func (c *Client) SearchStats(ctx context.Context, since time.Time) ([]ModeStats, error) {
	ctx, span := observability.StartSpan(ctx, "ch.search_stats",
		attribute.String("since", since.Format(time.RFC3339)),
	)
	defer span.End()

	start := time.Now()
	rows, err := c.conn.Query(ctx, `
		SELECT
			mode,
			countIf(event_type = 'search') AS searches,
			countIf(event_type = 'search' AND rejected) AS rejected,
			avgIf(total_hits, event_type = 'search') AS avg_hits,
			quantileIf(0.95)(duration_ms, event_type = 'search') AS p95_ms,
			countIf(event_type = 'slow_search') AS slow_events
		FROM search_events
		WHERE timestamp >= ?
		GROUP BY mode
		ORDER BY searches DESC`, since)
	if err != nil {
		observeCH("search_stats", start, err)
		return nil, fmt.Errorf("ch search stats: %w", err)
	}
	defer rows.Close()

	var stats []ModeStats
	for rows.Next() {
		var s ModeStats
		if err := rows.Scan(&s.Mode, &s.Searches, &s.Rejected, &s.AvgHits, &s.P95Ms, &s.SlowEvents); err != nil {
			return nil, fmt.Errorf("scanning stats row: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stats rows: %w", err)
	}

	observeCH("search_stats", start, nil)
	return stats, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) EnsureTables(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS search_events (
			event_type String,
			query_hash String,
			mode LowCardinality(String),
			intent LowCardinality(String),
			duration_ms Float64,
			total_hits Int64,
			is_radius Bool,
			has_admin Bool,
			has_address Bool,
			has_semantic Bool,
			rejected Bool,
			source LowCardinality(String),
			timestamp DateTime64(3),
			trace_id String
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (timestamp, mode)`,

		`CREATE TABLE IF NOT EXISTS property_changelog (
			property_id String,
			operation LowCardinality(String),
			timestamp DateTime64(3),
			version Int64
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (timestamp, property_id)`,
	}

	for _, ddl := range tables {
		if err := c.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("creating table: %w", err)
		}
	}

	c.logger.Info("clickhouse tables ensured")
	return nil
}

func observeCH(query string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.CHQueryDuration.WithLabelValues(query, status).Observe(time.Since(start).Seconds())
}
