package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/config"
	"github.com/shubhsaxena/property-search/internal/observability"
)

// Client runs the search queries against the managed Postgres database. Every
// call is bounded by the configured query timeout and guarded by a breaker.
type Client struct {
	db     *sqlx.DB
	cb     *gobreaker.CircuitBreaker
	cfg    config.PostgresConfig
	logger *zap.Logger
}

func NewClient(cfg config.PostgresConfig, cb *gobreaker.CircuitBreaker, logger *zap.Logger) (*Client, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.Info("postgres client connected", zap.String("schema", cfg.Schema))

	return &Client{
		db:     db,
		cb:     cb,
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (c *Client) run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := observability.StartSpan(ctx, "pg."+name,
		attribute.String("db.system", "postgresql"),
	)
	defer span.End()

	if c.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	_, err := c.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})

	status := "success"
	if err != nil {
		status = "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			status = "rejected"
		}
	}
	observability.DBQueryDuration.WithLabelValues(name, status).Observe(time.Since(start).Seconds())

	if err != nil {
		return fmt.Errorf("pg %s: %w", name, err)
	}
	return nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.db.Close()
}

func qualify(schema, name string) string {
	if schema == "" {
		return pq.QuoteIdentifier(name)
	}
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(name)
}

// likePattern wraps term for a substring ILIKE match with wildcards escaped.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	clauses []string
	args    []any
}

// add appends cond, replacing each "?" with the next placeholder. A nil arg
// adds a literal condition.
func (w *where) add(cond string, arg any) {
	if arg == nil {
		w.clauses = append(w.clauses, cond)
		return
	}
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return "TRUE"
	}
	return strings.Join(w.clauses, " AND ")
}

func (w *where) next() int {
	return len(w.args) + 1
}
