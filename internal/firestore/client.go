package firestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/shubhsaxena/property-search/internal/config"
	"github.com/shubhsaxena/property-search/internal/models"
	"github.com/shubhsaxena/property-search/internal/observability"
)

// Client stores the audit trail.
type Client struct {
	client *firestore.Client
	cfg    config.FirestoreConfig
	logger *zap.Logger
}

func NewClient(ctx context.Context, cfg config.FirestoreConfig, logger *zap.Logger) (*Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	logger.Info("firestore client connected",
		zap.String("project", cfg.ProjectID),
		zap.String("collection", cfg.AuditCollection),
	)

	return &Client{
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// RecordAudit writes one audit record. A missing id or timestamp is filled in.
func (c *Client) RecordAudit(ctx context.Context, event *models.AuditEvent) error {
	ctx, span := observability.StartSpan(ctx, "firestore.record_audit",
		attribute.String("action_type", event.ActionType),
		attribute.String("table_name", event.TableName),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err := c.client.Collection(c.cfg.AuditCollection).Doc(event.ID).Set(ctx, event)
	if err != nil {
		observability.AuditWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("firestore audit write %s: %w", event.ID, err)
	}
	observability.AuditWritesTotal.WithLabelValues("success").Inc()
	return nil
}

// ListAudit returns one page of audit records, newest first.
func (c *Client) ListAudit(ctx context.Context, q models.AuditQuery) ([]models.AuditEvent, bool, error) {
	ctx, span := observability.StartSpan(ctx, "firestore.list_audit",
		attribute.Int("page", q.Page),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	query := c.client.Collection(c.cfg.AuditCollection).Query
	if q.UserID != "" {
		query = query.Where("user_id", "==", q.UserID)
	}
	if q.AccountID != "" {
		query = query.Where("account_id", "==", q.AccountID)
	}
	if q.ActionType != "" && !strings.EqualFold(q.ActionType, "all") {
		query = query.Where("action_type", "==", strings.ToUpper(q.ActionType))
	}

	// One extra row tells whether another page exists.
	query = query.OrderBy("timestamp", firestore.Desc).
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize + 1)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var events []models.AuditEvent
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, false, fmt.Errorf("firestore list audit: %w", err)
		}
		var ev models.AuditEvent
		if err := doc.DataTo(&ev); err != nil {
			c.logger.Warn("skipping malformed audit record", zap.String("id", doc.Ref.ID), zap.Error(err))
			continue
		}
		events = append(events, ev)
	}

	hasMore := len(events) > q.PageSize
	if hasMore {
		events = events[:q.PageSize]
	}
	return events, hasMore, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	iter := c.client.Collection(c.cfg.AuditCollection).Limit(1).Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	// An empty collection still proves Firestore is reachable.
	if err != nil && err != iterator.Done {
		return fmt.Errorf("firestore health check: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
