package orchestrator

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/models"
	"github.com/shubhsaxena/property-search/internal/observability"
)

const (
	leaseModeAI          = "ai"
	leaseModeTraditional = "traditional"
)

type LeaseStore interface {
	ListLeases(ctx context.Context, q *models.LeaseListQuery) ([]models.LeaseRow, int64, error)
	ListAllLeases(ctx context.Context, limit int) ([]models.LeaseRow, error)
	SearchLeaseVector(ctx context.Context, embedding []float32, limit int) ([]models.LeaseRow, error)
}

// SearchLeases lists leases. Search text that reads like a sentence is
// turned into lease filters by the model; a failed extraction degrades to a
// plain substring search over the same text.
func (o *Orchestrator) SearchLeases(ctx context.Context, q *models.LeaseQuery) (*models.LeaseSearchResponse, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "orchestrator.search_leases")
	defer span.End()

	page, size := o.window(q.Page, q.PageSize, o.cfg.LeaseDefaultPageSize)
	field, order := models.NormalizeSort(q.SortField, q.SortOrder, models.LeaseSortFields, models.DefaultLeaseSort)

	list := &models.LeaseListQuery{
		PropertyID: q.PropertyID,
		UserID:     q.UserID,
		Status:     q.Status,
		SortField:  field,
		SortOrder:  order,
		Offset:     (page - 1) * size,
		Limit:      size,
	}

	search := strings.TrimSpace(q.Search)
	mode := leaseModeTraditional
	if search != "" && o.classifier.ClassifyLease(search) == models.IntentAssisted {
		if filters, ok := o.extractor.ExtractLease(ctx, search); ok {
			mode = leaseModeAI
			list.AI = filters
			if filters.Status != nil {
				list.Status = *filters.Status
			}
		}
	}
	if list.AI == nil {
		list.Term = search
	}
	span.SetAttributes(attribute.String("mode", mode))

	rows, total, err := o.leases.ListLeases(ctx, list)
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		observability.SearchRequestsTotal.WithLabelValues("lease", "error").Inc()
		observability.SearchRequestDuration.WithLabelValues("lease", "error").Observe(duration.Seconds())
		return nil, downstreamError("lease search", err)
	}
	if rows == nil {
		rows = []models.LeaseRow{}
	}

	observability.SearchRequestsTotal.WithLabelValues("lease", "success").Inc()
	observability.SearchRequestDuration.WithLabelValues("lease", "success").Observe(duration.Seconds())
	o.logger.Debug("lease search complete",
		zap.String("mode", mode),
		zap.Int64("total", total),
	)

	description := "Viewed lease list"
	if mode == leaseModeAI {
		description = `AI lease search: "` + search + `"`
	}
	o.recordAudit(q.Caller, leaseAuditTable, description)
	o.recordAnalytics(ctx, search, models.AnalyticsEvent{
		Mode:      "lease",
		Intent:    mode,
		TotalHits: total,
		Source:    "postgres",
	}, duration)

	return &models.LeaseSearchResponse{
		Success:          true,
		Mode:             mode,
		ExtractedFilters: list.AI,
		Data:             rows,
		Total:            total,
		Page:             page,
		PageSize:         size,
	}, nil
}
