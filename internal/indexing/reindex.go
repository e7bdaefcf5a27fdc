package indexing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/models"
)

type PropertyPager interface {
	SearchProperties(ctx context.Context, q *models.TraditionalQuery) ([]models.PropertyRow, int64, error)
}

type ChangePublisher interface {
	PublishBatch(ctx context.Context, events []*models.ChangeEvent) error
}

// Reindexer republishes every listed property as an UPDATE event so the
// stream processor rebuilds the search index from the system of record.
type Reindexer struct {
	source    PropertyPager
	publisher ChangePublisher
	batchSize int
	now       func() time.Time
	logger    *zap.Logger
}

func NewReindexer(source PropertyPager, publisher ChangePublisher, batchSize int, logger *zap.Logger) *Reindexer {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Reindexer{
		source:    source,
		publisher: publisher,
		batchSize: batchSize,
		now:       time.Now,
		logger:    logger,
	}
}

// Run pages through the catalogue in creation order and returns the number
// of events published.
func (r *Reindexer) Run(ctx context.Context) (int, error) {
	published := 0
	version := r.now().UnixMilli()

	for offset := 0; ; offset += r.batchSize {
		rows, _, err := r.source.SearchProperties(ctx, &models.TraditionalQuery{
			SortField: models.DefaultPropertySort,
			SortOrder: models.SortAsc,
			Offset:    offset,
			Limit:     r.batchSize,
		})
		if err != nil {
			return published, fmt.Errorf("reading properties at offset %d: %w", offset, err)
		}
		if len(rows) == 0 {
			break
		}

		ts := r.now().UTC()
		events := make([]*models.ChangeEvent, len(rows))
		for i := range rows {
			row := rows[i]
			events[i] = &models.ChangeEvent{
				Type:       "UPDATE",
				PropertyID: row.PropertyID,
				Property:   &row,
				Timestamp:  ts,
				Version:    version,
			}
		}

		if err := r.publisher.PublishBatch(ctx, events); err != nil {
			return published, fmt.Errorf("publishing batch at offset %d: %w", offset, err)
		}
		published += len(events)

		if len(rows) < r.batchSize {
			break
		}
	}

	r.logger.Info("reindex published", zap.Int("events", published))
	return published, nil
}
