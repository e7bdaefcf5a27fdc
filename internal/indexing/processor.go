package indexing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/config"
	"github.com/shubhsaxena/property-search/internal/models"
	"github.com/shubhsaxena/property-search/internal/observability"
)

type BulkIndexer interface {
	BulkIndex(ctx context.Context, actions []models.IndexAction) error
}

type ChangeLog interface {
	InsertPropertyChange(ctx context.Context, event *models.ChangeEvent) error
}

type CacheInvalidator interface {
	InvalidateTraditional(ctx context.Context) error
}

// StreamProcessor turns property change events into bulk index actions. The
// buffer is flushed when it reaches the bulk size or on every tick.
type StreamProcessor struct {
	indexer   BulkIndexer
	index     string
	changelog ChangeLog
	cache     CacheInvalidator
	esCfg     config.ElasticsearchConfig
	logger    *zap.Logger

	mu     sync.Mutex
	buffer []models.IndexAction
	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewStreamProcessor starts the periodic flush loop. changelog and cache may
// be nil.
func NewStreamProcessor(
	indexer BulkIndexer,
	changelog ChangeLog,
	cache CacheInvalidator,
	esCfg config.ElasticsearchConfig,
	logger *zap.Logger,
) *StreamProcessor {
	sp := &StreamProcessor{
		indexer:   indexer,
		index:     esCfg.PropertyIndex,
		changelog: changelog,
		cache:     cache,
		esCfg:     esCfg,
		logger:    logger,
		buffer:    make([]models.IndexAction, 0, esCfg.BulkSize),
		ticker:    time.NewTicker(esCfg.BulkFlushInterval),
		done:      make(chan struct{}),
	}

	go sp.flushLoop()

	return sp
}

func (sp *StreamProcessor) HandleEvent(ctx context.Context, event *models.ChangeEvent) error {
	action, err := transformEvent(sp.index, event)
	if err != nil {
		return fmt.Errorf("transforming event: %w", err)
	}

	sp.mu.Lock()
	sp.buffer = append(sp.buffer, *action)
	shouldFlush := len(sp.buffer) >= sp.esCfg.BulkSize
	sp.mu.Unlock()

	if shouldFlush {
		if err := sp.flush(ctx); err != nil {
			sp.logger.Error("flush on buffer full failed", zap.Error(err))
		}
	}

	if sp.changelog != nil {
		sp.wg.Add(1)
		go func() {
			defer sp.wg.Done()
			chCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sp.changelog.InsertPropertyChange(chCtx, event); err != nil {
				sp.logger.Warn("changelog insert failed",
					zap.String("property_id", event.PropertyID),
					zap.Error(err),
				)
			}
		}()
	}

	return nil
}

func transformEvent(index string, event *models.ChangeEvent) (*models.IndexAction, error) {
	action := &models.IndexAction{
		Index:     index,
		ID:        event.PropertyID,
		Version:   event.Version,
		Timestamp: event.Timestamp,
	}

	switch event.Type {
	case "CREATE", "UPDATE":
		if event.Property == nil {
			return nil, fmt.Errorf("%s event for %s has no property body", event.Type, event.PropertyID)
		}
		body := *event.Property
		body.PropertyID = event.PropertyID
		// Signed URLs expire; only the stored object path is indexed.
		action.Action = "index"
		action.Body = &body
	case "DELETE":
		action.Action = "delete"
	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}

	return action, nil
}

func (sp *StreamProcessor) flushLoop() {
	for {
		select {
		case <-sp.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := sp.flush(ctx); err != nil {
				sp.logger.Error("periodic flush failed", zap.Error(err))
			}
			cancel()
		case <-sp.done:
			return
		}
	}
}

func (sp *StreamProcessor) flush(ctx context.Context) error {
	sp.mu.Lock()
	if len(sp.buffer) == 0 {
		sp.mu.Unlock()
		return nil
	}
	batch := make([]models.IndexAction, len(sp.buffer))
	copy(batch, sp.buffer)
	sp.buffer = sp.buffer[:0]
	sp.mu.Unlock()

	start := time.Now()
	if err := sp.indexer.BulkIndex(ctx, batch); err != nil {
		// Requeue ahead of anything buffered meanwhile to keep event order.
		sp.mu.Lock()
		sp.buffer = append(batch, sp.buffer...)
		sp.mu.Unlock()

		observability.IndexingEventsTotal.WithLabelValues("bulk", "error").Inc()
		return fmt.Errorf("bulk index flush: %w", err)
	}

	observability.IndexingEventsTotal.WithLabelValues("bulk", "success").Add(float64(len(batch)))
	sp.logger.Info("bulk flush completed",
		zap.Int("count", len(batch)),
		zap.Duration("duration", time.Since(start)),
	)

	if sp.cache != nil {
		if err := sp.cache.InvalidateTraditional(ctx); err != nil {
			sp.logger.Warn("cache invalidation failed", zap.Error(err))
		}
	}

	return nil
}

func (sp *StreamProcessor) Buffered() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return len(sp.buffer)
}

// Stop ends the flush loop, waits for in-flight changelog writes and flushes
// what is left.
func (sp *StreamProcessor) Stop() error {
	sp.ticker.Stop()
	close(sp.done)
	sp.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return sp.flush(ctx)
}
