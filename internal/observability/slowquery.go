package observability

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/models"
)

type SlowQueryDetector struct {
	warningThreshold  time.Duration
	criticalThreshold time.Duration
	logger            *zap.Logger
	analyticsWriter   AnalyticsWriter
}

type AnalyticsWriter interface {
	WriteSearchEvent(ctx context.Context, event *models.AnalyticsEvent) error
}

func NewSlowQueryDetector(warning, critical time.Duration, logger *zap.Logger, aw AnalyticsWriter) *SlowQueryDetector {
	return &SlowQueryDetector{
		warningThreshold:  warning,
		criticalThreshold: critical,
		logger:            logger,
		analyticsWriter:   aw,
	}
}

// Intercept records searches slower than the warning threshold. The event is
// copied and written asynchronously so the caller's response is not delayed.
func (sqd *SlowQueryDetector) Intercept(ctx context.Context, query string, event models.AnalyticsEvent, duration time.Duration) {
	if duration <= sqd.warningThreshold {
		return
	}

	traceID := TraceIDFromContext(ctx)
	severity := sqd.classifySeverity(duration)

	SlowQueryCounter.WithLabelValues(severity, event.Mode).Inc()

	sqd.logger.Warn("slow search detected",
		zap.String("trace_id", traceID),
		zap.String("query_hash", HashQuery(query)),
		zap.String("mode", event.Mode),
		zap.Float64("duration_ms", float64(duration.Milliseconds())),
		zap.Int64("total_hits", event.TotalHits),
		zap.String("severity", severity),
	)

	if sqd.analyticsWriter == nil {
		return
	}

	event.EventType = "slow_search"
	event.QueryHash = HashQuery(query)
	event.DurationMs = float64(duration.Milliseconds())
	event.TraceID = traceID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := sqd.analyticsWriter.WriteSearchEvent(writeCtx, &event); err != nil {
			sqd.logger.Error("failed to write slow search event",
				zap.String("trace_id", traceID),
				zap.Error(err),
			)
		}
	}()
}

func (sqd *SlowQueryDetector) classifySeverity(d time.Duration) string {
	if d > sqd.criticalThreshold {
		return "critical"
	}
	if d > sqd.warningThreshold {
		return "warning"
	}
	return "normal"
}

// HashQuery returns a stable, non-reversible token for logging user text.
func HashQuery(q string) string {
	return fmt.Sprintf("%016x", hashUint64(q))
}

func hashUint64(s string) uint64 {
	h := uint64(0)
	for _, c := range s {
		h = h*31 + uint64(c)
	}
	return h
}
