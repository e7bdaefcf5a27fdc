package observability

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shubhsaxena/property-search/internal/models"

	"go.uber.org/zap"
)

type mockAnalyticsWriter struct {
	mu     sync.Mutex
	events []*models.AnalyticsEvent
}

func (m *mockAnalyticsWriter) WriteSearchEvent(ctx context.Context, event *models.AnalyticsEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockAnalyticsWriter) getEvents() []*models.AnalyticsEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*models.AnalyticsEvent, len(m.events))
	copy(cp, m.events)
	return cp
}

func (m *mockAnalyticsWriter) waitForEvents(n int) []*models.AnalyticsEvent {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if events := m.getEvents(); len(events) >= n {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	return m.getEvents()
}

func TestSlowQueryDetector_ClassifySeverity(t *testing.T) {
	sqd := &SlowQueryDetector{
		warningThreshold:  3 * time.Second,
		criticalThreshold: 8 * time.Second,
	}

	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"below warning", 1 * time.Second, "normal"},
		{"at warning", 3 * time.Second, "normal"},
		{"above warning", 4 * time.Second, "warning"},
		{"at critical", 8 * time.Second, "warning"},
		{"above critical", 9 * time.Second, "critical"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sqd.classifySeverity(tt.duration)
			if got != tt.want {
				t.Errorf("classifySeverity(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}

func TestSlowQueryDetector_InterceptBelowThreshold(t *testing.T) {
	aw := &mockAnalyticsWriter{}
	sqd := NewSlowQueryDetector(200*time.Millisecond, 500*time.Millisecond, zap.NewNop(), aw)

	sqd.Intercept(context.Background(), "fast query", models.AnalyticsEvent{Mode: "assisted"}, 100*time.Millisecond)

	time.Sleep(50 * time.Millisecond)

	if events := aw.getEvents(); len(events) != 0 {
		t.Errorf("expected no analytics events for fast search, got %d", len(events))
	}
}

func TestSlowQueryDetector_InterceptAboveWarning(t *testing.T) {
	aw := &mockAnalyticsWriter{}
	sqd := NewSlowQueryDetector(200*time.Millisecond, 500*time.Millisecond, zap.NewNop(), aw)

	sqd.Intercept(context.Background(), "warehouses near dallas",
		models.AnalyticsEvent{Mode: "assisted", TotalHits: 12, IsRadius: true},
		300*time.Millisecond)

	events := aw.waitForEvents(1)
	if len(events) != 1 {
		t.Fatalf("expected 1 analytics event, got %d", len(events))
	}

	event := events[0]
	if event.EventType != "slow_search" {
		t.Errorf("expected event type 'slow_search', got %q", event.EventType)
	}
	if event.Mode != "assisted" {
		t.Errorf("expected mode 'assisted', got %q", event.Mode)
	}
	if event.DurationMs != 300 {
		t.Errorf("expected duration 300ms, got %f", event.DurationMs)
	}
	if event.TotalHits != 12 {
		t.Errorf("expected total hits 12, got %d", event.TotalHits)
	}
	if !event.IsRadius {
		t.Error("expected radius flag to be carried through")
	}
	if event.QueryHash != HashQuery("warehouses near dallas") {
		t.Errorf("unexpected query hash %q", event.QueryHash)
	}
	if event.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestSlowQueryDetector_NilAnalyticsWriter(t *testing.T) {
	sqd := NewSlowQueryDetector(200*time.Millisecond, 500*time.Millisecond, zap.NewNop(), nil)

	// Should not panic
	sqd.Intercept(context.Background(), "slow query", models.AnalyticsEvent{Mode: "traditional"}, time.Second)
}

func TestHashQuery(t *testing.T) {
	h1 := HashQuery("test query")
	h2 := HashQuery("test query")

	if h1 != h2 {
		t.Errorf("HashQuery not deterministic: %q != %q", h1, h2)
	}
	if len(h1) != 16 {
		t.Errorf("expected 16 char hex, got %d chars: %q", len(h1), h1)
	}
	if HashQuery("other") == h1 {
		t.Error("different inputs should produce different hashes")
	}
}

func TestHashUint64_Empty(t *testing.T) {
	if h := hashUint64(""); h != 0 {
		t.Errorf("expected 0 for empty string, got %d", h)
	}
}
