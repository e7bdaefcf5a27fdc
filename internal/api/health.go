package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type registeredCheck struct {
	checker  HealthChecker
	critical bool
}

// HealthHandler serves liveness and readiness. Only critical components fail
// readiness; the rest have a fallback and only mark the service degraded.
type HealthHandler struct {
	checks map[string]registeredCheck
	logger *zap.Logger
}

func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		checks: make(map[string]registeredCheck),
		logger: logger,
	}
}

// Register adds a component the service cannot serve without.
func (h *HealthHandler) Register(name string, checker HealthChecker) {
	h.checks[name] = registeredCheck{checker: checker, critical: true}
}

// RegisterOptional adds a component whose failure degrades but does not stop
// the service.
func (h *HealthHandler) RegisterOptional(name string, checker HealthChecker) {
	h.checks[name] = registeredCheck{checker: checker}
}

type componentHealth struct {
	Status   string `json:"status"`
	Critical bool   `json:"critical"`
	Latency  string `json:"latency,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results := make(map[string]componentHealth)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, rc := range h.checks {
		wg.Add(1)
		go func(n string, rc registeredCheck) {
			defer wg.Done()
			start := time.Now()
			err := rc.checker.HealthCheck(ctx)
			ch := componentHealth{
				Status:   "healthy",
				Critical: rc.critical,
				Latency:  time.Since(start).String(),
			}
			if err != nil {
				ch.Status = "unhealthy"
				ch.Error = err.Error()
			}
			mu.Lock()
			results[n] = ch
			mu.Unlock()
		}(name, rc)
	}

	wg.Wait()

	overallStatus := http.StatusOK
	overall := "healthy"
	for name, ch := range results {
		if ch.Status != "unhealthy" {
			continue
		}
		h.logger.Warn("readiness check failed", zap.String("component", name), zap.String("error", ch.Error))
		if ch.Critical {
			overallStatus = http.StatusServiceUnavailable
			overall = "unavailable"
			break
		}
		overall = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(overallStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     overall,
		"components": results,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
