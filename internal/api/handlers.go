package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/clickhouse"
	"github.com/shubhsaxena/property-search/internal/models"
	"github.com/shubhsaxena/property-search/internal/orchestrator"
	"github.com/shubhsaxena/property-search/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1 MB

const (
	RoleAdmin   = "Admin"
	RoleManager = "Manager"
	RoleAgent   = "Agent"
)

type Searcher interface {
	SearchProperties(ctx context.Context, q *models.SearchQuery) (*models.PropertySearchResponse, error)
	SearchLeases(ctx context.Context, q *models.LeaseQuery) (*models.LeaseSearchResponse, error)
	UnifiedSearch(ctx context.Context, req *models.UnifiedSearchRequest) (*models.UnifiedSearchResponse, error)
}

type FileSigner interface {
	SignExisting(ctx context.Context, path string) (string, error)
}

type AuditReader interface {
	ListAudit(ctx context.Context, q models.AuditQuery) ([]models.AuditEvent, bool, error)
}

type StatsReader interface {
	SearchStats(ctx context.Context, since time.Time) ([]clickhouse.ModeStats, error)
}

type Reindexer interface {
	Run(ctx context.Context) (int, error)
}

// HandlerDeps wires the handler. Only Search is required; endpoints whose
// backend is missing answer 503.
type HandlerDeps struct {
	Search  Searcher
	Files   FileSigner
	Audit   AuditReader
	Stats   StatsReader
	Reindex Reindexer
}

type Handler struct {
	search   Searcher
	files    FileSigner
	audit    AuditReader
	stats    StatsReader
	reindex  Reindexer
	validate *validator.Validate
	now      func() time.Time
	logger   *zap.Logger
}

func NewHandler(deps HandlerDeps, logger *zap.Logger) *Handler {
	return &Handler{
		search:   deps.Search,
		files:    deps.Files,
		audit:    deps.Audit,
		stats:    deps.Stats,
		reindex:  deps.Reindex,
		validate: validator.New(),
		now:      time.Now,
		logger:   logger,
	}
}

type propertyParams struct {
	Search    string   `validate:"max=200"`
	Query     string   `validate:"max=500"`
	Page      int      `validate:"gte=0"`
	Limit     int      `validate:"gte=0"`
	SortField string   `validate:"max=64"`
	SortOrder string   `validate:"max=8"`
	Type      *string  `validate:"omitempty,max=64"`
	Status    *string  `validate:"omitempty,max=32"`
	MinPrice  *float64 `validate:"omitempty,gte=0"`
	MaxPrice  *float64 `validate:"omitempty,gte=0"`
}

type leaseParams struct {
	Search     string `validate:"max=500"`
	Page       int    `validate:"gte=0"`
	PageSize   int    `validate:"gte=0"`
	SortField  string `validate:"max=64"`
	SortOrder  string `validate:"max=8"`
	PropertyID string `validate:"max=64"`
	UserID     string `validate:"max=64"`
	Status     string `validate:"max=32"`
}

type auditParams struct {
	Page     int    `validate:"gte=1"`
	PageSize int    `validate:"gte=1,lte=100"`
	Action   string `validate:"max=32"`
	User     string `validate:"max=64"`
}

type statsParams struct {
	Hours int `validate:"gte=1,lte=720"`
}

type unifiedBody struct {
	Query string `json:"query" validate:"max=1000"`
}

func (h *Handler) SearchProperties(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v := r.URL.Query()

	p := propertyParams{
		Search:    strings.TrimSpace(v.Get("search")),
		Query:     strings.TrimSpace(v.Get("query")),
		Page:      intParam(v, "page", 1),
		Limit:     intParam(v, "limit", intParam(v, "pageSize", 0)),
		SortField: v.Get("sortField"),
		SortOrder: v.Get("sortOrder"),
		Type:      optionalString(v, "type"),
		Status:    optionalString(v, "status"),
		MinPrice:  optionalFloat(v, "minPrice"),
		MaxPrice:  optionalFloat(v, "maxPrice"),
	}
	if !h.valid(w, p) {
		return
	}

	resp, err := h.search.SearchProperties(ctx, &models.SearchQuery{
		Search:    p.Search,
		Query:     p.Query,
		Page:      p.Page,
		Limit:     p.Limit,
		SortField: p.SortField,
		SortOrder: p.SortOrder,
		Filters: models.ExplicitFilters{
			PropertyType: p.Type,
			Status:       p.Status,
			MinPrice:     p.MinPrice,
			MaxPrice:     p.MaxPrice,
		},
		RequestID: RequestIDFromContext(ctx),
		Caller:    CallerFromContext(ctx),
	})
	if err != nil {
		h.fail(w, r, "property search failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SearchLeases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v := r.URL.Query()

	p := leaseParams{
		Search:     strings.TrimSpace(v.Get("search")),
		Page:       intParam(v, "page", 1),
		PageSize:   intParam(v, "pageSize", 0),
		SortField:  v.Get("sortField"),
		SortOrder:  v.Get("sortOrder"),
		PropertyID: v.Get("propertyId"),
		UserID:     v.Get("userId"),
		Status:     v.Get("status"),
	}
	if !h.valid(w, p) {
		return
	}

	resp, err := h.search.SearchLeases(ctx, &models.LeaseQuery{
		Search:     p.Search,
		Page:       p.Page,
		PageSize:   p.PageSize,
		SortField:  p.SortField,
		SortOrder:  p.SortOrder,
		PropertyID: p.PropertyID,
		UserID:     p.UserID,
		Status:     p.Status,
		RequestID:  RequestIDFromContext(ctx),
		Caller:     CallerFromContext(ctx),
	})
	if err != nil {
		h.fail(w, r, "lease search failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) UnifiedSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body unifiedBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize)).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if !h.valid(w, body) {
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		h.writeError(w, http.StatusBadRequest, "missing_query", "Missing query")
		return
	}

	resp, err := h.search.UnifiedSearch(ctx, &models.UnifiedSearchRequest{
		Query:     body.Query,
		RequestID: RequestIDFromContext(ctx),
		Caller:    CallerFromContext(ctx),
	})
	if err != nil {
		h.fail(w, r, "unified search failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SignedURL(w http.ResponseWriter, r *http.Request) {
	if h.files == nil {
		h.writeError(w, http.StatusServiceUnavailable, "unavailable", "file storage is not configured")
		return
	}
	path := r.URL.Query().Get("path")
	if strings.TrimSpace(path) == "" {
		h.writeError(w, http.StatusBadRequest, "missing_path", "Missing file path")
		return
	}

	signed, err := h.files.SignExisting(r.Context(), path)
	switch {
	case errors.Is(err, storage.ErrInvalidPath):
		h.writeError(w, http.StatusBadRequest, "invalid_path", "Invalid file path")
	case errors.Is(err, storage.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "File not found")
	case err != nil:
		h.logger.Error("signing file url failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		h.writeError(w, http.StatusInternalServerError, "signing_error", "Could not sign file url")
	default:
		h.writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"url":     signed,
		})
	}
}

func (h *Handler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		h.writeError(w, http.StatusServiceUnavailable, "unavailable", "audit trail is not configured")
		return
	}
	v := r.URL.Query()
	p := auditParams{
		Page:     intParam(v, "page", 1),
		PageSize: intParam(v, "pageSize", 10),
		Action:   strings.TrimSpace(v.Get("action")),
		User:     strings.TrimSpace(v.Get("user")),
	}
	if !h.valid(w, p) {
		return
	}

	q, ok := scopeAudit(CallerFromContext(r.Context()), p)
	if !ok {
		h.writeError(w, http.StatusForbidden, "forbidden", "Forbidden")
		return
	}

	logs, hasMore, err := h.audit.ListAudit(r.Context(), q)
	if err != nil {
		h.logger.Error("listing audit trail failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "audit_error", "Could not load audit trail")
		return
	}
	if logs == nil {
		logs = []models.AuditEvent{}
	}
	h.writeJSON(w, http.StatusOK, models.AuditListResponse{
		Success:  true,
		Logs:     logs,
		Page:     p.Page,
		PageSize: p.PageSize,
		HasMore:  hasMore,
	})
}

// scopeAudit narrows an audit query to what the caller's role may see.
func scopeAudit(caller models.Caller, p auditParams) (models.AuditQuery, bool) {
	q := models.AuditQuery{Page: p.Page, PageSize: p.PageSize}
	if p.Action != "" && !strings.EqualFold(p.Action, "all") {
		q.ActionType = strings.ToUpper(p.Action)
	}
	user := p.User
	if strings.EqualFold(user, "all") {
		user = ""
	}

	switch caller.Role {
	case RoleAdmin:
		q.UserID = user
	case RoleManager:
		if caller.AccountID == "" {
			return q, false
		}
		q.AccountID = caller.AccountID
		q.UserID = user
	case RoleAgent:
		if caller.UserID == "" {
			return q, false
		}
		q.UserID = caller.UserID
	default:
		return q, false
	}
	return q, true
}

func (h *Handler) SearchStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		h.writeError(w, http.StatusServiceUnavailable, "unavailable", "search analytics are not configured")
		return
	}
	p := statsParams{Hours: intParam(r.URL.Query(), "hours", 24)}
	if !h.valid(w, p) {
		return
	}

	since := h.now().Add(-time.Duration(p.Hours) * time.Hour).UTC()
	stats, err := h.stats.SearchStats(r.Context(), since)
	if err != nil {
		h.logger.Error("loading search stats failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "stats_error", "Could not load search stats")
		return
	}
	if stats == nil {
		stats = []clickhouse.ModeStats{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"since":   since.Format(time.RFC3339),
		"stats":   stats,
	})
}

func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	if CallerFromContext(r.Context()).Role != RoleAdmin {
		h.writeError(w, http.StatusForbidden, "forbidden", "Forbidden")
		return
	}
	if h.reindex == nil {
		h.writeError(w, http.StatusServiceUnavailable, "unavailable", "change stream is not configured")
		return
	}

	published, err := h.reindex.Run(r.Context())
	if err != nil {
		h.logger.Error("reindex failed", zap.Int("published", published), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "reindex_error", "Reindex failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"published": published,
	})
}

func (h *Handler) valid(w http.ResponseWriter, v any) bool {
	if err := h.validate.Struct(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status, code, message := statusForError(err)
	log := h.logger.Warn
	if status >= http.StatusInternalServerError {
		log = h.logger.Error
	}
	log(msg,
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.Int("status", status),
		zap.Error(err),
	)
	h.writeError(w, status, code, message)
}

func statusForError(err error) (int, string, string) {
	var geoErr *orchestrator.GeocodingError
	var downErr *orchestrator.DownstreamError
	switch {
	case errors.Is(err, orchestrator.ErrEmptyQuery):
		return http.StatusBadRequest, "missing_query", "Missing query"
	case errors.As(err, &geoErr):
		return http.StatusUnprocessableEntity, "geocoding_failed", fmt.Sprintf("Could not resolve location %q", geoErr.Location)
	case errors.Is(err, orchestrator.ErrGeocodingFailed):
		return http.StatusUnprocessableEntity, "geocoding_failed", "Could not resolve location"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", "Search timed out"
	case errors.As(err, &downErr):
		return http.StatusInternalServerError, "search_error", downErr.Message()
	case errors.Is(err, orchestrator.ErrDownstreamSearch):
		return http.StatusInternalServerError, "search_error", err.Error()
	default:
		return http.StatusInternalServerError, "internal_error", "Internal Server Error"
	}
}

func intParam(v url.Values, key string, def int) int {
	raw := strings.TrimSpace(v.Get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func optionalString(v url.Values, key string) *string {
	s := strings.TrimSpace(v.Get(key))
	if s == "" || strings.EqualFold(s, "all") {
		return nil
	}
	return &s
}

func optionalFloat(v url.Values, key string) *float64 {
	raw := strings.TrimSpace(v.Get(key))
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("writing json response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]any{
		"success": false,
		"message": message,
		"code":    code,
	})
}
