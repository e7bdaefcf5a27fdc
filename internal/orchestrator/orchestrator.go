package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/cache"
	"github.com/shubhsaxena/property-search/internal/config"
	"github.com/shubhsaxena/property-search/internal/models"
	"github.com/shubhsaxena/property-search/internal/observability"
)

const (
	propertyAuditTable = "vw_property_with_image"
	leaseAuditTable    = "view_lease_property_with_user"

	asyncWriteTimeout = 2 * time.Second
)

// PropertyStore is the system of record for properties.
type PropertyStore interface {
	SearchPropertiesAI(ctx context.Context, params models.DispatchParameters) ([]models.PropertyRow, error)
	SearchProperties(ctx context.Context, q *models.TraditionalQuery) ([]models.PropertyRow, int64, error)
	ListProperties(ctx context.Context, limit int) ([]models.PropertyRow, error)
}

// KeywordIndex serves traditional searches ahead of the property store.
type KeywordIndex interface {
	SearchProperties(ctx context.Context, q *models.TraditionalQuery) ([]models.PropertyRow, int64, error)
}

// ResultCache remembers traditional responses, with a longer-lived stale
// copy used when every backend fails.
type ResultCache interface {
	GetTraditionalResults(ctx context.Context, q *models.TraditionalQuery) (*models.PropertySearchResponse, error)
	SetTraditionalResults(ctx context.Context, q *models.TraditionalQuery, resp *models.PropertySearchResponse) error
	GetStaleResults(ctx context.Context, q *models.TraditionalQuery) (*models.PropertySearchResponse, error)
}

type AuditRecorder interface {
	RecordAudit(ctx context.Context, event *models.AuditEvent) error
}

// Deps are the collaborators of an Orchestrator. Properties, Leases and
// Documents are required; everything else may be left nil.
type Deps struct {
	Generator Generator
	Embedder  Embedder
	Geocoder  Geocoder
	GeoCache  cache.GeoCache
	Signer    URLSigner

	Properties PropertyStore
	Leases     LeaseStore
	Documents  DocumentStore
	Index      KeywordIndex
	Results    ResultCache

	Audit     AuditRecorder
	Analytics observability.AnalyticsWriter
	SlowQuery *observability.SlowQueryDetector
}

type Orchestrator struct {
	classifier *IntentClassifier
	extractor  *ParameterExtractor
	resolver   *LocationResolver
	post       *PostProcessor

	properties PropertyStore
	leases     LeaseStore
	documents  DocumentStore
	index      KeywordIndex
	results    ResultCache
	embedder   Embedder

	audit     AuditRecorder
	analytics observability.AnalyticsWriter
	slowQuery *observability.SlowQueryDetector

	cfg    config.SearchConfig
	now    func() time.Time
	wg     sync.WaitGroup
	logger *zap.Logger
}

func New(deps Deps, cfg config.SearchConfig, geoTTL time.Duration, logger *zap.Logger) *Orchestrator {
	geoCache := deps.GeoCache
	if geoCache == nil {
		geoCache = cache.NewMemoryGeoCache(nil)
	}
	return &Orchestrator{
		classifier: NewIntentClassifier(),
		extractor:  NewParameterExtractor(deps.Generator, cfg.ExtractionFallback, logger),
		resolver:   NewLocationResolver(deps.Geocoder, geoCache, geoTTL, logger),
		post:       NewPostProcessor(deps.Signer, cfg.SigningConcurrency, logger),
		properties: deps.Properties,
		leases:     deps.Leases,
		documents:  deps.Documents,
		index:      deps.Index,
		results:    deps.Results,
		embedder:   deps.Embedder,
		audit:      deps.Audit,
		analytics:  deps.Analytics,
		slowQuery:  deps.SlowQuery,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger,
	}
}

// SearchProperties answers a property search. Free text that classifies as
// Assisted goes through extraction, resolution and the assisted procedure;
// everything else is a traditional substring search.
func (o *Orchestrator) SearchProperties(ctx context.Context, q *models.SearchQuery) (*models.PropertySearchResponse, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "orchestrator.search_properties")
	defer span.End()

	page, limit := o.window(q.Page, q.Limit, o.cfg.DefaultPageSize)
	field, order := models.NormalizeSort(q.SortField, q.SortOrder, models.PropertySortFields, models.DefaultPropertySort)

	text := strings.TrimSpace(q.Query)
	intent := models.IntentTraditional
	if text != "" {
		intent = o.classifier.Classify(text)
	}
	mode := intent.String()
	span.SetAttributes(attribute.String("intent", mode))
	o.logger.Debug("query classified",
		zap.String("query_hash", observability.HashQuery(text)),
		zap.String("intent", mode),
	)

	var (
		resp  *models.PropertySearchResponse
		event models.AnalyticsEvent
		err   error
	)
	searchText := text
	if intent == models.IntentAssisted {
		resp, event, err = o.assistedSearch(ctx, q, text, field, order, page, limit)
	} else {
		if term := strings.TrimSpace(q.Search); term != "" {
			searchText = term
		}
		resp, event, err = o.traditionalSearch(ctx, &models.TraditionalQuery{
			Term:      searchText,
			SortField: field,
			SortOrder: order,
			Offset:    (page - 1) * limit,
			Limit:     limit,
			Filters:   q.Filters,
		})
	}

	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		observability.SearchRequestsTotal.WithLabelValues(mode, "error").Inc()
		observability.SearchRequestDuration.WithLabelValues(mode, "error").Observe(duration.Seconds())
		return nil, err
	}

	resp.Page = page
	resp.Limit = limit

	observability.SearchRequestsTotal.WithLabelValues(mode, "success").Inc()
	observability.SearchRequestDuration.WithLabelValues(mode, "success").Observe(duration.Seconds())

	description := "Viewed property list"
	if intent == models.IntentAssisted {
		description = `AI property search: "` + text + `"`
	}
	o.recordAudit(q.Caller, propertyAuditTable, description)

	event.Mode = mode
	event.Intent = mode
	event.TotalHits = resp.Total
	o.recordAnalytics(ctx, searchText, event, duration)

	return resp, nil
}

func (o *Orchestrator) assistedSearch(ctx context.Context, q *models.SearchQuery, text, field, order string, page, limit int) (*models.PropertySearchResponse, models.AnalyticsEvent, error) {
	filters := o.extractor.Extract(ctx, text)
	applyExplicitFilters(&filters, q.Filters)

	resolved, err := o.resolver.Resolve(ctx, filters)
	if err != nil {
		return nil, models.AnalyticsEvent{}, err
	}

	dispatch := BuildDispatchParameters(resolved)
	event := models.AnalyticsEvent{
		IsRadius:    dispatch.Flags.IsRadius,
		HasAdmin:    dispatch.Flags.HasAdmin,
		HasAddress:  dispatch.Flags.HasAddress,
		HasSemantic: dispatch.Flags.HasSemantic,
		Rejected:    dispatch.Flags.Rejected(),
		Source:      "postgres",
	}

	resp := &models.PropertySearchResponse{
		Success:         true,
		Mode:            models.IntentAssisted.String(),
		Data:            []models.PropertyRow{},
		ExtractedParams: &resolved,
		Source:          "postgres",
	}
	if dispatch.Flags.Rejected() {
		o.logger.Info("assisted search rejected, no usable constraint",
			zap.String("query_hash", observability.HashQuery(text)),
		)
		event.Source = "none"
		resp.Source = "none"
		return resp, event, nil
	}

	rows, err := o.searchAssisted(ctx, dispatch.Params)
	if err != nil {
		return nil, event, downstreamError("assisted search", err)
	}

	resp.Total = int64(len(rows))
	resp.Data = o.post.Process(ctx, rows, field, order, page, limit)
	return resp, event, nil
}

func (o *Orchestrator) searchAssisted(ctx context.Context, params models.DispatchParameters) ([]models.PropertyRow, error) {
	defer observeStage("dispatch", time.Now())
	return o.properties.SearchPropertiesAI(ctx, params)
}

// applyExplicitFilters lets UI-chosen values win over extracted ones.
func applyExplicitFilters(f *models.ExtractedFilters, explicit models.ExplicitFilters) {
	if explicit.PropertyType != nil {
		f.PropertyType = explicit.PropertyType
	}
	if explicit.Status != nil {
		f.Status = explicit.Status
	}
	if explicit.MinPrice != nil {
		f.MinPrice = explicit.MinPrice
	}
	if explicit.MaxPrice != nil {
		f.MaxPrice = explicit.MaxPrice
	}
}

// traditionalSearch walks cache, keyword index, property store and the stale
// cache in that order. Responses are cached before signing so that cached
// copies never carry expiring URLs.
func (o *Orchestrator) traditionalSearch(ctx context.Context, tq *models.TraditionalQuery) (*models.PropertySearchResponse, models.AnalyticsEvent, error) {
	if o.results != nil {
		cached, err := o.results.GetTraditionalResults(ctx, tq)
		if err != nil {
			o.logger.Warn("cache lookup error", zap.Error(err))
		}
		if cached != nil {
			cached.CacheHit = true
			o.post.SignProperties(ctx, cached.Data)
			return cached, models.AnalyticsEvent{Source: "cache"}, nil
		}
	}

	rows, total, source, err := o.traditionalWithFallback(ctx, tq)
	if err == nil && len(rows) == 0 && tq.Term != "" {
		observability.FallbackCounter.WithLabelValues("unfiltered").Inc()
		broad := *tq
		broad.Term = ""
		rows, total, source, err = o.traditionalWithFallback(ctx, &broad)
	}
	if err != nil {
		if stale := o.staleResults(ctx, tq); stale != nil {
			o.logger.Warn("serving stale results", zap.Error(err))
			o.post.SignProperties(ctx, stale.Data)
			return stale, models.AnalyticsEvent{Source: stale.Source}, nil
		}
		return nil, models.AnalyticsEvent{}, downstreamError("traditional search", err)
	}

	if rows == nil {
		rows = []models.PropertyRow{}
	}
	resp := &models.PropertySearchResponse{
		Success: true,
		Mode:    models.IntentTraditional.String(),
		Data:    rows,
		Total:   total,
		Source:  source,
	}
	if o.results != nil {
		if err := o.results.SetTraditionalResults(ctx, tq, resp); err != nil {
			o.logger.Warn("cache set error", zap.Error(err))
		}
	}
	o.post.SignProperties(ctx, resp.Data)
	return resp, models.AnalyticsEvent{Source: source}, nil
}

func (o *Orchestrator) traditionalWithFallback(ctx context.Context, tq *models.TraditionalQuery) ([]models.PropertyRow, int64, string, error) {
	if o.index != nil {
		rows, total, err := o.index.SearchProperties(ctx, tq)
		if err == nil {
			return rows, total, "elasticsearch", nil
		}
		o.logger.Warn("keyword index failed, trying property store", zap.Error(err))
		observability.FallbackCounter.WithLabelValues("elasticsearch_failed").Inc()
	}

	rows, total, err := o.properties.SearchProperties(ctx, tq)
	if err != nil {
		return nil, 0, "", err
	}
	return rows, total, "postgres", nil
}

func (o *Orchestrator) staleResults(ctx context.Context, tq *models.TraditionalQuery) *models.PropertySearchResponse {
	if o.results == nil {
		return nil
	}
	stale, err := o.results.GetStaleResults(ctx, tq)
	if err != nil {
		o.logger.Warn("stale cache lookup error", zap.Error(err))
		return nil
	}
	if stale == nil {
		return nil
	}
	observability.FallbackCounter.WithLabelValues("stale_cache").Inc()
	stale.Stale = true
	stale.Source = "stale_cache"
	return stale
}

func (o *Orchestrator) window(page, size, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = def
	}
	if o.cfg.MaxPageSize > 0 && size > o.cfg.MaxPageSize {
		size = o.cfg.MaxPageSize
	}
	return page, size
}

func (o *Orchestrator) recordAudit(caller models.Caller, table, description string) {
	if o.audit == nil {
		return
	}
	event := &models.AuditEvent{
		UserID:      caller.UserID,
		Role:        caller.Role,
		AccountID:   caller.AccountID,
		ActionType:  "VIEW",
		TableName:   table,
		Description: description,
		IPAddress:   orDefault(caller.IPAddress, "N/A"),
		UserAgent:   orDefault(caller.UserAgent, "Unknown"),
		Timestamp:   o.now().UTC(),
	}
	o.async("audit", func(ctx context.Context) error {
		return o.audit.RecordAudit(ctx, event)
	})
}

func (o *Orchestrator) recordAnalytics(ctx context.Context, query string, event models.AnalyticsEvent, duration time.Duration) {
	event.EventType = "search"
	event.QueryHash = observability.HashQuery(query)
	event.DurationMs = float64(duration.Milliseconds())
	event.TraceID = observability.TraceIDFromContext(ctx)
	event.Timestamp = o.now().UTC()

	if o.slowQuery != nil {
		o.slowQuery.Intercept(ctx, query, event, duration)
	}
	if o.analytics == nil {
		return
	}
	o.async("analytics", func(ctx context.Context) error {
		return o.analytics.WriteSearchEvent(ctx, &event)
	})
}

// async runs fn off the request path with its own deadline. Close waits for
// every write started this way.
func (o *Orchestrator) async(sink string, fn func(ctx context.Context) error) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			o.logger.Warn("async write failed", zap.String("sink", sink), zap.Error(err))
		}
	}()
}

func (o *Orchestrator) Close() {
	o.wg.Wait()
}

func observeStage(stage string, start time.Time) {
	observability.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
