package orchestrator

import (
	"context"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shubhsaxena/property-search/internal/models"
	"github.com/shubhsaxena/property-search/internal/observability"
)

// Embedder turns text into the vector space of the lease and document
// embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type DocumentStore interface {
	ListDocuments(ctx context.Context, limit int) ([]models.DocumentRow, error)
	SearchDocumentVector(ctx context.Context, embedding []float32, limit int) ([]models.DocumentRow, error)
}

var targetWords = []struct {
	target models.SearchTarget
	words  []string
}{
	{models.TargetAll, []string{"all", "everything", "anything"}},
	{models.TargetProperty, []string{"property", "properties"}},
	{models.TargetLease, []string{"lease", "leases"}},
	{models.TargetDocument, []string{"document", "documents", "doc", "docs"}},
}

// DetectTarget picks the entity a unified query is about. Matching is on
// whole words so that place names like "Dallas" do not read as "all".
func DetectTarget(query string) models.SearchTarget {
	tokens := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		tokens[w] = true
	}
	for _, tw := range targetWords {
		for _, w := range tw.words {
			if tokens[w] {
				return tw.target
			}
		}
	}
	return models.TargetAll
}

// UnifiedSearch answers a single free-text query across properties, leases
// and documents.
func (o *Orchestrator) UnifiedSearch(ctx context.Context, req *models.UnifiedSearchRequest) (*models.UnifiedSearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	start := time.Now()
	target := DetectTarget(query)
	ctx, span := observability.StartSpan(ctx, "orchestrator.unified_search",
		attribute.String("target", string(target)),
	)
	defer span.End()

	resp := &models.UnifiedSearchResponse{
		Success: true,
		Meta:    models.UnifiedMeta{Query: query, Target: target},
	}

	var err error
	switch target {
	case models.TargetAll:
		err = o.listEverything(ctx, &resp.Results)
	case models.TargetProperty:
		err = o.unifiedProperties(ctx, query, resp)
	case models.TargetLease:
		err = o.unifiedLeases(ctx, query, &resp.Results)
	case models.TargetDocument:
		err = o.unifiedDocuments(ctx, query, &resp.Results)
	}

	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		observability.SearchRequestsTotal.WithLabelValues("unified", "error").Inc()
		observability.SearchRequestDuration.WithLabelValues("unified", "error").Observe(duration.Seconds())
		return nil, err
	}
	fillEmptyResults(&resp.Results)

	observability.SearchRequestsTotal.WithLabelValues("unified", "success").Inc()
	observability.SearchRequestDuration.WithLabelValues("unified", "success").Observe(duration.Seconds())

	hits := len(resp.Results.Properties) + len(resp.Results.Leases) + len(resp.Results.Documents)
	o.recordAnalytics(ctx, query, models.AnalyticsEvent{
		Mode:      "unified",
		Intent:    string(target),
		TotalHits: int64(hits),
		Source:    "postgres",
	}, duration)

	return resp, nil
}

func (o *Orchestrator) listEverything(ctx context.Context, results *models.UnifiedResults) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := o.properties.ListProperties(gctx, 0)
		if err != nil {
			return downstreamError("list properties", err)
		}
		o.post.SignProperties(gctx, rows)
		results.Properties = rows
		return nil
	})
	g.Go(func() error {
		rows, err := o.leases.ListAllLeases(gctx, 0)
		if err != nil {
			return downstreamError("list leases", err)
		}
		results.Leases = rows
		return nil
	})
	g.Go(func() error {
		rows, err := o.documents.ListDocuments(gctx, 0)
		if err != nil {
			return downstreamError("list documents", err)
		}
		o.post.SignDocuments(gctx, rows)
		results.Documents = rows
		return nil
	})
	return g.Wait()
}

func (o *Orchestrator) unifiedProperties(ctx context.Context, query string, resp *models.UnifiedSearchResponse) error {
	filters := o.extractor.Extract(ctx, query)
	resolved, err := o.resolver.Resolve(ctx, filters)
	if err != nil {
		return err
	}
	resp.Meta.ExtractedParams = &resolved
	loc := resolved.Location()
	resp.Meta.Geocoded = &loc

	dispatch := BuildDispatchParameters(resolved)
	if dispatch.Flags.Rejected() {
		o.logger.Info("unified property search rejected, no usable constraint",
			zap.String("query_hash", observability.HashQuery(query)),
		)
		return nil
	}

	rows, err := o.searchAssisted(ctx, dispatch.Params)
	if err != nil {
		return downstreamError("assisted search", err)
	}
	rows = SortProperties(rows, models.DefaultPropertySort, models.SortDesc)
	o.post.SignProperties(ctx, rows)
	resp.Results.Properties = rows
	return nil
}

func (o *Orchestrator) unifiedLeases(ctx context.Context, query string, results *models.UnifiedResults) error {
	embedding, err := o.embed(ctx, query)
	if err != nil {
		return err
	}
	rows, err := o.leases.SearchLeaseVector(ctx, embedding, 0)
	if err != nil {
		return downstreamError("lease vector search", err)
	}
	results.Leases = rows
	return nil
}

func (o *Orchestrator) unifiedDocuments(ctx context.Context, query string, results *models.UnifiedResults) error {
	embedding, err := o.embed(ctx, query)
	if err != nil {
		return err
	}
	rows, err := o.documents.SearchDocumentVector(ctx, embedding, 0)
	if err != nil {
		return downstreamError("document vector search", err)
	}
	o.post.SignDocuments(ctx, rows)
	results.Documents = rows
	return nil
}

func (o *Orchestrator) embed(ctx context.Context, text string) ([]float32, error) {
	defer observeStage("embed", time.Now())
	if o.embedder == nil {
		return nil, downstreamError("embed query", errNoGenerator)
	}
	embedding, err := o.embedder.Embed(ctx, text)
	if err != nil {
		return nil, downstreamError("embed query", err)
	}
	return embedding, nil
}

func fillEmptyResults(r *models.UnifiedResults) {
	if r.Properties == nil {
		r.Properties = []models.PropertyRow{}
	}
	if r.Leases == nil {
		r.Leases = []models.LeaseRow{}
	}
	if r.Documents == nil {
		r.Documents = []models.DocumentRow{}
	}
}
