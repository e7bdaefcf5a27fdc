package orchestrator

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shubhsaxena/property-search/internal/models"
	"github.com/shubhsaxena/property-search/internal/observability"
)

// URLSigner mints time-limited links to stored objects.
type URLSigner interface {
	Sign(ctx context.Context, path string) (string, error)
}

// propertySortKeys maps sort keys to the row value they order by.
var propertySortKeys = map[string]func(*models.PropertyRow) sortValue{
	"property_created_at": func(r *models.PropertyRow) sortValue { return timeValue(r.CreatedAt) },
	"property_updated_at": func(r *models.PropertyRow) sortValue { return timeValue(r.UpdatedAt) },
	"price":               func(r *models.PropertyRow) sortValue { return floatValue(r.Price) },
	"cap_rate":            func(r *models.PropertyRow) sortValue { return floatValue(r.CapRate) },
	"name":                func(r *models.PropertyRow) sortValue { return stringValue(r.Name) },
}

type sortValue struct {
	null bool
	num  float64
	str  string
}

func floatValue(f *float64) sortValue {
	if f == nil {
		return sortValue{null: true}
	}
	return sortValue{num: *f}
}

func timeValue(t *time.Time) sortValue {
	if t == nil {
		return sortValue{null: true}
	}
	return sortValue{num: float64(t.UnixNano())}
}

func stringValue(s *string) sortValue {
	if s == nil {
		return sortValue{null: true}
	}
	return sortValue{str: strings.ToLower(*s)}
}

func (a sortValue) compare(b sortValue) int {
	switch {
	case a.num < b.num:
		return -1
	case a.num > b.num:
		return 1
	}
	return strings.Compare(a.str, b.str)
}

// PostProcessor orders, pages and signs rows returned by the assisted search
// procedure, which guarantees no order of its own.
type PostProcessor struct {
	signer      URLSigner
	concurrency int
	logger      *zap.Logger
}

func NewPostProcessor(signer URLSigner, concurrency int, logger *zap.Logger) *PostProcessor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &PostProcessor{signer: signer, concurrency: concurrency, logger: logger}
}

// Process sorts rows by field with nulls last in either direction, keeps the
// requested page and signs its resource paths.
func (p *PostProcessor) Process(ctx context.Context, rows []models.PropertyRow, field, order string, page, pageSize int) []models.PropertyRow {
	sorted := SortProperties(rows, field, order)
	paged := Paginate(sorted, page, pageSize)
	p.SignProperties(ctx, paged)
	return paged
}

// SortProperties returns a sorted copy of rows. Unknown fields sort by the
// default property sort.
func SortProperties(rows []models.PropertyRow, field, order string) []models.PropertyRow {
	field, order = models.NormalizeSort(field, order, models.PropertySortFields, models.DefaultPropertySort)
	key := propertySortKeys[field]
	desc := order == models.SortDesc

	out := make([]models.PropertyRow, len(rows))
	copy(out, rows)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := key(&out[i]), key(&out[j])
		if a.null || b.null {
			return !a.null && b.null
		}
		if desc {
			return a.compare(b) > 0
		}
		return a.compare(b) < 0
	})
	return out
}

// Paginate returns the 1-based page of rows. Pages past the end are empty.
func Paginate[T any](rows []T, page, pageSize int) []T {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return []T{}
	}
	start := (page - 1) * pageSize
	if start >= len(rows) {
		return []T{}
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

// SignProperties replaces each stored path with a signed URL in place and
// returns how many rows could not be signed. Those rows get a nil URL.
func (p *PostProcessor) SignProperties(ctx context.Context, rows []models.PropertyRow) int {
	refs := make([]**string, len(rows))
	for i := range rows {
		refs[i] = &rows[i].FileURL
	}
	return p.sign(ctx, refs)
}

func (p *PostProcessor) SignDocuments(ctx context.Context, rows []models.DocumentRow) int {
	refs := make([]**string, len(rows))
	for i := range rows {
		refs[i] = &rows[i].FileURL
	}
	return p.sign(ctx, refs)
}

func (p *PostProcessor) sign(ctx context.Context, refs []**string) int {
	defer observeStage("sign", time.Now())

	failures := make([]bool, len(refs))
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i, ref := range refs {
		if *ref == nil || strings.TrimSpace(**ref) == "" {
			*ref = nil
			continue
		}
		if p.signer == nil {
			*ref = nil
			failures[i] = true
			continue
		}
		path := **ref
		g.Go(func() error {
			url, err := p.signer.Sign(ctx, path)
			if err != nil {
				p.logger.Warn("signing resource url failed", zap.String("path", path), zap.Error(err))
				*ref = nil
				failures[i] = true
				return nil
			}
			*ref = &url
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, failed := range failures {
		if failed {
			n++
		}
	}
	observability.SigningFailures.Add(float64(n))
	return n
}
