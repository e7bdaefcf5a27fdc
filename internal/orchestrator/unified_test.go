package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/shubhsaxena/property-search/internal/models"
)

type fakeEmbedder struct {
	vec   []float32
	err   error
	texts []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	return f.vec, f.err
}

func TestDetectTarget(t *testing.T) {
	tests := []struct {
		query string
		want  models.SearchTarget
	}{
		{"show me everything", models.TargetAll},
		{"all leases", models.TargetAll},
		{"properties in Austin", models.TargetProperty},
		{"Property near Dallas", models.TargetProperty},
		{"leases expiring soon", models.TargetLease},
		{"insurance docs for Quarry Road", models.TargetDocument},
		{"signed documents", models.TargetDocument},
		{"warehouses in Dallas", models.TargetAll},
		{"small offices", models.TargetAll},
		{"", models.TargetAll},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := DetectTarget(tt.query); got != tt.want {
				t.Errorf("DetectTarget(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestUnifiedSearch_EmptyQuery(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.orch.UnifiedSearch(context.Background(), &models.UnifiedSearchRequest{Query: "   "})
	if !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestUnifiedSearch_AllListsEverything(t *testing.T) {
	env := newTestEnv(t, nil)
	env.props.listed = []models.PropertyRow{row("p1")}
	env.leases.rows = []models.LeaseRow{{LeaseID: "l1"}, {LeaseID: "l2"}}
	doc := "uploads/lease.pdf"
	env.docs.rows = []models.DocumentRow{{DocumentID: "d1", FileURL: &doc}}

	resp, err := env.orch.UnifiedSearch(context.Background(), &models.UnifiedSearchRequest{Query: "everything"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Meta.Target != models.TargetAll || resp.Meta.Query != "everything" {
		t.Errorf("unexpected meta %+v", resp.Meta)
	}
	if len(resp.Results.Properties) != 1 || len(resp.Results.Leases) != 2 || len(resp.Results.Documents) != 1 {
		t.Errorf("unexpected result counts %d/%d/%d",
			len(resp.Results.Properties), len(resp.Results.Leases), len(resp.Results.Documents))
	}
	if u := resp.Results.Documents[0].FileURL; u == nil || *u != "https://signed.example/uploads/lease.pdf?sig=1" {
		t.Errorf("expected signed document url, got %v", fmtStr(u))
	}
	if env.props.listedLimit != 0 {
		t.Errorf("expected the store's listing bound, got limit %d", env.props.listedLimit)
	}
}

func TestUnifiedSearch_AllFailsWhenAnyListingFails(t *testing.T) {
	env := newTestEnv(t, nil)
	env.docs.err = errors.New("relation does not exist")

	_, err := env.orch.UnifiedSearch(context.Background(), &models.UnifiedSearchRequest{Query: "anything"})
	if !errors.Is(err, ErrDownstreamSearch) {
		t.Fatalf("expected downstream error, got %v", err)
	}
}

func TestUnifiedSearch_PropertyRunsAssistedPipeline(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gen.resp = dallasJSON
	env.props.aiRows = []models.PropertyRow{row("w1")}

	resp, err := env.orch.UnifiedSearch(context.Background(), &models.UnifiedSearchRequest{
		Query: "properties near Dallas within 10 miles",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Meta.Target != models.TargetProperty {
		t.Fatalf("expected property target, got %s", resp.Meta.Target)
	}
	if resp.Meta.ExtractedParams == nil || resp.Meta.Geocoded == nil {
		t.Fatal("expected extracted params and geocoded location in meta")
	}
	assertFloatPtr(t, "geocoded lat", resp.Meta.Geocoded.Lat, floatPtr(32.7767))
	if len(resp.Results.Properties) != 1 || resp.Results.Leases == nil || resp.Results.Documents == nil {
		t.Errorf("unexpected results %+v", resp.Results)
	}
	if len(env.props.aiParams) != 1 {
		t.Errorf("expected one assisted call, got %d", len(env.props.aiParams))
	}
}

func TestUnifiedSearch_LeaseUsesEmbedding(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	env := newTestEnv(t, func(d *Deps) { d.Embedder = emb })
	env.leases.rows = []models.LeaseRow{{LeaseID: "l1"}}

	resp, err := env.orch.UnifiedSearch(context.Background(), &models.UnifiedSearchRequest{Query: "leases with Acme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emb.texts) != 1 || emb.texts[0] != "leases with Acme" {
		t.Errorf("expected the query to be embedded, got %v", emb.texts)
	}
	if len(env.leases.vectors) != 1 || len(env.leases.vectors[0]) != 3 {
		t.Errorf("expected one vector search, got %v", env.leases.vectors)
	}
	if len(resp.Results.Leases) != 1 || len(resp.Results.Properties) != 0 || resp.Results.Properties == nil {
		t.Errorf("unexpected results %+v", resp.Results)
	}
}

func TestUnifiedSearch_DocumentsSigned(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{1}}
	env := newTestEnv(t, func(d *Deps) { d.Embedder = emb })
	path := "uploads/insurance.pdf"
	env.docs.rows = []models.DocumentRow{{DocumentID: "d1", FileURL: &path}}

	resp, err := env.orch.UnifiedSearch(context.Background(), &models.UnifiedSearchRequest{Query: "insurance documents"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u := resp.Results.Documents[0].FileURL; u == nil || *u != "https://signed.example/uploads/insurance.pdf?sig=1" {
		t.Errorf("expected signed url, got %v", fmtStr(u))
	}
}

func TestUnifiedSearch_EmbeddingFailure(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("quota exceeded")}
	env := newTestEnv(t, func(d *Deps) { d.Embedder = emb })

	_, err := env.orch.UnifiedSearch(context.Background(), &models.UnifiedSearchRequest{Query: "leases with Acme"})
	if !errors.Is(err, ErrDownstreamSearch) {
		t.Fatalf("expected downstream error, got %v", err)
	}
}

func TestUnifiedSearch_NoEmbedder(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.orch.UnifiedSearch(context.Background(), &models.UnifiedSearchRequest{Query: "docs about roofs"})
	if !errors.Is(err, ErrDownstreamSearch) {
		t.Fatalf("expected downstream error, got %v", err)
	}
}
