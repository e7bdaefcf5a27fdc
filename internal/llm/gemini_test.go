package llm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/config"
	"github.com/shubhsaxena/property-search/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.Gemini.BaseURL = srv.URL
	cfg.Gemini.APIKey = "test-key"
	cfg.Gemini.Timeout = 500 * time.Millisecond
	cfg.Gemini.RequestsPerSecond = 0
	return NewClient(cfg.Gemini, cfg.Search, zap.NewNop())
}

func TestGenerate_Success(t *testing.T) {
	var gotPath, gotKey string
	var gotReq generateRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"city\":"},{"text":"\"Austin\"}"}]},"finishReason":"STOP"}]}`))
	})

	out, err := c.Generate(t.Context(), "properties in Austin")
	require.NoError(t, err)

	assert.Equal(t, `{"city":"Austin"}`, out)
	assert.Equal(t, "/models/gemini-2.5-flash:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
	require.Len(t, gotReq.Contents, 1)
	assert.Equal(t, "properties in Austin", gotReq.Contents[0].Parts[0].Text)
}

func TestGenerate_NoCandidates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	})

	_, err := c.Generate(t.Context(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenerate_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":403,"message":"key invalid","status":"PERMISSION_DENIED"}}`))
	})

	_, err := c.Generate(t.Context(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PERMISSION_DENIED")
}

func TestGenerate_ClientErrorIsPermanent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
	})

	_, err := c.Generate(t.Context(), "hello")
	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
}

func TestGenerate_ServerErrorIsRetryable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	_, err := c.Generate(t.Context(), "hello")
	require.Error(t, err)
	assert.False(t, resilience.IsPermanent(err))
	assert.Contains(t, err.Error(), "status 503")
}

func TestGenerate_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	start := time.Now()
	_, err := c.Generate(t.Context(), "hello")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEmbed_Success(t *testing.T) {
	var gotPath string
	var gotReq embedRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(`{"embedding":{"values":[0.1,0.2,0.3]}}`))
	})

	vec, err := c.Embed(t.Context(), "expiring leases")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "/models/text-embedding-004:embedContent", gotPath)
	assert.Equal(t, "models/text-embedding-004", gotReq.Model)
	assert.Equal(t, "expiring leases", gotReq.Content.Parts[0].Text)
}

func TestEmbed_EmptyValues(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding":{"values":[]}}`))
	})

	_, err := c.Embed(t.Context(), "x")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
