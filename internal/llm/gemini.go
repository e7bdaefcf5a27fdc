package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shubhsaxena/property-search/internal/config"
	"github.com/shubhsaxena/property-search/internal/observability"
	"github.com/shubhsaxena/property-search/internal/resilience"
)

var ErrEmptyResponse = errors.New("gemini: empty response")

// Client talks to the Gemini REST API. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	cfg        config.GeminiConfig
	cb         *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewClient(cfg config.GeminiConfig, searchCfg config.SearchConfig, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{},
		cfg:        cfg,
		cb:         resilience.NewCircuitBreaker("gemini", searchCfg.CircuitBreaker, logger),
		limiter:    resilience.NewLimiter(cfg.RequestsPerSecond, cfg.Burst),
		logger:     logger,
	}
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type generationConfig struct {
	Temperature      *float32 `json:"temperature,omitempty"`
	ResponseMIMEType string   `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	Error *apiError `json:"error,omitempty"`
}

type embedRequest struct {
	Model   string  `json:"model"`
	Content content `json:"content"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Generate sends prompt as a single user turn and returns the concatenated
// text of the first candidate.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := observability.StartSpan(ctx, "llm.generate",
		attribute.String("llm.model", c.cfg.Model),
	)
	defer span.End()

	temperature := float32(0)
	req := generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{Temperature: &temperature},
	}

	var resp generateResponse
	err := c.call(ctx, "generate", c.cfg.Model+":generateContent", req, &resp)
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("gemini: API error [%d] %s: %s", resp.Error.Code, resp.Error.Status, resp.Error.Message)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini: no candidates: %w", ErrEmptyResponse)
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("gemini response received",
		zap.Int("response_len", sb.Len()),
		zap.String("finish_reason", resp.Candidates[0].FinishReason),
	)
	return sb.String(), nil
}

// Embed returns the embedding vector of text using the configured embedding model.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := observability.StartSpan(ctx, "llm.embed",
		attribute.String("llm.model", c.cfg.EmbeddingModel),
	)
	defer span.End()

	req := embedRequest{
		Model:   "models/" + c.cfg.EmbeddingModel,
		Content: content{Parts: []part{{Text: text}}},
	}

	var resp embedResponse
	if err := c.call(ctx, "embed", c.cfg.EmbeddingModel+":embedContent", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("gemini: API error [%d] %s: %s", resp.Error.Code, resp.Error.Status, resp.Error.Message)
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini: no embedding values: %w", ErrEmptyResponse)
	}
	return resp.Embedding.Values, nil
}

func (c *Client) call(ctx context.Context, operation, method string, reqBody, dst any) error {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	if err := resilience.Wait(ctx, c.limiter); err != nil {
		observability.LLMRequestDuration.WithLabelValues(operation, "rate_limited").Observe(0)
		return fmt.Errorf("gemini %s: rate limiter: %w", operation, err)
	}

	start := time.Now()
	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.do(ctx, method, reqBody, dst)
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	observability.LLMRequestDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())

	if err != nil {
		return fmt.Errorf("gemini %s: %w", operation, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method string, reqBody, dst any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("marshaling request: %w", err))
	}

	url := fmt.Sprintf("%s/models/%s", strings.TrimRight(c.cfg.BaseURL, "/"), method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return resilience.Permanent(fmt.Errorf("creating request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(respBody), 256))
		// Client errors other than throttling will not improve on retry and
		// should not count against the breaker.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return resilience.Permanent(err)
		}
		return err
	}

	if err := json.Unmarshal(respBody, dst); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
