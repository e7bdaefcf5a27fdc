package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/models"
)

func TestRequestIDFromContext_Empty(t *testing.T) {
	ctx := context.Background()
	id := RequestIDFromContext(ctx)
	if id != "" {
		t.Errorf("expected empty string from empty context, got %q", id)
	}
}

func TestRequestIDFromContext_WithValue(t *testing.T) {
	ctx := context.WithValue(context.Background(), requestIDKey, "test-123")
	id := RequestIDFromContext(ctx)
	if id != "test-123" {
		t.Errorf("expected 'test-123', got %q", id)
	}
}

func TestRequestIDFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), requestIDKey, 12345)
	id := RequestIDFromContext(ctx)
	if id != "" {
		t.Errorf("expected empty string for wrong type, got %q", id)
	}
}

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	var capturedID string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if capturedID == "" {
		t.Error("expected generated request ID")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header in response")
	}
	if rr.Header().Get("X-Request-ID") != capturedID {
		t.Error("response header should match context ID")
	}
}

func TestRequestIDMiddleware_UsesExistingHeader(t *testing.T) {
	var capturedID string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "existing-id-123")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if capturedID != "existing-id-123" {
		t.Errorf("expected existing-id-123, got %q", capturedID)
	}
	if rr.Header().Get("X-Request-ID") != "existing-id-123" {
		t.Error("response should echo back the provided request ID")
	}
}

func TestResponseWriter_WriteHeader(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rr, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)
	if rw.statusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rw.statusCode)
	}
	if !rw.wroteHeader {
		t.Error("expected wroteHeader to be true")
	}
}

func TestResponseWriter_WriteHeaderOnlyOnce(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rr, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusOK) // should be ignored

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("second WriteHeader should be ignored, status should be 404, got %d", rw.statusCode)
	}
}

func TestResponseWriter_Unwrap(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rr}

	unwrapped := rw.Unwrap()
	if unwrapped != rr {
		t.Error("Unwrap should return the underlying ResponseWriter")
	}
}

func TestLoggingMiddleware(t *testing.T) {
	logger := zap.NewNop()
	middleware := LoggingMiddleware(logger)

	var handlerCalled bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	handler := middleware(inner)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if !handlerCalled {
		t.Error("expected inner handler to be called")
	}
}

func TestRecoveryMiddleware_NoPanic(t *testing.T) {
	logger := zap.NewNop()
	middleware := RecoveryMiddleware(logger)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := middleware(inner)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestRecoveryMiddleware_WithPanic(t *testing.T) {
	logger := zap.NewNop()
	middleware := RecoveryMiddleware(logger)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := middleware(inner)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 after panic, got %d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != "application/json" {
		t.Error("expected JSON content type in panic response")
	}
	body := rr.Body.String()
	if body == "" {
		t.Error("expected non-empty error body")
	}
}

func TestRateLimiter_AllowsRequests(t *testing.T) {
	logger := zap.NewNop()
	rl := NewRateLimiter(5, logger)

	var handlerCalled bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	})

	handler := rl.Middleware(inner)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if !handlerCalled {
		t.Error("expected handler to be called when under limit")
	}
}

func TestRateLimiter_RejectsWhenFull(t *testing.T) {
	rl := &RateLimiter{
		tokens: make(chan struct{}, 1), // capacity 1 but empty
		logger: zap.NewNop(),
	}
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"success":false`) {
		t.Errorf("expected error envelope, got %s", rr.Body.String())
	}
}

func TestRateLimiter_TokenReturnedAfterRequest(t *testing.T) {
	logger := zap.NewNop()
	rl := NewRateLimiter(1, logger)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := rl.Middleware(inner)

	// First request
	req1 := httptest.NewRequest(http.MethodGet, "/test1", nil)
	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, req1)

	if rr1.Code != http.StatusOK {
		t.Errorf("expected 200 for first request, got %d", rr1.Code)
	}

	// Second request should also succeed because token is returned
	req2 := httptest.NewRequest(http.MethodGet, "/test2", nil)
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req2)

	if rr2.Code != http.StatusOK {
		t.Errorf("expected 200 for second request (token returned), got %d", rr2.Code)
	}
}

func TestCORSMiddleware_SetsHeaders(t *testing.T) {
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS origin header")
	}
	if rr.Header().Get("Access-Control-Allow-Methods") != "GET, POST, OPTIONS" {
		t.Error("expected CORS methods header")
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Headers"), "X-User-Role") {
		t.Error("expected CORS headers header")
	}
	if rr.Header().Get("Access-Control-Max-Age") != "86400" {
		t.Error("expected CORS max-age header")
	}
}

func TestCORSMiddleware_OptionsRequest(t *testing.T) {
	var handlerCalled bool
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204 for OPTIONS, got %d", rr.Code)
	}
	if handlerCalled {
		t.Error("handler should not be called for OPTIONS preflight")
	}
}

func TestCORSMiddleware_NonOptionsPassesThrough(t *testing.T) {
	var handlerCalled bool
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut} {
		handlerCalled = false
		req := httptest.NewRequest(method, "/test", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if !handlerCalled {
			t.Errorf("handler should be called for %s", method)
		}
	}
}

func TestResponseWriter_ImplicitOKOnWrite(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rr, statusCode: http.StatusOK}

	if _, err := rw.Write([]byte("ok")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rw.WriteHeader(http.StatusTeapot)
	if rw.statusCode != http.StatusOK {
		t.Errorf("expected implicit 200 to stick, got %d", rw.statusCode)
	}
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		header string
		want   int
	}{
		{"no tokens configured", nil, "", http.StatusUnauthorized},
		{"no tokens configured with header", nil, "Bearer anything", http.StatusUnauthorized},
		{"valid token", []string{"secret"}, "Bearer secret", http.StatusOK},
		{"scheme is case-insensitive", []string{"secret"}, "bearer secret", http.StatusOK},
		{"second token", []string{"a", "b"}, "Bearer b", http.StatusOK},
		{"missing header", []string{"secret"}, "", http.StatusUnauthorized},
		{"wrong token", []string{"secret"}, "Bearer nope", http.StatusUnauthorized},
		{"basic scheme", []string{"secret"}, "Basic secret", http.StatusUnauthorized},
		{"empty bearer", []string{"secret"}, "Bearer ", http.StatusUnauthorized},
		{"blank configured tokens", []string{" "}, "", http.StatusUnauthorized},
		{"blank configured tokens with empty bearer", []string{""}, "Bearer ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AuthMiddleware(tt.tokens, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/v1/properties", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rr.Code)
			}
			if tt.want == http.StatusUnauthorized && rr.Body.String() != `{"success":false,"message":"Unauthorized"}` {
				t.Errorf("unexpected body %s", rr.Body.String())
			}
		})
	}
}

func TestCallerMiddleware(t *testing.T) {
	var got models.Caller
	handler := CallerMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CallerFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "u-1")
	req.Header.Set("X-User-Role", "Manager")
	req.Header.Set("X-Account-ID", "acc-9")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "curl/8.0")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	want := models.Caller{UserID: "u-1", Role: "Manager", AccountID: "acc-9", IPAddress: "203.0.113.7", UserAgent: "curl/8.0"}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestCallerMiddleware_Defaults(t *testing.T) {
	var got models.Caller
	handler := CallerMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CallerFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Del("User-Agent")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.IPAddress != "N/A" || got.UserAgent != "Unknown" {
		t.Errorf("expected defaults, got %+v", got)
	}
}

func TestCallerFromContext_Empty(t *testing.T) {
	if c := CallerFromContext(context.Background()); c != (models.Caller{}) {
		t.Errorf("expected zero caller, got %+v", c)
	}
}
