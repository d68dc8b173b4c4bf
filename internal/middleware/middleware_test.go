package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/solomonsjoseph/reportalin-mcp/internal/auth"
	"github.com/solomonsjoseph/reportalin-mcp/internal/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestPublicPathBypassesAuth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Authenticator = auth.NewTokenAuthenticator(auth.NewRotatableSecret("secret-value-long-enough-123456", time.Minute))
	chain := New(cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	chain.Wrap(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected public path to bypass auth, got %d", rec.Code)
	}
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Authenticator = auth.NewTokenAuthenticator(auth.NewRotatableSecret("secret-value-long-enough-123456", time.Minute))
	chain := New(cfg)

	req := httptest.NewRequest(http.MethodGet, "/mcp/sse", nil)
	rec := httptest.NewRecorder()
	chain.Wrap(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSecurityHeadersAlwaysSet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuthEnabled = false
	chain := New(cfg)

	req := httptest.NewRequest(http.MethodGet, "/mcp/sse", nil)
	rec := httptest.NewRecorder()
	chain.Wrap(okHandler()).ServeHTTP(rec, req)

	for _, header := range []string{"X-Content-Type-Options", "X-Frame-Options", "Referrer-Policy", "Content-Security-Policy"} {
		if rec.Header().Get(header) == "" {
			t.Fatalf("expected %s to be set", header)
		}
	}
}

func TestOversizedQueryRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuthEnabled = false
	cfg.MaxQueryBytes = 8
	chain := New(cfg)

	req := httptest.NewRequest(http.MethodGet, "/mcp/messages?session_id=way-too-long-to-fit", nil)
	rec := httptest.NewRecorder()
	chain.Wrap(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestURITooLong {
		t.Fatalf("expected 414, got %d", rec.Code)
	}
}

func TestRateLimitedAfterCapacityExhausted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuthEnabled = false
	cfg.Limiter = ratelimit.New(ratelimit.Config{Capacity: 1, RefillPerSecond: 1})
	chain := New(cfg)
	handler := chain.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/mcp/messages", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec1.Code)
	}

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", rec2.Code)
	}
}
