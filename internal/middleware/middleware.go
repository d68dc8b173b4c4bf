// Package middleware implements the security chain spec.md §4.6 requires
// in front of every MCP endpoint: size cap, auth, rate limit, then
// dispatch, with security headers always injected on the way out.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/solomonsjoseph/reportalin-mcp/internal/auth"
	"github.com/solomonsjoseph/reportalin-mcp/internal/ratelimit"
)

const (
	DefaultMaxQueryBytes = 2 * 1024
	DefaultMaxBodyBytes  = 1 * 1024 * 1024
)

// Config configures the chain. PublicPaths bypass auth and rate limiting
// (health/readiness/metrics, per spec.md §4.6) but still get the size cap
// and security headers.
type Config struct {
	MaxQueryBytes int
	MaxBodyBytes  int
	PublicPaths   map[string]bool
	Authenticator auth.Authenticator
	Limiter       *ratelimit.Limiter
	// AuthEnabled is set from the server's auth mode (true for "token",
	// false for "none"): when false the auth step is
	// skipped entirely (stdio-equivalent trust boundary over HTTP, used
	// in dev).
	AuthEnabled bool
	// TLS indicates the chain is serving over TLS, so Strict-Transport-
	// Security should be injected per spec.md §4.6 step 5.
	TLS bool
}

func DefaultConfig() Config {
	return Config{
		MaxQueryBytes: DefaultMaxQueryBytes,
		MaxBodyBytes:  DefaultMaxBodyBytes,
		PublicPaths:   map[string]bool{"/health": true, "/ready": true, "/metrics": true},
		AuthEnabled:   true,
	}
}

// Chain wraps a handler with the ordered steps from spec.md §4.6.
type Chain struct {
	cfg Config
}

func New(cfg Config) *Chain {
	if cfg.MaxQueryBytes <= 0 {
		cfg.MaxQueryBytes = DefaultMaxQueryBytes
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.PublicPaths == nil {
		cfg.PublicPaths = map[string]bool{}
	}
	return &Chain{cfg: cfg}
}

// Wrap composes size-cap(auth(rate-limit(next))), then wraps the whole
// thing in the security-headers writer — the same nested-closure
// composition style the teacher's control-plane server used for its own
// rate-limit/RBAC wrapping, generalized to this chain's five steps.
func (c *Chain) Wrap(next http.Handler) http.Handler {
	h := next
	h = c.rateLimit(h)
	h = c.authenticate(h)
	h = c.sizeCap(h)
	h = c.securityHeaders(h)
	return h
}

func (c *Chain) isPublic(path string) bool {
	if c.cfg.PublicPaths[path] {
		return true
	}
	for p := range c.cfg.PublicPaths {
		if strings.HasPrefix(path, p) && (len(path) == len(p) || path[len(p)] == '/') {
			return true
		}
	}
	return false
}

func (c *Chain) sizeCap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.URL.RawQuery) > c.cfg.MaxQueryBytes {
			writeError(w, http.StatusRequestURITooLong, "input-too-large", "query string exceeds the configured size cap")
			return
		}
		if r.ContentLength > int64(c.cfg.MaxBodyBytes) {
			writeError(w, http.StatusRequestEntityTooLarge, "input-too-large", "request body exceeds the configured size cap")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, int64(c.cfg.MaxBodyBytes))
		next.ServeHTTP(w, r)
	})
}

func (c *Chain) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.cfg.AuthEnabled || c.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if c.cfg.Authenticator == nil {
			writeError(w, http.StatusInternalServerError, "server-misconfigured", "authentication is enabled but no authenticator is configured")
			return
		}
		principal, err := c.cfg.Authenticator.Authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		ctx := auth.WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (c *Chain) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.cfg.Limiter == nil || c.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		clientID := clientKey(r)
		result := c.cfg.Limiter.Allow(clientID)
		if !result.Allowed {
			w.Header().Set("Retry-After", result.RetryAfter.Round(0).String())
			writeRateLimited(w, result)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *Chain) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'")
		if c.cfg.TLS {
			h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey is the authenticated principal if auth ran, else the remote
// address, per spec.md §4.5's "client id = authenticated principal, else
// remote address" rule.
func clientKey(r *http.Request) string {
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		return p.ID
	}
	return r.RemoteAddr
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": code,
		"message": message,
	})
}

func writeRateLimited(w http.ResponseWriter, result ratelimit.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]any{
		"error":       "rate-limited",
		"message":     "too many requests",
		"retry_after": result.RetryAfter.Seconds(),
	})
}
