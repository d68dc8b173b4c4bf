// Command server runs the reportalin MCP server: it loads the dictionary
// and dataset snapshots from disk and exposes the four clinical-data
// aggregate tools over either a stdio or SSE+POST JSON-RPC transport, per
// spec.md §6's CLI surface.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/solomonsjoseph/reportalin-mcp/internal/aggregate"
	"github.com/solomonsjoseph/reportalin-mcp/internal/auth"
	"github.com/solomonsjoseph/reportalin-mcp/internal/dataset"
	"github.com/solomonsjoseph/reportalin-mcp/internal/logging"
	"github.com/solomonsjoseph/reportalin-mcp/internal/middleware"
	"github.com/solomonsjoseph/reportalin-mcp/internal/otel"
	"github.com/solomonsjoseph/reportalin-mcp/internal/ratelimit"
	"github.com/solomonsjoseph/reportalin-mcp/internal/registry"
	"github.com/solomonsjoseph/reportalin-mcp/internal/session"
	"github.com/solomonsjoseph/reportalin-mcp/internal/tools"
	"github.com/solomonsjoseph/reportalin-mcp/internal/transport"
)

const (
	name    = "reportalin-mcp"
	version = "2.1.0"

	exitOK           = 0
	exitStartupFail  = 1
	exitConfigError  = 2
	exitUnrecoverIO  = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: configuration error: %v\n", name, err)
		return exitConfigError
	}

	if cfg.printVersion {
		fmt.Fprintf(os.Stderr, "%s v%s\n", name, version)
		return exitOK
	}

	setUpLogging(cfg.logLevel)

	if cfg.environment != "local" && cfg.transport == "sse" {
		if !isLoopback(cfg.host) {
			slog.Warn("binding to a non-local address outside a local environment", "host", cfg.host)
		}
	}

	aggregate.MinKAnonymity = cfg.minKAnonymity

	store := dataset.NewStore(cfg.dataRoot, cfg.datasetName)
	if err := store.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: failed to load dataset snapshot: %v\n", name, err)
		return exitUnrecoverIO
	}
	slog.Info("dataset snapshot loaded", "data_root", cfg.dataRoot, "dataset", cfg.datasetName)

	reg := registry.New(store)
	for _, t := range tools.Definitions() {
		reg.Register(t.Name, t.Description, t.InputSchema, t.Handler)
	}

	tracer, err := otel.NewTracer(context.Background(), cfg.tracerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: failed to start tracer: %v\n", name, err)
		return exitStartupFail
	}
	defer tracer.Shutdown(context.Background())
	otel.SetGlobalTracer(tracer)

	metricsCollector, err := otel.NewMetrics(context.Background(), cfg.metricsConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: failed to start metrics: %v\n", name, err)
		return exitStartupFail
	}
	defer metricsCollector.Shutdown(context.Background())
	otel.SetGlobalMetrics(metricsCollector)

	if cfg.transport == "stdio" {
		return runStdio(reg)
	}
	return runSSE(cfg, store, reg, tracer)
}

func runStdio(reg *registry.Registry) int {
	// Per spec.md §4.7, stdio mode has no auth/rate-limit/security-header
	// middleware: the parent process is the trust boundary. Logs still go
	// to stderr via slog's default handler; stdout carries only protocol
	// frames.
	stdio := transport.NewStdioServer(reg, os.Stdin, os.Stdout)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := stdio.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("stdio transport exited with error", "error", err)
		return exitUnrecoverIO
	}
	return exitOK
}

func runSSE(cfg *config, store *dataset.Store, reg *registry.Registry, tracer *otel.Tracer) int {
	secret := auth.NewRotatableSecret(cfg.authToken, auth.DefaultGraceWindow)
	authenticator := auth.NewTokenAuthenticator(secret)

	limiter := ratelimit.New(cfg.rateLimitConfig())

	sessionRegistry := session.NewRegistry(session.DefaultIdleTimeout, func(s *session.Session) {
		slog.Info("session evicted on idle timeout", "session_id", s.ID)
	})
	mcpServer := transport.NewServer(sessionRegistry, reg)

	chain := middleware.New(middleware.Config{
		MaxQueryBytes: middleware.DefaultMaxQueryBytes,
		MaxBodyBytes:  middleware.DefaultMaxBodyBytes,
		PublicPaths:   map[string]bool{"/health": true, "/ready": true, "/metrics": true},
		Authenticator: authenticator,
		Limiter:       limiter,
		AuthEnabled:   cfg.authEnabled,
	})

	mux := http.NewServeMux()
	startedAt := time.Now()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"status":          "ok",
			"version":         version,
			"uptime_seconds":  int(time.Since(startedAt).Seconds()),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if store.Current() == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/mcp/sse", mcpServer.ServeSSE)
	mux.HandleFunc("/mcp/messages", mcpServer.ServeMessages)

	var handler http.Handler = mux
	handler = chain.Wrap(handler)
	handler = otel.Middleware(tracer)(handler)

	if cfg.reload {
		go watchForReload(store)
	}

	addr := fmt.Sprintf("%s:%d", cfg.host, cfg.port)
	httpServer := &http.Server{Addr: addr, Handler: handler}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("MCP server listening", "addr", addr, "transport", "sse")
		serveErr <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			if isAddrInUse(err) {
				fmt.Fprintf(os.Stderr, "%s: port in use: %v\n", name, err)
				return exitConfigError
			}
			fmt.Fprintf(os.Stderr, "%s: server error: %v\n", name, err)
			return exitStartupFail
		}
	case <-sigCh:
		slog.Info("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mcpServer.Shutdown(ctx); err != nil {
		slog.Warn("transport shutdown did not complete within grace period", "error", err)
	}
	sessionRegistry.Shutdown()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Warn("http server shutdown error", "error", err)
	}
	return exitOK
}

// watchForReload re-reads the dataset snapshot on a fixed interval when
// --reload is set. Per spec.md Design Notes open question 4, a reload is
// a silent pointer swap: in-flight requests keep observing the old
// snapshot, and no session is notified.
func watchForReload(store *dataset.Store) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if err := store.Reload(); err != nil {
			slog.Warn("dev reload failed, keeping previous snapshot", "error", err)
		}
	}
}

func writeJSON(w http.ResponseWriter, v map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	enc, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Write(enc)
}

func isLoopback(host string) bool {
	return host == "127.0.0.1" || host == "localhost" || host == "::1"
}

func isAddrInUse(err error) bool {
	return strings.Contains(err.Error(), "address already in use")
}

type config struct {
	transport     string
	host          string
	port          int
	reload        bool
	printVersion  bool
	dataRoot      string
	datasetName   string
	authMode      string
	authEnabled   bool
	authToken     string
	rateLimit     float64
	rateBurst     int
	environment   string
	logLevel      string
	minKAnonymity int
	otelExporter  string
	otelEndpoint  string
	otelInsecure  bool
	dev           bool
}

func loadConfig() (*config, error) {
	cfg := &config{
		transport:     envOr("REPORTALIN_MCP_TRANSPORT", "stdio"),
		host:          envOr("REPORTALIN_MCP_HOST", "127.0.0.1"),
		port:          envOrInt("REPORTALIN_MCP_PORT", 8000),
		dataRoot:      envOr("REPORTALIN_DATA_ROOT", "."),
		datasetName:   envOr("REPORTALIN_DATASET_NAME", "default"),
		authMode:      envOr("REPORTALIN_MCP_AUTH_MODE", "token"),
		authToken:     os.Getenv("REPORTALIN_MCP_AUTH_TOKEN"),
		rateLimit:     envOrFloat("REPORTALIN_RATE_LIMIT", ratelimit.DefaultRefillPerSecond),
		rateBurst:     envOrInt("REPORTALIN_RATE_BURST", ratelimit.DefaultCapacity),
		environment:   envOr("REPORTALIN_ENVIRONMENT", "local"),
		logLevel:      envOr("REPORTALIN_LOG_LEVEL", "info"),
		minKAnonymity: envOrInt("REPORTALIN_MIN_K_ANONYMITY", 5),
		otelExporter:  envOr("REPORTALIN_OTEL_EXPORTER", "none"),
		otelEndpoint:  os.Getenv("REPORTALIN_OTEL_ENDPOINT"),
		otelInsecure:  envOrBool("REPORTALIN_OTEL_INSECURE", false),
		dev:           envOrBool("REPORTALIN_DEV", false),
	}

	flag.StringVar(&cfg.transport, "transport", cfg.transport, "transport: stdio or sse")
	flag.StringVar(&cfg.host, "host", cfg.host, "bind host for the sse transport")
	flag.IntVar(&cfg.port, "port", cfg.port, "bind port for the sse transport (1024-65535)")
	flag.BoolVar(&cfg.reload, "reload", false, "dev-only: re-read snapshots on a fixed interval")
	flag.BoolVar(&cfg.printVersion, "version", false, "print version and exit")
	flag.StringVar(&cfg.authMode, "auth-mode", cfg.authMode, "authentication mode: none or token")
	flag.StringVar(&cfg.authToken, "auth-token", cfg.authToken, "bearer token required by token auth mode")
	flag.Float64Var(&cfg.rateLimit, "rate-limit", cfg.rateLimit, "sustained requests/sec per client")
	flag.IntVar(&cfg.rateBurst, "rate-burst", cfg.rateBurst, "token bucket burst capacity per client")
	flag.StringVar(&cfg.dataRoot, "data-root", cfg.dataRoot, "root directory containing the results/ tree")
	flag.StringVar(&cfg.datasetName, "dataset-name", cfg.datasetName, "deidentified dataset name under results/deidentified/")
	flag.BoolVar(&cfg.dev, "dev", cfg.dev, "dev-only: disable auth and bind to loopback regardless of other flags")
	flag.StringVar(&cfg.otelExporter, "otel-exporter", cfg.otelExporter, "trace/metrics exporter: none, stdout, otlp-grpc, otlp-http")
	flag.StringVar(&cfg.otelEndpoint, "otel-endpoint", cfg.otelEndpoint, "collector endpoint for otlp-grpc/otlp-http exporters")
	flag.Parse()

	if cfg.dev {
		cfg.authMode = "none"
		cfg.host = "127.0.0.1"
		cfg.environment = "local"
	}

	if cfg.transport != "stdio" && cfg.transport != "sse" {
		return nil, fmt.Errorf("--transport must be stdio or sse, got %q", cfg.transport)
	}
	if cfg.port < 1024 || cfg.port > 65535 {
		return nil, fmt.Errorf("--port must be in 1024..65535, got %d", cfg.port)
	}
	switch cfg.authMode {
	case "none":
		cfg.authEnabled = false
	case "token":
		cfg.authEnabled = true
	default:
		return nil, fmt.Errorf("--auth-mode must be none or token, got %q", cfg.authMode)
	}
	if cfg.rateLimit <= 0 {
		return nil, fmt.Errorf("--rate-limit must be positive, got %v", cfg.rateLimit)
	}
	if cfg.rateBurst <= 0 {
		return nil, fmt.Errorf("--rate-burst must be positive, got %d", cfg.rateBurst)
	}
	switch otel.ExporterType(cfg.otelExporter) {
	case otel.ExporterNone, otel.ExporterStdout, otel.ExporterOTLPGRPC, otel.ExporterOTLPHTTP:
	default:
		return nil, fmt.Errorf("REPORTALIN_OTEL_EXPORTER must be one of none, stdout, otlp-grpc, otlp-http, got %q", cfg.otelExporter)
	}
	if cfg.printVersion {
		return cfg, nil
	}
	if cfg.authEnabled && cfg.transport == "sse" {
		if err := auth.ValidateStartupSecret(cfg.authToken, cfg.environment); err != nil {
			return nil, err
		}
		if cfg.authToken == "" && cfg.environment != "local" {
			return nil, fmt.Errorf("REPORTALIN_MCP_AUTH_TOKEN is required when auth is enabled outside a local environment")
		}
	}
	return cfg, nil
}

func (c *config) rateLimitConfig() ratelimit.Config {
	rc := ratelimit.DefaultConfig()
	rc.RefillPerSecond = c.rateLimit
	rc.Capacity = c.rateBurst
	return rc
}

func (c *config) tracerConfig() *otel.Config {
	tc := otel.DefaultConfig()
	tc.ServiceName = name
	tc.ServiceVersion = version
	tc.ExporterType = otel.ExporterType(c.otelExporter)
	tc.Enabled = tc.ExporterType != otel.ExporterNone
	tc.OTLPEndpoint = c.otelEndpoint
	tc.OTLPInsecure = c.otelInsecure
	return tc
}

func (c *config) metricsConfig() *otel.MetricsConfig {
	mc := otel.DefaultMetricsConfig()
	mc.ServiceName = name
	mc.ServiceVersion = version
	mc.ExporterType = otel.ExporterType(c.otelExporter)
	mc.Enabled = mc.ExporterType != otel.ExporterNone
	mc.OTLPEndpoint = c.otelEndpoint
	mc.OTLPInsecure = c.otelInsecure
	return mc
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func setUpLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := logging.NewRedactingHandler(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(slog.New(handler))
}
