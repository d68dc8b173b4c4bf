// Package adapter is a client for this server's own SSE+POST JSON-RPC
// transport: it opens the SSE stream, learns the per-session POST
// endpoint from the initial "endpoint" event, and correlates outbound
// requests with their asynchronous responses by JSON-RPC id. It exists
// so a driver (internal/reactor, cmd/agent) can talk to an MCP server —
// this one or another implementing the same wire contract — without
// re-deriving the session handshake each time.
package adapter

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	mathrand "math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/solomonsjoseph/reportalin-mcp/internal/mcp"
	"github.com/solomonsjoseph/reportalin-mcp/internal/otel"
)

// Config configures a Client's connection to one MCP server.
type Config struct {
	// BaseURL is the server's origin, e.g. "http://127.0.0.1:8000". The
	// SSE endpoint is BaseURL+"/mcp/sse"; the POST endpoint is learned
	// from the server's "endpoint" event and resolved against BaseURL.
	BaseURL string

	// AuthToken, if set, is sent as "Authorization: Bearer <token>" on
	// every request.
	AuthToken string

	// ClientName and ClientVersion identify this adapter in the
	// initialize handshake performed once per connection.
	ClientName    string
	ClientVersion string

	// RequestTimeout bounds how long ExecuteTool/ListTools/etc. wait for
	// a matching response after the request is accepted.
	RequestTimeout time.Duration

	// StallTimeout bounds how long the SSE read loop waits for the next
	// line before treating the connection as stalled and reconnecting.
	StallTimeout time.Duration

	// ReconnectBaseDelay and ReconnectMaxDelay bound the exponential
	// backoff between reconnect attempts. A reconnect always retries
	// indefinitely until the Client is closed or its context is
	// cancelled — there is no attempt cap, since a long-running agent
	// driver would rather keep retrying than give up on its only
	// connection to the tools it needs.
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	HTTPClient *http.Client
}

// DefaultConfig returns sane defaults for talking to a local server.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:            baseURL,
		RequestTimeout:     30 * time.Second,
		StallTimeout:       45 * time.Second,
		ReconnectBaseDelay: 500 * time.Millisecond,
		ReconnectMaxDelay:  30 * time.Second,
		HTTPClient:         &http.Client{Timeout: 0},
	}
}

// Client is a connected session against one MCP server. Zero value is
// not usable; construct with New.
type Client struct {
	cfg Config

	mu          sync.Mutex
	messagesURL string
	cancel      context.CancelFunc
	closed      bool
	connectedCh chan struct{} // closed once the first endpoint event arrives

	pendingMu sync.Mutex
	pending   map[string]chan *mcp.Response

	requestSeq atomic.Uint64
}

// New constructs a Client. Call Connect before issuing any request.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 0}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = 45 * time.Second
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = 500 * time.Millisecond
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 30 * time.Second
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "reportalin-mcp-adapter"
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "1.0.0"
	}
	return &Client{
		cfg:     cfg,
		pending: make(map[string]chan *mcp.Response),
	}
}

// Connect opens the SSE stream and blocks until the server's "endpoint"
// event arrives (or ctx is done). The stream is then kept alive by a
// background goroutine that reconnects on drop until Close is called.
func (c *Client) Connect(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.cancel = cancel
	c.connectedCh = make(chan struct{})
	c.mu.Unlock()

	go c.maintainStream(streamCtx)

	select {
	case <-c.connectedCh:
		return nil
	case <-ctx.Done():
		return &ConnectionFailed{Endpoint: c.sseURL(), Cause: ctx.Err()}
	case <-time.After(c.cfg.RequestTimeout):
		return &ConnectionFailed{Endpoint: c.sseURL(), Cause: fmt.Errorf("timed out waiting for endpoint event")}
	}
}

// Close tears down the SSE stream and fails every still-pending request.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	return nil
}

func (c *Client) sseURL() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/mcp/sse"
}

// maintainStream owns the connect-read-reconnect loop for the lifetime
// of the Client. It never returns except when streamCtx is cancelled by
// Close.
func (c *Client) maintainStream(streamCtx context.Context) {
	attempt := 0
	for {
		if streamCtx.Err() != nil {
			return
		}

		err := c.runOneStream(streamCtx)
		if streamCtx.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("adapter: SSE stream ended, reconnecting", "error", err, "attempt", attempt+1)
		}

		otel.GetGlobalMetrics().RecordReconnect(streamCtx)
		delay := backoffDelay(c.cfg.ReconnectBaseDelay, c.cfg.ReconnectMaxDelay, attempt)
		attempt++

		select {
		case <-streamCtx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// backoffDelay computes exponential backoff with +/-20% jitter, capped
// at maxDelay.
func backoffDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt && d < maxDelay; i++ {
		d *= 2
	}
	if d > maxDelay {
		d = maxDelay
	}
	jitter := float64(d) * (0.8 + 0.4*mathrand.Float64())
	if jitter > float64(maxDelay) {
		jitter = float64(maxDelay)
	}
	return time.Duration(jitter)
}

// runOneStream opens one SSE connection and reads from it until it
// ends, returning the terminal error (nil on a clean server-initiated
// close).
func (c *Client) runOneStream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sseURL(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.setAuthHeader(req)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return &ConnectionFailed{Endpoint: c.sseURL(), Cause: err}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return &AuthenticationFailed{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return &ConnectionFailed{Endpoint: c.sseURL(), Cause: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	defer resp.Body.Close()

	decoder := newSSEDecoder(resp.Body, c.cfg.StallTimeout)
	defer decoder.Close()

	for {
		event, err := decoder.ReadEvent()
		if err != nil {
			if err == errStreamStall {
				otel.GetGlobalMetrics().RecordStall(ctx)
			}
			return err
		}
		c.handleEvent(event)
	}
}

func (c *Client) handleEvent(event *sseEvent) {
	switch event.Event {
	case "endpoint":
		u, err := url.Parse(strings.TrimSpace(event.Data))
		if err != nil {
			slog.Error("adapter: malformed endpoint event", "data", event.Data, "error", err)
			return
		}
		base, err := url.Parse(c.cfg.BaseURL)
		if err != nil {
			slog.Error("adapter: malformed base URL", "base_url", c.cfg.BaseURL, "error", err)
			return
		}
		resolved := base.ResolveReference(u).String()

		c.mu.Lock()
		firstConnect := c.messagesURL == ""
		c.messagesURL = resolved
		c.mu.Unlock()

		if firstConnect {
			close(c.connectedCh)
		}
		go c.initialize()
	case "message":
		c.routeMessage([]byte(event.Data))
	case "close":
		// Server requested a clean shutdown of this stream; the
		// reconnect loop in maintainStream will open a new one.
	default:
		// Unrecognized event types (including keepalive comments,
		// which the decoder never surfaces as events) are ignored.
	}
}

func (c *Client) routeMessage(data []byte) {
	resp, err := decodeResponse(data)
	if err != nil {
		slog.Warn("adapter: dropping unparseable message frame", "error", err)
		return
	}
	if resp.ID == nil {
		// Server notification; this client has no subscriber model for
		// them yet, so they are logged and discarded.
		slog.Debug("adapter: received notification", "method", "unknown")
		return
	}

	id := fmt.Sprintf("%v", resp.ID)
	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if !ok {
		slog.Debug("adapter: response for unknown or expired request id", "id", id)
		return
	}
	ch <- resp
}

// initialize performs the JSON-RPC handshake required before a fresh
// or reconnected session will answer tools/list, tools/call, etc. It
// runs in its own goroutine, never on the SSE read loop, since it
// waits on the same reply channel the read loop feeds.
func (c *Client) initialize() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()

	params := mcp.InitializeParams{
		ProtocolVersion: mcp.DefaultProtocolVersion,
		Capabilities:    map[string]interface{}{},
		ClientInfo:      mcp.ClientInfo{Name: c.cfg.ClientName, Version: c.cfg.ClientVersion},
	}
	resp, err := c.call(ctx, "initialize", params)
	if err != nil {
		slog.Warn("adapter: initialize failed", "error", err)
		return
	}
	if resp.Error != nil {
		slog.Warn("adapter: initialize rejected", "error", resp.Error.Message)
	}
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
}

// call sends one JSON-RPC request over the current POST endpoint and
// waits for its response on the SSE stream.
func (c *Client) call(ctx context.Context, method string, params any) (*mcp.Response, error) {
	id := c.nextRequestID()

	payload, err := marshalRequest(id, method, params)
	if err != nil {
		return nil, &ProtocolError{Cause: err}
	}

	replyCh := make(chan *mcp.Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = replyCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.mu.Lock()
	messagesURL := c.messagesURL
	c.mu.Unlock()
	if messagesURL == "" {
		return nil, &ConnectionFailed{Endpoint: c.sseURL(), Cause: fmt.Errorf("not connected")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, messagesURL, strings.NewReader(string(payload)))
	if err != nil {
		return nil, &ProtocolError{Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeader(req)
	otel.InjectHeaders(ctx, req.Header, otel.GetGlobalTracer())

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, &ConnectionFailed{Endpoint: messagesURL, Cause: err}
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthenticationFailed{StatusCode: resp.StatusCode}
	}

	timeout := time.NewTimer(c.cfg.RequestTimeout)
	defer timeout.Stop()

	select {
	case out, open := <-replyCh:
		if !open {
			return nil, &ConnectionFailed{Endpoint: messagesURL, Cause: fmt.Errorf("connection closed while awaiting response")}
		}
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout.C:
		return nil, &ProtocolError{Cause: fmt.Errorf("timed out waiting for a response to %s", method)}
	}
}

func (c *Client) nextRequestID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("req_%d", c.requestSeq.Add(1))
	}
	return "req_" + hex.EncodeToString(buf[:])
}
