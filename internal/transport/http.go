// Package transport implements the two coupled HTTP endpoints that carry
// JSON-RPC 2.0 for an MCP session: a long-lived SSE stream the server
// writes to, and a POST endpoint the client writes to. It also provides
// a newline-delimited stdio transport for embedded clients.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/solomonsjoseph/reportalin-mcp/internal/auth"
	"github.com/solomonsjoseph/reportalin-mcp/internal/mcp"
	"github.com/solomonsjoseph/reportalin-mcp/internal/otel"
	"github.com/solomonsjoseph/reportalin-mcp/internal/session"
)

// DefaultKeepaliveInterval and DefaultRequestTimeout mirror spec.md
// §4.7/§5: a comment-line keepalive every 15s, and a 30s deadline on
// every inbound request.
const (
	DefaultKeepaliveInterval = 15 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	shutdownGrace            = 5 * time.Second
)

// Dispatcher is the C8 registry's dispatch entrypoint, called once per
// JSON-RPC request. It returns nil for a notification (no id, no
// response expected).
type Dispatcher interface {
	Dispatch(ctx context.Context, principal string, req *mcp.Request) *mcp.Response
}

// Server owns the session registry and drives both MCP HTTP endpoints.
type Server struct {
	Registry          *session.Registry
	Dispatcher        Dispatcher
	KeepaliveInterval time.Duration
	RequestTimeout    time.Duration

	mu           sync.Mutex
	shuttingDown bool
	shutdownCh   chan struct{}
	wg           sync.WaitGroup
}

func NewServer(registry *session.Registry, dispatcher Dispatcher) *Server {
	return &Server{
		Registry:          registry,
		Dispatcher:        dispatcher,
		KeepaliveInterval: DefaultKeepaliveInterval,
		RequestTimeout:    DefaultRequestTimeout,
		shutdownCh:        make(chan struct{}),
	}
}

// ServeSSE implements GET /mcp/sse: allocate a session, emit the
// `event: endpoint` frame, then forward every outbound message for this
// session as `event: message` frames until the client disconnects, the
// session idles out, or the server shuts down.
func (s *Server) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	principal := ""
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		principal = p.ID
	}
	sess := s.Registry.Create(principal)
	otel.GetGlobalMetrics().IncrementSessions(r.Context())
	defer func() {
		s.Registry.Destroy(sess.ID)
		otel.GetGlobalMetrics().DecrementSessions(context.Background())
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	endpoint := fmt.Sprintf("/mcp/messages?session_id=%s", sess.ID)
	writeSSEFrame(w, "endpoint", []byte(endpoint))
	flusher.Flush()

	keepalive := time.NewTicker(s.keepaliveInterval())
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			sess.SetState(session.StateClosing)
			return
		case <-s.shutdownCh:
			sess.SetState(session.StateClosing)
			writeSSEFrame(w, "close", []byte(`{}`))
			flusher.Flush()
			return
		case <-keepalive.C:
			sess.Touch()
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case msg, open := <-sess.Outbound:
			if !open {
				return
			}
			sess.Touch()
			writeSSEFrame(w, "message", msg)
			flusher.Flush()
		}
	}
}

// ServeMessages implements POST /mcp/messages?session_id=<id>: decode one
// JSON-RPC request, validate session state, dispatch, and enqueue the
// response on the session's outbound queue. An unknown session_id gets a
// 404; otherwise the HTTP response itself is a bare 202, per spec.md §4.7.
func (s *Server) ServeMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	sess := s.Registry.Lookup(sessionID)
	if sess == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	sess.Touch()

	body, err := decodeBody(r)
	if err != nil {
		sess.Send(mustMarshal(mcp.NewError(nil, mcp.CodeParseError, "invalid JSON-RPC request body", nil)))
		w.WriteHeader(http.StatusAccepted)
		return
	}

	var req mcp.Request
	if err := json.Unmarshal(body, &req); err != nil {
		sess.Send(mustMarshal(mcp.NewError(nil, mcp.CodeParseError, "invalid JSON-RPC request body", nil)))
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if resp := s.checkSessionState(sess, &req); resp != nil {
		sess.Send(mustMarshal(resp))
		w.WriteHeader(http.StatusAccepted)
		return
	}

	principal := sess.AuthenticatedPrincipal
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()

	resp := s.Dispatcher.Dispatch(ctx, principal, &req)
	if resp != nil {
		sess.Send(mustMarshal(resp))
	}
	if req.Method == "initialize" && (resp == nil || resp.Error == nil) {
		sess.SetState(session.StateInitialized)
	} else if sess.State() != session.StateOpening {
		sess.SetState(session.StateActive)
	}

	w.WriteHeader(http.StatusAccepted)
}

// checkSessionState enforces spec.md §4.7's "initialize must be the
// first JSON-RPC method" rule: any other method arriving while the
// session is still Opening gets a JSON-RPC protocol error instead of
// being dispatched.
func (s *Server) checkSessionState(sess *session.Session, req *mcp.Request) *mcp.Response {
	state := sess.State()
	if state == session.StateOpening && req.Method != "initialize" {
		return mcp.NewError(req.ID, mcp.CodeInvalidRequest, "session has not been initialized: call initialize first", nil)
	}
	if state == session.StateClosing || state == session.StateClosed {
		return mcp.NewError(req.ID, mcp.CodeInvalidRequest, "session is closing", nil)
	}
	return nil
}

// Shutdown stops accepting new work gracefully per spec.md §4.7: signal
// every active SSE stream to send a terminal close frame, wait up to
// shutdownGrace for in-flight handlers, then return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return nil
	}
	s.shuttingDown = true
	close(s.shutdownCh)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(shutdownGrace):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) keepaliveInterval() time.Duration {
	if s.KeepaliveInterval > 0 {
		return s.KeepaliveInterval
	}
	return DefaultKeepaliveInterval
}

func (s *Server) requestTimeout() time.Duration {
	if s.RequestTimeout > 0 {
		return s.RequestTimeout
	}
	return DefaultRequestTimeout
}

func decodeBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func mustMarshal(resp *mcp.Response) json.RawMessage {
	b, err := json.Marshal(resp)
	if err != nil {
		return json.RawMessage(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return b
}
