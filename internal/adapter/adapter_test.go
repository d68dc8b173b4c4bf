package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/solomonsjoseph/reportalin-mcp/internal/mcp"
)

// fakeServer emulates this project's own /mcp/sse + /mcp/messages
// transport closely enough to exercise the Client against it: an
// "endpoint" event on connect, a bare 202 on every POST, and the real
// JSON-RPC response delivered asynchronously as a "message" event.
type fakeServer struct {
	mu      sync.Mutex
	flusher http.Flusher
	msgCh   chan string

	reject401 bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{msgCh: make(chan string, 8)}
}

func (f *fakeServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	if f.reject401 {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, ok := w.(http.Flusher)
	if !ok {
		return
	}

	fmt.Fprintf(w, "event: endpoint\ndata: /mcp/messages?session_id=test\n\n")
	flusher.Flush()

	for {
		select {
		case msg := <-f.msgCh:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (f *fakeServer) handleMessages(w http.ResponseWriter, r *http.Request) {
	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)

	go f.respond(req)
}

func (f *fakeServer) respond(req jsonRPCRequest) {
	var result json.RawMessage
	switch req.Method {
	case "initialize":
		result, _ = json.Marshal(mcp.InitializeResult{
			ProtocolVersion: mcp.DefaultProtocolVersion,
			ServerInfo:      mcp.ServerInfo{Name: mcp.ServerName, Version: mcp.ServerVersion},
		})
	case "tools/list":
		result, _ = json.Marshal(mcp.ToolsListResult{Tools: []mcp.Tool{
			{Name: "search_claims", Description: "search claims", InputSchema: json.RawMessage(`{"type":"object"}`)},
		}})
	case "tools/call":
		var params mcp.ToolsCallParams
		json.Unmarshal(req.Params, &params)
		if params.Name == "missing_tool" {
			resp := mcp.Response{JSONRPC: "2.0", ID: req.ID, Error: &mcp.Error{Code: mcp.CodeInvalidParams, Message: "unknown tool"}}
			b, _ := json.Marshal(resp)
			f.msgCh <- string(b)
			return
		}
		result, _ = json.Marshal(mcp.ToolsCallResult{Content: []mcp.ToolContent{{Type: "text", Text: "42 records"}}})
	case "resources/list":
		result, _ = json.Marshal(mcp.ResourcesListResult{Resources: []mcp.Resource{{URI: "dataset://schema", Name: "schema"}}})
	case "resources/read":
		result, _ = json.Marshal(mcp.ResourcesReadResult{Contents: []mcp.ResourceContent{{URI: "dataset://schema", MimeType: "application/json", Text: "{}"}}})
	}

	resp := mcp.Response{JSONRPC: "2.0", ID: req.ID, Result: result}
	b, _ := json.Marshal(resp)
	f.msgCh <- string(b)
}

func startFakeServer(t *testing.T, f *fakeServer) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp/sse", f.handleSSE)
	mux.HandleFunc("/mcp/messages", f.handleMessages)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func connectedClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := DefaultConfig(baseURL)
	cfg.RequestTimeout = 2 * time.Second
	cfg.StallTimeout = 2 * time.Second
	c := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientConnect(t *testing.T) {
	srv := startFakeServer(t, newFakeServer())
	connectedClient(t, srv.URL)
}

func TestClientListTools(t *testing.T) {
	srv := startFakeServer(t, newFakeServer())
	c := connectedClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tools, err := c.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "search_claims" {
		t.Fatalf("unexpected tools: %+v", tools)
	}
}

func TestClientExecuteTool(t *testing.T) {
	srv := startFakeServer(t, newFakeServer())
	c := connectedClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := c.ExecuteTool(ctx, "search_claims", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("ExecuteTool failed: %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "42 records" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestClientExecuteToolError(t *testing.T) {
	srv := startFakeServer(t, newFakeServer())
	c := connectedClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.ExecuteTool(ctx, "missing_tool", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected an error for an unknown tool")
	}
	var execErr *ToolExecutionFailed
	if !asToolExecutionFailed(err, &execErr) {
		t.Fatalf("expected *ToolExecutionFailed, got %T: %v", err, err)
	}
}

func asToolExecutionFailed(err error, target **ToolExecutionFailed) bool {
	if e, ok := err.(*ToolExecutionFailed); ok {
		*target = e
		return true
	}
	return false
}

func TestClientListResources(t *testing.T) {
	srv := startFakeServer(t, newFakeServer())
	c := connectedClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resources, err := c.ListResources(ctx)
	if err != nil {
		t.Fatalf("ListResources failed: %v", err)
	}
	if len(resources) != 1 || resources[0].URI != "dataset://schema" {
		t.Fatalf("unexpected resources: %+v", resources)
	}
}

func TestClientReadResource(t *testing.T) {
	srv := startFakeServer(t, newFakeServer())
	c := connectedClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	content, err := c.ReadResource(ctx, "dataset://schema")
	if err != nil {
		t.Fatalf("ReadResource failed: %v", err)
	}
	if content.URI != "dataset://schema" {
		t.Fatalf("unexpected content: %+v", content)
	}
}

func TestClientAuthenticationFailed(t *testing.T) {
	f := newFakeServer()
	f.reject401 = true
	srv := startFakeServer(t, f)

	cfg := DefaultConfig(srv.URL)
	cfg.RequestTimeout = 2 * time.Second
	c := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.Connect(ctx)
	c.Close()
	if err == nil {
		t.Fatal("expected Connect to fail against a 401 server")
	}
}

func TestBackoffDelayPositiveAndCapped(t *testing.T) {
	base := 100 * time.Millisecond
	max := 2 * time.Second

	prevUncapped := base
	for attempt := 0; attempt < 10; attempt++ {
		d := backoffDelay(base, max, attempt)
		if d <= 0 {
			t.Fatalf("attempt %d: non-positive delay %v", attempt, d)
		}
		if d > max {
			t.Fatalf("attempt %d: delay %v exceeds cap %v", attempt, d, max)
		}
		prevUncapped *= 2
	}
}

func TestToOpenAIToolsAndAnthropicTools(t *testing.T) {
	tools := []mcp.Tool{
		{Name: "search_claims", Description: "search claims", InputSchema: json.RawMessage(`{"type":"object"}`)},
	}

	openai := ToOpenAITools(tools)
	if len(openai) != 1 || openai[0].Function.Name != "search_claims" || openai[0].Type != "function" {
		t.Fatalf("unexpected OpenAI tools: %+v", openai)
	}

	anthropic := ToAnthropicTools(tools)
	if len(anthropic) != 1 || anthropic[0].Name != "search_claims" {
		t.Fatalf("unexpected Anthropic tools: %+v", anthropic)
	}
}

func TestFlattenToolContent(t *testing.T) {
	content := []mcp.ToolContent{
		{Type: "text", Text: "hello"},
		{Type: "image", Text: ""},
	}
	got := FlattenToolContent(content)
	want := "hello\n[non-text: image]"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
