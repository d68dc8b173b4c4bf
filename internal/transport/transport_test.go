package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/solomonsjoseph/reportalin-mcp/internal/mcp"
	"github.com/solomonsjoseph/reportalin-mcp/internal/session"
)

type echoDispatcher struct {
	calls int
}

func (d *echoDispatcher) Dispatch(ctx context.Context, principal string, req *mcp.Request) *mcp.Response {
	d.calls++
	if req.Method == "notify/only" {
		return nil
	}
	return mcp.NewResult(req.ID, json.RawMessage(`{"ok":true}`))
}

func TestServeSSEEmitsEndpointFrame(t *testing.T) {
	registry := session.NewRegistry(time.Minute, nil)
	defer registry.Shutdown()
	srv := NewServer(registry, &echoDispatcher{})
	srv.KeepaliveInterval = time.Hour

	ts := httptest.NewServer(http.HandlerFunc(srv.ServeSSE))
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for i := 0; i < 3; i++ {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		lines = append(lines, line)
	}
	joined := strings.Join(lines, "")
	if !strings.Contains(joined, "event: endpoint") {
		t.Fatalf("expected endpoint event, got %q", joined)
	}
	if !strings.Contains(joined, "data: /mcp/messages?session_id=") {
		t.Fatalf("expected endpoint data with session_id, got %q", joined)
	}
}

func TestServeMessagesRejectsUnknownSession(t *testing.T) {
	registry := session.NewRegistry(time.Minute, nil)
	defer registry.Shutdown()
	srv := NewServer(registry, &echoDispatcher{})

	req := httptest.NewRequest(http.MethodPost, "/mcp/messages?session_id=does-not-exist", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	srv.ServeMessages(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestServeMessagesRejectsNonInitializeFromOpening(t *testing.T) {
	registry := session.NewRegistry(time.Minute, nil)
	defer registry.Shutdown()
	dispatcher := &echoDispatcher{}
	srv := NewServer(registry, dispatcher)

	sess := registry.Create("client-1")
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	req := httptest.NewRequest(http.MethodPost, "/mcp/messages?session_id="+sess.ID, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeMessages(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected bare 202, got %d", rec.Code)
	}
	if dispatcher.calls != 0 {
		t.Fatal("expected dispatcher not to be called before initialize")
	}

	select {
	case msg := <-sess.Outbound:
		var resp mcp.Response
		if err := json.Unmarshal(msg, &resp); err != nil {
			t.Fatalf("bad json enqueued: %v", err)
		}
		if resp.Error == nil || resp.Error.Code != mcp.CodeInvalidRequest {
			t.Fatalf("expected invalid-request error, got %+v", resp.Error)
		}
	default:
		t.Fatal("expected an error response to be enqueued")
	}
}

func TestServeMessagesDispatchesInitializeThenActivates(t *testing.T) {
	registry := session.NewRegistry(time.Minute, nil)
	defer registry.Shutdown()
	dispatcher := &echoDispatcher{}
	srv := NewServer(registry, dispatcher)

	sess := registry.Create("client-1")

	initBody := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	req := httptest.NewRequest(http.MethodPost, "/mcp/messages?session_id="+sess.ID, bytes.NewReader(initBody))
	rec := httptest.NewRecorder()
	srv.ServeMessages(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if sess.State() != session.StateInitialized {
		t.Fatalf("expected Initialized after initialize, got %s", sess.State())
	}

	toolsBody := []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	req2 := httptest.NewRequest(http.MethodPost, "/mcp/messages?session_id="+sess.ID, bytes.NewReader(toolsBody))
	rec2 := httptest.NewRecorder()
	srv.ServeMessages(rec2, req2)

	if sess.State() != session.StateActive {
		t.Fatalf("expected Active after a second request, got %s", sess.State())
	}
	if dispatcher.calls != 2 {
		t.Fatalf("expected 2 dispatch calls, got %d", dispatcher.calls)
	}
}

func TestStdioServerEchoesResponses(t *testing.T) {
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n" + `{"jsonrpc":"2.0","method":"notify/only"}` + "\n")
	var out bytes.Buffer
	srv := NewStdioServer(&echoDispatcher{}, in, &out)

	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly one response line (notification suppressed), got %d: %v", len(lines), lines)
	}
	var resp mcp.Response
	if err := json.Unmarshal([]byte(lines[0]), &resp); err != nil {
		t.Fatalf("bad response json: %v", err)
	}
	if resp.Result == nil {
		t.Fatal("expected a result payload for ping")
	}
}
