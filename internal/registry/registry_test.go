package registry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/solomonsjoseph/reportalin-mcp/internal/dataset"
	"github.com/solomonsjoseph/reportalin-mcp/internal/mcp"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store := dataset.NewStore(t.TempDir(), "test-dataset")
	if err := store.Load(); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	return New(store)
}

var echoSchema = json.RawMessage(`{"type":"object","required":["name"],"properties":{"name":{"type":"string","minLength":1}}}`)

func TestInitializeNegotiatesVersion(t *testing.T) {
	r := newTestRegistry(t)
	req := &mcp.Request{JSONRPC: "2.0", ID: float64(1), Method: "initialize", Params: json.RawMessage(`{"protocolVersion":"2024-11-05"}`)}
	resp := r.Dispatch(context.Background(), "", req)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	var result mcp.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("bad result: %v", err)
	}
	if result.ProtocolVersion != "2024-11-05" {
		t.Fatalf("expected negotiated version 2024-11-05, got %s", result.ProtocolVersion)
	}
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	r := newTestRegistry(t)
	req := &mcp.Request{JSONRPC: "2.0", ID: float64(1), Method: "bogus/method"}
	resp := r.Dispatch(context.Background(), "", req)
	if resp.Error == nil || resp.Error.Code != mcp.CodeMethodNotFound {
		t.Fatalf("expected -32601, got %+v", resp.Error)
	}
}

func TestNotificationsInitializedReturnsNoResponse(t *testing.T) {
	r := newTestRegistry(t)
	req := &mcp.Request{JSONRPC: "2.0", Method: "notifications/initialized"}
	resp := r.Dispatch(context.Background(), "", req)
	if resp != nil {
		t.Fatalf("expected no response for a notification, got %+v", resp)
	}
}

func TestToolsListReturnsRegisteredTools(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("echo", "echoes its name argument", echoSchema, func(snap *dataset.Snapshot, args json.RawMessage) (any, error) {
		return map[string]string{"ok": "yes"}, nil
	})

	req := &mcp.Request{JSONRPC: "2.0", ID: float64(1), Method: "tools/list"}
	resp := r.Dispatch(context.Background(), "", req)
	var result mcp.ToolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("bad result: %v", err)
	}
	if len(result.Tools) != 1 || result.Tools[0].Name != "echo" {
		t.Fatalf("expected one tool named echo, got %+v", result.Tools)
	}
}

func TestToolsCallValidatesArguments(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("echo", "echo", echoSchema, func(snap *dataset.Snapshot, args json.RawMessage) (any, error) {
		return map[string]string{"ok": "yes"}, nil
	})

	req := &mcp.Request{JSONRPC: "2.0", ID: float64(1), Method: "tools/call",
		Params: json.RawMessage(`{"name":"echo","arguments":{}}`)}
	resp := r.Dispatch(context.Background(), "", req)
	if resp.Error == nil || resp.Error.Code != mcp.CodeInvalidParams {
		t.Fatalf("expected -32602 for missing required field, got %+v", resp.Error)
	}
}

func TestToolsCallDispatchesToHandler(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("echo", "echo", echoSchema, func(snap *dataset.Snapshot, args json.RawMessage) (any, error) {
		var in struct {
			Name string `json:"name"`
		}
		json.Unmarshal(args, &in)
		return map[string]string{"greeting": "hello " + in.Name}, nil
	})

	req := &mcp.Request{JSONRPC: "2.0", ID: float64(1), Method: "tools/call",
		Params: json.RawMessage(`{"name":"echo","arguments":{"name":"world"}}`)}
	resp := r.Dispatch(context.Background(), "", req)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	var result mcp.ToolsCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("bad result: %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Text == "" {
		t.Fatalf("expected a text content block, got %+v", result.Content)
	}
}

func TestToolsCallUnknownToolIsInvalidParams(t *testing.T) {
	r := newTestRegistry(t)
	req := &mcp.Request{JSONRPC: "2.0", ID: float64(1), Method: "tools/call",
		Params: json.RawMessage(`{"name":"does-not-exist","arguments":{}}`)}
	resp := r.Dispatch(context.Background(), "", req)
	if resp.Error == nil || resp.Error.Code != mcp.CodeInvalidParams {
		t.Fatalf("expected -32602, got %+v", resp.Error)
	}
}

func TestToolsCallHandlerErrorBecomesIsErrorContent(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("fails", "always fails", json.RawMessage(`{"type":"object"}`), func(snap *dataset.Snapshot, args json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	})

	req := &mcp.Request{JSONRPC: "2.0", ID: float64(1), Method: "tools/call",
		Params: json.RawMessage(`{"name":"fails","arguments":{}}`)}
	resp := r.Dispatch(context.Background(), "", req)
	if resp.Error != nil {
		t.Fatalf("handler errors should surface as isError content, not JSON-RPC errors, got %+v", resp.Error)
	}
	var result mcp.ToolsCallResult
	json.Unmarshal(resp.Result, &result)
	if !result.IsError {
		t.Fatal("expected isError=true")
	}
}

func TestPingReturnsEmptyObject(t *testing.T) {
	r := newTestRegistry(t)
	req := &mcp.Request{JSONRPC: "2.0", ID: float64(1), Method: "ping"}
	resp := r.Dispatch(context.Background(), "", req)
	if resp.Error != nil || string(resp.Result) != "{}" {
		t.Fatalf("expected empty object result, got %+v / %s", resp.Error, resp.Result)
	}
}

func TestResourcesListAndRead(t *testing.T) {
	r := newTestRegistry(t)
	req := &mcp.Request{JSONRPC: "2.0", ID: float64(1), Method: "resources/list"}
	resp := r.Dispatch(context.Background(), "", req)
	var list mcp.ResourcesListResult
	if err := json.Unmarshal(resp.Result, &list); err != nil || len(list.Resources) == 0 {
		t.Fatalf("expected at least one resource, got %+v err=%v", list, err)
	}

	readReq := &mcp.Request{JSONRPC: "2.0", ID: float64(2), Method: "resources/read",
		Params: json.RawMessage(`{"uri":"reportalin://overview"}`)}
	readResp := r.Dispatch(context.Background(), "", readReq)
	if readResp.Error != nil {
		t.Fatalf("unexpected error: %v", readResp.Error)
	}
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("panics", "panics", json.RawMessage(`{"type":"object"}`), func(snap *dataset.Snapshot, args json.RawMessage) (any, error) {
		panic("boom")
	})

	req := &mcp.Request{JSONRPC: "2.0", ID: float64(1), Method: "tools/call",
		Params: json.RawMessage(`{"name":"panics","arguments":{}}`)}
	resp := r.Dispatch(context.Background(), "", req)
	if resp.Error == nil || resp.Error.Code != mcp.CodeInternalError {
		t.Fatalf("expected internal error after recovering from panic, got %+v", resp.Error)
	}
}
