package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/solomonsjoseph/reportalin-mcp/internal/mcp"
	"github.com/solomonsjoseph/reportalin-mcp/internal/reactor"
)

func TestOpenAIBrainCompleteTextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"there are 42 claims"}}]}`))
	}))
	defer srv.Close()

	brain := newOpenAIBrain(srv.URL, "", "gpt-4o-mini")
	resp, err := brain.Complete(context.Background(), []reactor.Message{
		{Role: reactor.RoleSystem, Content: "be terse"},
		{Role: reactor.RoleUser, Content: "how many claims"},
	}, nil)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Text != "there are 42 claims" {
		t.Fatalf("got %q", resp.Text)
	}
	if len(resp.ToolCalls) != 0 {
		t.Fatalf("expected no tool calls, got %+v", resp.ToolCalls)
	}
}

func TestOpenAIBrainCompleteToolCallResponse(t *testing.T) {
	var captured chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","tool_calls":[{"id":"call_1","type":"function","function":{"name":"search_claims","arguments":"{\"diagnosis\":\"E11.9\"}"}}]}}]}`))
	}))
	defer srv.Close()

	brain := newOpenAIBrain(srv.URL, "secret", "gpt-4o-mini")
	tools := []mcp.Tool{{Name: "search_claims", Description: "search claims", InputSchema: json.RawMessage(`{"type":"object"}`)}}

	resp, err := brain.Complete(context.Background(), []reactor.Message{
		{Role: reactor.RoleUser, Content: "claims with E11.9"},
	}, tools)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "search_claims" {
		t.Fatalf("unexpected tool calls: %+v", resp.ToolCalls)
	}
	if string(resp.ToolCalls[0].Arguments) != `{"diagnosis":"E11.9"}` {
		t.Fatalf("unexpected arguments: %s", resp.ToolCalls[0].Arguments)
	}

	if len(captured.Tools) != 1 || captured.Tools[0].Function.Name != "search_claims" {
		t.Fatalf("expected the request to carry the OpenAI-shaped tool list, got %+v", captured.Tools)
	}
}

func TestOpenAIBrainCompleteEndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	brain := newOpenAIBrain(srv.URL, "", "gpt-4o-mini")
	_, err := brain.Complete(context.Background(), nil, nil)
	if err == nil {
		t.Fatal("expected an error for an endpoint-reported failure")
	}
}

func TestToChatMessagesRoundTripsToolCalls(t *testing.T) {
	messages := []reactor.Message{
		{Role: reactor.RoleAssistant, Content: "", ToolCalls: []reactor.ToolCall{
			{ID: "call_1", Name: "search_claims", Arguments: json.RawMessage(`{"diagnosis":"E11.9"}`)},
		}},
		{Role: reactor.RoleTool, Content: "42 records", ToolCallID: "call_1", ToolName: "search_claims"},
	}

	out := toChatMessages(messages)
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if out[0].ToolCalls[0].Function.Arguments != `{"diagnosis":"E11.9"}` {
		t.Fatalf("unexpected arguments: %+v", out[0].ToolCalls[0])
	}
	if out[1].ToolCallID != "call_1" || out[1].Name != "search_claims" {
		t.Fatalf("unexpected tool message: %+v", out[1])
	}
}
