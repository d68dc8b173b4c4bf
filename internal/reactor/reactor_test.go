package reactor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/solomonsjoseph/reportalin-mcp/internal/mcp"
)

type fakeTools struct {
	tools      []mcp.Tool
	executions int
	failNext   bool
}

func (f *fakeTools) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return f.tools, nil
}

func (f *fakeTools) ExecuteTool(ctx context.Context, name string, args json.RawMessage) (*mcp.ToolsCallResult, error) {
	f.executions++
	if f.failNext {
		f.failNext = false
		return nil, errors.New("tool exploded")
	}
	return &mcp.ToolsCallResult{Content: []mcp.ToolContent{{Type: "text", Text: "ok: " + name}}}, nil
}

// scriptedBrain returns one BrainResponse per call, in order, then
// repeats the last response forever (so a test that hits the budget
// ceiling doesn't panic on an index out of range).
type scriptedBrain struct {
	responses []BrainResponse
	calls     []struct {
		messages []Message
		tools    []mcp.Tool
	}
}

func (b *scriptedBrain) Complete(ctx context.Context, messages []Message, tools []mcp.Tool) (BrainResponse, error) {
	b.calls = append(b.calls, struct {
		messages []Message
		tools    []mcp.Tool
	}{messages, tools})

	idx := len(b.calls) - 1
	if idx >= len(b.responses) {
		idx = len(b.responses) - 1
	}
	return b.responses[idx], nil
}

func TestRunTerminatesOnPlainTextResponse(t *testing.T) {
	brain := &scriptedBrain{responses: []BrainResponse{{Text: "final answer"}}}
	tools := &fakeTools{}

	got, err := Run(context.Background(), brain, tools, "what is the claim count", "be terse", 3)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got != "final answer" {
		t.Fatalf("got %q, want %q", got, "final answer")
	}
	if len(brain.calls) != 1 {
		t.Fatalf("expected exactly one Complete call, got %d", len(brain.calls))
	}
}

func TestRunExecutesToolCallsThenTerminates(t *testing.T) {
	brain := &scriptedBrain{responses: []BrainResponse{
		{ToolCalls: []ToolCall{{ID: "call_1", Name: "search_claims", Arguments: json.RawMessage(`{}`)}}},
		{Text: "done"},
	}}
	tools := &fakeTools{}

	got, err := Run(context.Background(), brain, tools, "query", "system", 5)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got != "done" {
		t.Fatalf("got %q, want %q", got, "done")
	}
	if tools.executions != 1 {
		t.Fatalf("expected 1 tool execution, got %d", tools.executions)
	}

	// The second Complete call should see the tool's result appended
	// as a tool-role message.
	secondCallMessages := brain.calls[1].messages
	found := false
	for _, m := range secondCallMessages {
		if m.Role == RoleTool && m.Content == "ok: search_claims" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a tool-role message with the tool's result, got %+v", secondCallMessages)
	}
}

func TestRunForcesFinalAnswerWhenBudgetExhausted(t *testing.T) {
	loopingToolCall := BrainResponse{ToolCalls: []ToolCall{{ID: "c", Name: "search_claims"}}}
	brain := &scriptedBrain{responses: []BrainResponse{
		loopingToolCall,
		loopingToolCall,
		{Text: "forced final"},
	}}
	tools := &fakeTools{}

	got, err := Run(context.Background(), brain, tools, "query", "system", 2)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got != "forced final" {
		t.Fatalf("got %q, want %q", got, "forced final")
	}

	lastCall := brain.calls[len(brain.calls)-1]
	if len(lastCall.tools) != 0 {
		t.Fatalf("expected no tools offered once budget is exhausted, got %d", len(lastCall.tools))
	}

	foundNotice := false
	for _, m := range lastCall.messages {
		if m.Role == RoleSystem && m.Content == budgetExhaustedNotice {
			foundNotice = true
		}
	}
	if !foundNotice {
		t.Fatalf("expected a budget-exhausted system notice in %+v", lastCall.messages)
	}
}

func TestRunSurfacesToolExecutionFailureAsToolMessage(t *testing.T) {
	brain := &scriptedBrain{responses: []BrainResponse{
		{ToolCalls: []ToolCall{{ID: "c", Name: "search_claims"}}},
		{Text: "handled the failure"},
	}}
	tools := &fakeTools{failNext: true}

	got, err := Run(context.Background(), brain, tools, "query", "system", 5)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got != "handled the failure" {
		t.Fatalf("got %q, want %q", got, "handled the failure")
	}

	secondCallMessages := brain.calls[1].messages
	found := false
	for _, m := range secondCallMessages {
		if m.Role == RoleTool && m.Content == "tool exploded" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the tool error text in a tool-role message, got %+v", secondCallMessages)
	}
}

func TestRunPropagatesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	brain := &scriptedBrain{responses: []BrainResponse{
		{ToolCalls: []ToolCall{{ID: "c", Name: "search_claims"}}},
	}}
	tools := &fakeTools{}

	_, err := Run(ctx, brain, tools, "query", "system", 5)
	if err == nil {
		t.Fatal("expected Run to return an error for an already-cancelled context")
	}
}
