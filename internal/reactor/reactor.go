// Package reactor drives a multi-turn ReAct loop against an MCP tool
// set: call a language model, execute any tool calls it returns
// through a client adapter, feed the results back, and repeat until
// the model answers in plain text or a tool-call budget runs out.
package reactor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/solomonsjoseph/reportalin-mcp/internal/adapter"
	"github.com/solomonsjoseph/reportalin-mcp/internal/mcp"
)

// Role identifies who a Message is attributed to in the running
// conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one function/tool invocation a Brain asked for.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Message is one turn of the conversation sent to or received from a
// Brain. ToolCalls is set on an assistant message that invoked tools;
// ToolCallID/ToolName identify which call a tool-role message answers.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
}

// BrainResponse is what one LLM turn produced: either terminal text,
// or one or more tool calls to execute before the next turn.
type BrainResponse struct {
	Text      string
	ToolCalls []ToolCall
}

// Brain calls out to a language model. Implementations own the
// provider-specific wire format (cmd/agent provides one over plain
// net/http); Complete always speaks in this package's Message/Tool
// shape so Run never needs to know which provider it's talking to.
type Brain interface {
	Complete(ctx context.Context, messages []Message, tools []mcp.Tool) (BrainResponse, error)
}

// ToolProvider is the subset of internal/adapter.Client the loop
// needs. *adapter.Client satisfies it without any wrapping.
type ToolProvider interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	ExecuteTool(ctx context.Context, name string, args json.RawMessage) (*mcp.ToolsCallResult, error)
}

const budgetExhaustedNotice = "tool budget exhausted; produce a final answer now"

// Run drives the loop to completion: build the initial message list,
// call brain, execute any tool calls through tools, and repeat until
// brain returns a response with no tool calls or toolBudget is spent.
// Cancelling ctx aborts the loop once the current turn's tool calls
// have all completed — an in-flight tool call is never interrupted
// mid-flight, but its result is discarded if ctx is already done by
// the time the loop would otherwise continue.
func Run(ctx context.Context, brain Brain, tools ToolProvider, userQuery, systemPrompt string, toolBudget int) (string, error) {
	if toolBudget <= 0 {
		toolBudget = 1
	}

	toolDefs, err := tools.ListTools(ctx)
	if err != nil {
		return "", fmt.Errorf("reactor: listing tools: %w", err)
	}

	messages := []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: userQuery},
	}

	budget := toolBudget
	for {
		activeTools := toolDefs
		if budget <= 0 {
			messages = append(messages, Message{Role: RoleSystem, Content: budgetExhaustedNotice})
			activeTools = nil // no tools offered: the model cannot make a call even if it wanted to
		}

		resp, err := brain.Complete(ctx, messages, activeTools)
		if err != nil {
			return "", fmt.Errorf("reactor: brain completion failed: %w", err)
		}

		if len(resp.ToolCalls) == 0 || budget <= 0 {
			return resp.Text, nil
		}

		messages = append(messages, Message{Role: RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})

		for _, call := range resp.ToolCalls {
			text := executeOne(ctx, tools, call)
			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    text,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
		budget--

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
}

// executeOne runs one tool call and renders its outcome as the flat
// text a tool-role message carries, whether the call succeeded or
// failed — a ReAct loop needs the model to see a tool's failure as
// plainly as its success, not have the loop abort on it.
func executeOne(ctx context.Context, tools ToolProvider, call ToolCall) string {
	result, err := tools.ExecuteTool(ctx, call.Name, call.Arguments)
	if err != nil {
		return err.Error()
	}
	return adapter.FlattenToolContent(result.Content)
}
