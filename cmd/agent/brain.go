package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/solomonsjoseph/reportalin-mcp/internal/adapter"
	"github.com/solomonsjoseph/reportalin-mcp/internal/mcp"
	"github.com/solomonsjoseph/reportalin-mcp/internal/reactor"
)

// openAIBrain implements reactor.Brain against any server speaking the
// OpenAI chat-completions wire format, using net/http directly — no
// provider SDK is needed for a request/response shape this small.
type openAIBrain struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

func newOpenAIBrain(url, apiKey, model string) *openAIBrain {
	return &openAIBrain{
		url:    url,
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role       string             `json:"role"`
	Content    string             `json:"content,omitempty"`
	ToolCalls  []chatToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
	Name       string             `json:"name,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatToolCallFunc `json:"function"`
}

type chatToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatCompletionRequest struct {
	Model    string                     `json:"model"`
	Messages []chatMessage              `json:"messages"`
	Tools    []adapter.OpenAIFunctionTool `json:"tools,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (b *openAIBrain) Complete(ctx context.Context, messages []reactor.Message, tools []mcp.Tool) (reactor.BrainResponse, error) {
	reqBody := chatCompletionRequest{
		Model:    b.model,
		Messages: toChatMessages(messages),
		Tools:    adapter.ToOpenAITools(tools),
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return reactor.BrainResponse{}, fmt.Errorf("brain: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(payload))
	if err != nil {
		return reactor.BrainResponse{}, fmt.Errorf("brain: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return reactor.BrainResponse{}, fmt.Errorf("brain: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return reactor.BrainResponse{}, fmt.Errorf("brain: read response: %w", err)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return reactor.BrainResponse{}, fmt.Errorf("brain: decode response: %w", err)
	}
	if parsed.Error != nil {
		return reactor.BrainResponse{}, fmt.Errorf("brain: endpoint returned an error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return reactor.BrainResponse{}, fmt.Errorf("brain: response had no choices")
	}

	msg := parsed.Choices[0].Message
	out := reactor.BrainResponse{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, reactor.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func toChatMessages(messages []reactor.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		cm := chatMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.ToolName,
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, chatToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: chatToolCallFunc{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, cm)
	}
	return out
}
