package adapter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/solomonsjoseph/reportalin-mcp/internal/mcp"
)

// OpenAIFunctionTool is one entry of an OpenAI-shaped "tools" array:
// {"type": "function", "function": {...}}.
type OpenAIFunctionTool struct {
	Type     string             `json:"type"`
	Function OpenAIFunctionSpec `json:"function"`
}

type OpenAIFunctionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToOpenAITools translates the server's tool set into the shape the
// OpenAI chat-completions "tools" request field expects.
func ToOpenAITools(tools []mcp.Tool) []OpenAIFunctionTool {
	out := make([]OpenAIFunctionTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, OpenAIFunctionTool{
			Type: "function",
			Function: OpenAIFunctionSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}

// AnthropicTool is one entry of an Anthropic Messages API "tools" array.
type AnthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToAnthropicTools translates the server's tool set into the shape
// the Anthropic Messages API "tools" request field expects.
func ToAnthropicTools(tools []mcp.Tool) []AnthropicTool {
	out := make([]AnthropicTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, AnthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return out
}

// flattenToolContent concatenates the text blocks of a tool result
// into one string, for callers (a ReAct loop, an error message) that
// need a flat string rather than a content-block list. Non-text
// blocks are represented by a placeholder so nothing is silently
// dropped.
func flattenToolContent(content []mcp.ToolContent) string {
	var b strings.Builder
	for i, block := range content {
		if i > 0 {
			b.WriteByte('\n')
		}
		if block.Type == "text" {
			b.WriteString(block.Text)
		} else {
			fmt.Fprintf(&b, "[non-text: %s]", block.Type)
		}
	}
	return b.String()
}

// FlattenToolContent is the exported form of flattenToolContent, for
// callers outside this package (internal/reactor, cmd/agent) that
// need to render a tools/call result as plain text for a model
// message.
func FlattenToolContent(content []mcp.ToolContent) string {
	return flattenToolContent(content)
}
