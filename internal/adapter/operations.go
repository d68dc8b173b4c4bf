package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/solomonsjoseph/reportalin-mcp/internal/mcp"
)

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func marshalRequest(id, method string, params any) ([]byte, error) {
	var raw json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		raw = encoded
	}
	return json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  raw,
	})
}

func decodeResponse(data []byte) (*mcp.Response, error) {
	var resp mcp.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// ListTools returns the server's advertised tool set.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	resp, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &ProtocolError{Cause: fmt.Errorf("%s", resp.Error.Message)}
	}
	var result mcp.ToolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, &ProtocolError{Cause: err}
	}
	return result.Tools, nil
}

// ExecuteTool invokes one tool by name and returns its result. A
// JSON-RPC error response, or a result whose IsError field is set, is
// surfaced as a ToolExecutionFailed rather than a nil error with
// error content for the caller to notice or not.
func (c *Client) ExecuteTool(ctx context.Context, name string, args json.RawMessage) (*mcp.ToolsCallResult, error) {
	params := mcp.ToolsCallParams{Name: name, Arguments: args}
	resp, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &ToolExecutionFailed{ToolName: name, Cause: fmt.Errorf("%s", resp.Error.Message)}
	}
	var result mcp.ToolsCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, &ProtocolError{Cause: err}
	}
	if result.IsError {
		return &result, &ToolExecutionFailed{ToolName: name, Cause: fmt.Errorf("%s", flattenToolContent(result.Content))}
	}
	return &result, nil
}

// ListResources returns the server's advertised resource set.
func (c *Client) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	resp, err := c.call(ctx, "resources/list", nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &ProtocolError{Cause: fmt.Errorf("%s", resp.Error.Message)}
	}
	var result mcp.ResourcesListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, &ProtocolError{Cause: err}
	}
	return result.Resources, nil
}

// ReadResource fetches one resource's content by URI.
func (c *Client) ReadResource(ctx context.Context, uri string) (*mcp.ResourceContent, error) {
	resp, err := c.call(ctx, "resources/read", mcp.ResourcesReadParams{URI: uri})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &ProtocolError{Cause: fmt.Errorf("%s", resp.Error.Message)}
	}
	var result mcp.ResourcesReadResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, &ProtocolError{Cause: err}
	}
	if len(result.Contents) == 0 {
		return nil, &ProtocolError{Cause: fmt.Errorf("resources/read returned no contents for %q", uri)}
	}
	return &result.Contents[0], nil
}
