// Package registry dispatches JSON-RPC 2.0 requests to the MCP method
// set spec.md §4.8 defines: initialize, tools/list, tools/call,
// resources/list, resources/read, and ping.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/solomonsjoseph/reportalin-mcp/internal/dataset"
	"github.com/solomonsjoseph/reportalin-mcp/internal/mcp"
	"github.com/solomonsjoseph/reportalin-mcp/internal/otel"
)

// Registry holds the dataset store and the tool table and answers every
// MCP method over a single Dispatch entrypoint.
type Registry struct {
	store        *dataset.Store
	tools        map[string]registeredTool
	toolOrder    []string
	versionPolicy mcp.VersionPolicy
}

type registeredTool struct {
	def     mcp.Tool
	handler func(snap *dataset.Snapshot, args json.RawMessage) (any, error)
}

func New(store *dataset.Store) *Registry {
	return &Registry{
		store:         store,
		tools:         make(map[string]registeredTool),
		versionPolicy: mcp.VersionPolicySupported,
	}
}

// Register adds a tool to the registry's advertised tools/list and
// tools/call dispatch table.
func (r *Registry) Register(name, description string, schema json.RawMessage, handler func(snap *dataset.Snapshot, args json.RawMessage) (any, error)) {
	r.tools[name] = registeredTool{
		def: mcp.Tool{
			Name:        name,
			Description: description,
			InputSchema: schema,
		},
		handler: handler,
	}
	r.toolOrder = append(r.toolOrder, name)
}

// Dispatch routes one JSON-RPC request to its handler, recovering from
// any panic inside a tool handler so one bad input cannot take down the
// session's SSE stream (spec.md §5). req.ID == nil identifies a
// notification; Dispatch returns nil for those.
func (r *Registry) Dispatch(ctx context.Context, principal string, req *mcp.Request) (resp *mcp.Response) {
	tracer := otel.GetGlobalTracer()
	metrics := otel.GetGlobalMetrics()
	toolName := toolNameFromRequest(req)
	requestID := requestIDString(req.ID)

	spanCtx, span := tracer.StartOperationSpan(ctx, otel.OperationSpanOptions{
		RequestID: requestID,
		SessionID: principal,
		Operation: req.Method,
		ToolName:  toolName,
	})
	ctx = spanCtx
	ctx, reqLogger := withRequestLogger(ctx, requestID, principal, req.Method)
	start := time.Now()
	success := true

	if req.Method == "tools/call" {
		metrics.IncrementInFlightToolCalls()
		defer metrics.DecrementInFlightToolCalls()
	}

	defer func() {
		if rec := recover(); rec != nil {
			success = false
			reqLogger.Error("registry: recovered panic while dispatching", "panic", rec)
			if req.ID != nil {
				resp = mcp.NewError(req.ID, mcp.CodeInternalError, "internal error handling request", nil)
			}
		}
		if resp != nil && resp.Error != nil {
			success = false
			metrics.RecordError(ctx, req.Method)
			otel.RecordError(span, fmt.Errorf("%s", resp.Error.Message), req.Method, false)
		}
		duration := time.Since(start)
		outcome := "ok"
		if !success {
			outcome = "error"
		}
		reqLogger.Info("request handled", "duration_ms", duration.Milliseconds(), "outcome", outcome)
		metrics.RecordOperationLatency(ctx, req.Method, toolName, float64(duration.Microseconds())/1000, success)
		span.End()
		if req.ID == nil {
			resp = nil
		}
	}()

	switch req.Method {
	case "initialize":
		return r.handleInitialize(req)
	case "notifications/initialized":
		return nil
	case "ping":
		return mcp.NewResult(req.ID, json.RawMessage(`{}`))
	case "tools/list":
		return r.handleToolsList(req)
	case "tools/call":
		return r.handleToolsCall(ctx, req)
	case "resources/list":
		return r.handleResourcesList(req)
	case "resources/read":
		return r.handleResourcesRead(req)
	default:
		if req.ID == nil {
			return nil
		}
		return mcp.NewError(req.ID, mcp.CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
	}
}

func (r *Registry) handleInitialize(req *mcp.Request) *mcp.Response {
	var params mcp.InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return mcp.NewError(req.ID, mcp.CodeInvalidParams, "invalid initialize params", nil)
		}
	}
	negotiated := mcp.NegotiateVersion(params.ProtocolVersion)
	if err := mcp.ValidateNegotiation(params.ProtocolVersion, negotiated, r.versionPolicy); err != nil {
		return mcp.NewError(req.ID, mcp.CodeInvalidParams, err.Error(), nil)
	}
	result := mcp.InitializeResult{
		ProtocolVersion: negotiated,
		Capabilities:    mcp.DefaultCapabilities(),
		ServerInfo:      mcp.DefaultServerInfo(),
		Instructions:    "Aggregate-only clinical data search tools. No individual-level records are ever returned.",
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return mcp.NewError(req.ID, mcp.CodeInternalError, "failed to encode initialize result", nil)
	}
	return mcp.NewResult(req.ID, payload)
}

func (r *Registry) handleToolsList(req *mcp.Request) *mcp.Response {
	list := make([]mcp.Tool, 0, len(r.toolOrder))
	for _, name := range r.toolOrder {
		list = append(list, r.tools[name].def)
	}
	payload, err := json.Marshal(mcp.ToolsListResult{Tools: list})
	if err != nil {
		return mcp.NewError(req.ID, mcp.CodeInternalError, "failed to encode tools list", nil)
	}
	return mcp.NewResult(req.ID, payload)
}

func (r *Registry) handleToolsCall(ctx context.Context, req *mcp.Request) *mcp.Response {
	var params mcp.ToolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcp.NewError(req.ID, mcp.CodeInvalidParams, "invalid tools/call params", nil)
	}

	tool, ok := r.tools[params.Name]
	if !ok {
		return mcp.NewError(req.ID, mcp.CodeInvalidParams, fmt.Sprintf("unknown tool %q", params.Name), nil)
	}

	if err := validateAgainstSchema(tool.def.InputSchema, params.Arguments); err != nil {
		return mcp.NewError(req.ID, mcp.CodeInvalidParams, err.Error(), nil)
	}

	snap := r.store.Current()
	if snap == nil {
		return mcp.NewError(req.ID, mcp.CodeInternalError, "dataset not loaded", nil)
	}

	result, err := tool.handler(snap, params.Arguments)
	if err != nil {
		loggerFromContext(ctx).Warn("tool handler returned an error", "tool", params.Name, "error", err)
		return mcp.NewResult(req.ID, mustMarshalToolError(err))
	}

	text, err := json.Marshal(result)
	if err != nil {
		return mcp.NewError(req.ID, mcp.CodeInternalError, "failed to encode tool result", nil)
	}
	payload, err := json.Marshal(mcp.ToolsCallResult{Content: []mcp.ToolContent{{Type: "text", Text: string(text)}}})
	if err != nil {
		return mcp.NewError(req.ID, mcp.CodeInternalError, "failed to encode tools/call result", nil)
	}
	return mcp.NewResult(req.ID, payload)
}

func (r *Registry) handleResourcesList(req *mcp.Request) *mcp.Response {
	snap := r.store.Current()
	payload, err := json.Marshal(mcp.ResourcesListResult{Resources: staticResources(snap)})
	if err != nil {
		return mcp.NewError(req.ID, mcp.CodeInternalError, "failed to encode resources list", nil)
	}
	return mcp.NewResult(req.ID, payload)
}

func (r *Registry) handleResourcesRead(req *mcp.Request) *mcp.Response {
	var params mcp.ResourcesReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcp.NewError(req.ID, mcp.CodeInvalidParams, "invalid resources/read params", nil)
	}
	snap := r.store.Current()
	content, err := readResource(snap, params.URI)
	if err != nil {
		return mcp.NewError(req.ID, mcp.CodeInvalidParams, err.Error(), nil)
	}
	payload, err := json.Marshal(mcp.ResourcesReadResult{Contents: []mcp.ResourceContent{*content}})
	if err != nil {
		return mcp.NewError(req.ID, mcp.CodeInternalError, "failed to encode resources/read result", nil)
	}
	return mcp.NewResult(req.ID, payload)
}

type requestLoggerKey struct{}

// withRequestLogger attaches a logger to ctx carrying request_id,
// session_id, and method, so any handler Dispatch calls into can log with
// the same correlation fields without re-threading them through every
// call. One request produces exactly one "request handled" entry from the
// Dispatch defer below; handlers may log additional entries through the
// returned logger, each still carrying the same three fields.
func withRequestLogger(ctx context.Context, requestID, sessionID, method string) (context.Context, *slog.Logger) {
	logger := slog.Default().With("request_id", requestID, "session_id", sessionID, "method", method)
	return context.WithValue(ctx, requestLoggerKey{}, logger), logger
}

// loggerFromContext returns the logger withRequestLogger attached to ctx,
// or the default logger if none was attached.
func loggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(requestLoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

func requestIDString(id interface{}) string {
	if id == nil {
		return ""
	}
	return fmt.Sprintf("%v", id)
}

func toolNameFromRequest(req *mcp.Request) string {
	if req.Method != "tools/call" || len(req.Params) == 0 {
		return ""
	}
	var params mcp.ToolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return ""
	}
	return params.Name
}

func mustMarshalToolError(err error) json.RawMessage {
	result := mcp.ToolsCallResult{
		Content: []mcp.ToolContent{{Type: "text", Text: err.Error()}},
		IsError: true,
	}
	b, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return json.RawMessage(`{"content":[{"type":"text","text":"internal error"}],"isError":true}`)
	}
	return b
}
