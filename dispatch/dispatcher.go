// Package dispatch implements the JSON-RPC 2.0 method router shared verbatim
// by the HTTP and stdio transports. It resolves which backend controller
// serves a request, routes the initialize/tools methods, and applies the
// response-shaping policies (minimal tool set, schema simplification, size
// ceiling) before anything reaches the wire.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odoomcp/odoo-mcp-go/backend"
	"github.com/odoomcp/odoo-mcp-go/internal/jsonrpc"
	"github.com/odoomcp/odoo-mcp-go/internal/logctx"
	"github.com/odoomcp/odoo-mcp-go/mcp"
)

// DefaultMaxResponseBytes is the serialized-size ceiling for tool results.
// Documented client ceilings are far smaller; the limit is configurable so
// deployments can tighten it per client population.
const DefaultMaxResponseBytes = 1 << 20

// Config carries the dispatcher's shaping and identity settings.
type Config struct {
	ServerName    string
	ServerVersion string

	// MinimalTools and SimplifySchemas are the explicit shaping switches.
	MinimalTools    bool
	SimplifySchemas bool
	// DetectClient enables the user-agent sniff as a second trigger for both
	// shaping filters.
	DetectClient bool

	// MaxResponseBytes caps serialized tool results. Zero means
	// DefaultMaxResponseBytes.
	MaxResponseBytes int

	// AutoLogin indicates environment credentials are configured, allowing
	// session-less calls on the global controller.
	AutoLogin bool
}

func (c Config) maxResponseBytes() int {
	if c.MaxResponseBytes <= 0 {
		return DefaultMaxResponseBytes
	}
	return c.MaxResponseBytes
}

// Meta carries the transport-specific request extras consulted for shaping
// decisions. Zero value is valid for transports without headers (stdio).
type Meta struct {
	UserAgent       string
	SessionID       string
	ProtocolVersion string
}

// Controller is the dispatcher's view of a tool-execution context.
type Controller interface {
	Tools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error)
}

// Dispatcher routes JSON-RPC requests to a backend controller.
type Dispatcher struct {
	cfg    Config
	global Controller
	log    *slog.Logger
}

// New constructs a Dispatcher around the process-global controller.
func New(cfg Config, global Controller, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{cfg: cfg, global: global, log: log}
}

// Config returns the dispatcher's configuration.
func (d *Dispatcher) Config() Config { return d.cfg }

// Global returns the process-global controller.
func (d *Dispatcher) Global() Controller { return d.global }

// Dispatch handles one JSON-RPC request and always returns a well-formed
// response; errors are encoded as JSON-RPC error objects, never propagated.
// Notifications return nil. override, when non-nil, takes priority over the
// global controller; this is the single seam that gives a session's dedicated
// controller precedence without duplicating dispatch logic.
func (d *Dispatcher) Dispatch(ctx context.Context, req *jsonrpc.Request, meta Meta, override Controller) (resp *jsonrpc.Response) {
	if req.IsNotification() {
		d.log.DebugContext(ctx, "notification received", slog.String("method", req.Method))
		return nil
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String()})

	defer func() {
		if r := recover(); r != nil {
			d.log.ErrorContext(ctx, "panic in dispatch", slog.Any("panic", r))
			resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, fmt.Sprintf("internal error: %v", r), nil)
		}
	}()

	ctrl := d.global
	if override != nil {
		ctrl = override
	}

	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		return d.initialize(ctx, req, meta)
	case mcp.PingMethod:
		return d.result(req.ID, mcp.EmptyResult{})
	case mcp.ToolsListMethod:
		return d.listTools(ctx, req, meta, ctrl)
	case mcp.ToolsCallMethod:
		return d.callTool(ctx, req, ctrl)
	default:
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
	}
}

// initialize returns the capability descriptor. Session creation is the HTTP
// transport's job and happens before dispatch, so the descriptor can reflect
// session-aware mode flags.
func (d *Dispatcher) initialize(ctx context.Context, req *jsonrpc.Request, meta Meta) *jsonrpc.Response {
	var params mcp.InitializeRequest
	if len(req.Params) > 0 {
		// Permissive: a malformed initialize payload falls back to defaults.
		_ = json.Unmarshal(req.Params, &params)
	}

	sessionMode := "strict"
	if d.cfg.AutoLogin {
		sessionMode = "auto-login"
	}

	shape := ShapeFor(d.cfg, meta)
	res := mcp.InitializeResult{
		ProtocolVersion: mcp.LatestProtocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Tools: &struct {
				ListChanged bool `json:"listChanged"`
			}{},
		},
		ServerInfo: mcp.ImplementationInfo{
			Name:    d.cfg.ServerName,
			Version: d.cfg.ServerVersion,
		},
	}
	res.Meta = map[string]any{
		"sessionMode":     sessionMode,
		"minimalTools":    shape.Minimal,
		"simplifySchemas": shape.Simplify,
	}

	d.log.InfoContext(ctx, "initialize",
		slog.String("client", params.ClientInfo.Name),
		slog.String("session_mode", sessionMode))
	return d.result(req.ID, res)
}

func (d *Dispatcher) listTools(ctx context.Context, req *jsonrpc.Request, meta Meta, ctrl Controller) *jsonrpc.Response {
	tools, err := ctrl.Tools(ctx)
	if err != nil {
		d.log.ErrorContext(ctx, "tools/list failed", slog.Any("error", err))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeToolListFailed, fmt.Sprintf("failed to list tools: %v", err), nil)
	}

	shape := ShapeFor(d.cfg, meta)
	if shape.Minimal {
		tools = applyMinimal(tools)
	}
	if shape.Simplify {
		tools = applySimplify(tools)
	}

	return d.result(req.ID, mcp.ListToolsResult{Tools: tools})
}

func (d *Dispatcher) callTool(ctx context.Context, req *jsonrpc.Request, ctrl Controller) *jsonrpc.Response {
	var params mcp.CallToolRequestReceived
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("invalid params: %v", err), nil)
		}
	}
	if params.Name == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeApplication, "missing tool name", nil)
	}

	args := params.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})
	result, err := ctrl.CallTool(ctx, params.Name, args)
	if err != nil {
		if errors.Is(err, backend.ErrUnknownTool) {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeApplication, err.Error(), nil)
		}
		d.log.WarnContext(ctx, "tool call failed", slog.Any("error", err))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeApplication, fmt.Sprintf("tool execution failed: %v", err), nil)
	}

	body, err := json.Marshal(result)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, fmt.Sprintf("failed to encode result: %v", err), nil)
	}
	if max := d.cfg.maxResponseBytes(); len(body) > max {
		// The oversized payload is discarded, not truncated.
		d.log.WarnContext(ctx, "tool result over size ceiling",
			slog.Int("size", len(body)), slog.Int("limit", max))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeApplication,
			fmt.Sprintf("response too large (%d bytes, limit %d): narrow the query with fewer fields, a smaller limit, or pagination", len(body), max), nil)
	}

	return &jsonrpc.Response{
		JSONRPCVersion: jsonrpc.ProtocolVersion,
		Result:         body,
		ID:             req.ID,
	}
}

func (d *Dispatcher) result(id *jsonrpc.RequestID, v any) *jsonrpc.Response {
	resp, err := jsonrpc.NewResultResponse(id, v)
	if err != nil {
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, err.Error(), nil)
	}
	return resp
}
