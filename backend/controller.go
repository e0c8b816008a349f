// Package backend implements the session controller: the unit that owns one
// tool registry and, transitively, at most one live backend connection. The
// process keeps a single global controller; sessions that present their own
// credentials get a dedicated instance so backend authentication state is
// never shared across clients.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/odoomcp/odoo-mcp-go/mcp"
	"github.com/odoomcp/odoo-mcp-go/registry"
)

// ErrUnknownTool is returned when a call names a tool the controller's
// registry does not contain.
var ErrUnknownTool = errors.New("unknown tool")

// ToolError wraps a handler failure, preserving the original message.
type ToolError struct {
	Name string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Name, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ToolSetFunc populates a fresh registry with a collaborator's tools.
type ToolSetFunc func(*registry.Registry)

// Controller wraps one tool registry. Tool calls are serialized per
// controller; the backend connection owned by the tool set is stateful and
// handlers are not required to be reentrant-safe.
type Controller struct {
	mu  sync.Mutex
	reg *registry.Registry
	log *slog.Logger
}

// NewController constructs a controller with its own registry, populated by
// the given tool sets plus the built-in echo diagnostic tool.
func NewController(log *slog.Logger, toolSets ...ToolSetFunc) *Controller {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	reg := registry.New(echoTool())
	for _, ts := range toolSets {
		ts(reg)
	}
	c := &Controller{reg: reg, log: log}
	c.log.Info("controller ready", slog.Int("tool_count", len(reg.Names())), slog.Any("tools", reg.Names()))
	return c
}

// Tools returns the controller's tool inventory.
func (c *Controller) Tools(ctx context.Context) ([]mcp.Tool, error) {
	return c.reg.Tools(), nil
}

// CallTool executes the named tool. Unknown names surface as ErrUnknownTool;
// any other handler failure is wrapped into a ToolError carrying the original
// message.
func (c *Controller) CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.reg.Execute(ctx, name, args)
	if err != nil {
		if errors.Is(err, registry.ErrToolNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
		}
		return nil, &ToolError{Name: name, Err: err}
	}
	return res, nil
}

type echoArgs struct {
	Message string `json:"message" jsonschema:"description=Text to echo back"`
}

// echoTool is the trivial diagnostic tool every controller carries.
func echoTool() registry.ToolDef {
	return registry.NewTool("echo", "Echo back the provided message. Useful for connectivity checks.",
		func(ctx context.Context, args echoArgs) (*mcp.CallToolResult, error) {
			return registry.TextResult("Echo: " + args.Message), nil
		})
}
