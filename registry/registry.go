// Package registry implements the name-keyed tool registry shared by every
// backend controller: tool descriptors, their handlers, and typed helpers for
// building both from Go structs.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/odoomcp/odoo-mcp-go/mcp"
)

// ErrToolNotFound is returned by Execute when no tool is registered under the
// requested name.
var ErrToolNotFound = errors.New("tool not found")

// Handler executes a tool invocation against its raw JSON arguments.
type Handler func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error)

// ToolDef pairs a tool descriptor with its handler.
type ToolDef struct {
	Descriptor mcp.Tool
	Handler    Handler
}

// Registry owns a mutable, threadsafe set of tool definitions. Registering a
// name twice overwrites the earlier definition. Listing order is not part of
// the contract; callers must treat the tool set as unordered.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]mcp.Tool
	handlers map[string]Handler
}

// New constructs a Registry with the given tool definitions.
func New(defs ...ToolDef) *Registry {
	r := &Registry{
		tools:    make(map[string]mcp.Tool, len(defs)),
		handlers: make(map[string]Handler, len(defs)),
	}
	for _, d := range defs {
		r.Register(d)
	}
	return r
}

// Register inserts or overwrites a tool definition. Schema well-formedness is
// the caller's responsibility.
func (r *Registry) Register(def ToolDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := def.Descriptor.Name
	r.tools[name] = def.Descriptor
	r.handlers[name] = def.Handler
}

// Tools returns a snapshot of all tool descriptors, sorted by name for
// deterministic output.
func (r *Registry) Tools() []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports whether a tool is registered under the given name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Execute looks up and invokes the named tool's handler. It wraps
// ErrToolNotFound when the name is unknown and otherwise propagates handler
// errors unchanged.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok || h == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return h(ctx, args)
}

// TextResult builds a CallToolResult with a single text block.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: s}}}
}

// JSONResult marshals v to indented JSON and wraps it in a text block. A
// marshal failure degrades to an error result rather than propagating.
func JSONResult(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Errorf("failed to encode result: %v", err)
	}
	return TextResult(string(b))
}

// Errorf returns an error CallToolResult with a single text block and IsError set.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: fmt.Sprintf(format, a...)}},
		IsError: true,
	}
}
