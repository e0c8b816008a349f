package dispatch

import (
	"strings"

	"github.com/odoomcp/odoo-mcp-go/mcp"
)

// Shape holds the response-shaping decisions for one request.
type Shape struct {
	// Minimal restricts tools/list to a fixed allow-list.
	Minimal bool
	// Simplify flattens array-of-union input schemas for clients whose
	// schema parsers reject unions.
	Simplify bool
}

// minimalAllowList is the fixed tool subset returned in minimal mode.
var minimalAllowList = map[string]struct{}{
	"echo":             {},
	"odoo_search_read": {},
	"odoo_read":        {},
	"odoo_execute":     {},
}

// MinimalToolNames returns the names permitted in minimal mode.
func MinimalToolNames() []string {
	out := make([]string, 0, len(minimalAllowList))
	for name := range minimalAllowList {
		out = append(out, name)
	}
	return out
}

// ShapeFor computes the shaping flags from configuration and request
// metadata. Each flag has two independent triggers: the explicit config
// switch, and client auto-detection (when enabled) via the user-agent sniff.
// Both transports consult this one function.
func ShapeFor(cfg Config, meta Meta) Shape {
	detected := cfg.DetectClient && isRestrictedClient(meta.UserAgent)
	return Shape{
		Minimal:  cfg.MinimalTools || detected,
		Simplify: cfg.SimplifySchemas || detected,
	}
}

// isRestrictedClient sniffs user agents of clients known to need the reduced
// tool surface and flattened schemas.
func isRestrictedClient(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	return strings.Contains(ua, "chatgpt") || strings.Contains(ua, "openai")
}

// applyMinimal filters the tool list down to the fixed allow-list.
func applyMinimal(tools []mcp.Tool) []mcp.Tool {
	out := make([]mcp.Tool, 0, len(minimalAllowList))
	for _, t := range tools {
		if _, ok := minimalAllowList[t.Name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// applySimplify rewrites every array-typed property whose item schema is a
// union into an array of plain strings. Descriptors are copied, never mutated
// in place; tools/call still accepts arguments matching the original schema.
func applySimplify(tools []mcp.Tool) []mcp.Tool {
	out := make([]mcp.Tool, len(tools))
	for i, t := range tools {
		if !hasUnionArray(t.InputSchema) {
			out[i] = t
			continue
		}
		props := make(map[string]mcp.SchemaProperty, len(t.InputSchema.Properties))
		for name, p := range t.InputSchema.Properties {
			props[name] = flattenProperty(p)
		}
		t.InputSchema.Properties = props
		out[i] = t
	}
	return out
}

func hasUnionArray(schema mcp.ToolInputSchema) bool {
	for _, p := range schema.Properties {
		if isUnionArray(p) {
			return true
		}
	}
	return false
}

func isUnionArray(p mcp.SchemaProperty) bool {
	if len(p.Type) != 1 || p.Type[0] != "array" || p.Items == nil {
		return false
	}
	if p.Items.Type.IsUnion() {
		return true
	}
	// Odoo domain schemas nest one level deeper: array of (array of union).
	return itemsAreUnionArrays(p.Items)
}

func itemsAreUnionArrays(items *mcp.SchemaProperty) bool {
	return len(items.Type) == 1 && items.Type[0] == "array" && items.Items != nil && items.Items.Type.IsUnion()
}

// flattenProperty drops union structure from array item schemas.
func flattenProperty(p mcp.SchemaProperty) mcp.SchemaProperty {
	if !isUnionArray(p) {
		return p
	}
	p.Items = &mcp.SchemaProperty{Type: mcp.Types("string")}
	return p
}
