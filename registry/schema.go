package registry

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/odoomcp/odoo-mcp-go/mcp"
)

// NewTool constructs a ToolDef from a typed args struct A. The input schema
// is reflected from A via invopop/jsonschema and down-converted to the
// simplified mcp.ToolInputSchema. Argument decoding is permissive: unknown
// fields are ignored, matching the server's boundary-validation policy.
func NewTool[A any](name, description string, fn func(ctx context.Context, args A) (*mcp.CallToolResult, error)) ToolDef {
	desc := mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: reflectInputSchema[A](),
	}

	handler := func(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResult, error) {
		var a A
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &a); err != nil {
				return Errorf("invalid arguments: %v", err), nil
			}
		}
		return fn(ctx, a)
	}

	return ToolDef{Descriptor: desc, Handler: handler}
}

// RawTool constructs a ToolDef from a hand-written descriptor and a raw
// handler. Used for tools whose schemas carry union types that struct
// reflection cannot express (e.g. Odoo domain triples).
func RawTool(desc mcp.Tool, h Handler) ToolDef {
	return ToolDef{Descriptor: desc, Handler: h}
}

// reflectInputSchema reflects a Go type A into the simplified MCP input
// schema. Non-object roots degrade to an empty object schema.
func reflectInputSchema[A any]() mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference:            true, // inline defs
		ExpandedStruct:            true, // put struct at root
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(new(A))

	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]mcp.SchemaProperty{},
		}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toSchemaProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}

	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// toSchemaProperty recursively maps a jsonschema.Schema to the simplified
// SchemaProperty node.
func toSchemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Description: s.Description,
	}
	if s.Type != "" {
		p.Type = mcp.Types(s.Type)
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toSchemaProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toSchemaProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}
