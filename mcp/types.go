package mcp

import (
	"encoding/json"
	"fmt"
)

// LatestProtocolVersion is the protocol revision this server speaks.
const LatestProtocolVersion = "2025-06-18"

// ImplementationInfo describes the implementation name and version.
type ImplementationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Title   string `json:"title,omitzero"`
}

// ClientCapabilities advertises client features. This server only consumes
// the envelope; individual capability payloads are opaque to it.
type ClientCapabilities struct {
	Roots *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"roots,omitempty"`
	Sampling    *struct{} `json:"sampling,omitempty"`
	Elicitation *struct{} `json:"elicitation,omitempty"`
}

// ServerCapabilities advertises server features.
type ServerCapabilities struct {
	Logging *struct{} `json:"logging,omitempty"`
	Tools   *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"tools,omitempty"`
}

// ContentBlock is a typed content part of a tool result.
type ContentBlock struct {
	Type string `json:"type"`
	// For text content
	Text string `json:"text,omitzero"`
	// For image content
	Data     string `json:"data,omitzero"`
	MimeType string `json:"mimeType,omitzero"`
}

// Tool describes a callable tool and its input schema.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema ToolInputSchema `json:"inputSchema"`
}

// ToolInputSchema is a JSON-schema-like description of tool input.
type ToolInputSchema struct {
	Type                 string                    `json:"type"`
	Properties           map[string]SchemaProperty `json:"properties,omitempty"`
	Required             []string                  `json:"required,omitempty"`
	AdditionalProperties bool                      `json:"additionalProperties,omitzero"`
}

// SchemaProperty is a simplified schema node used in tool input schemas.
type SchemaProperty struct {
	Type        TypeList                  `json:"type,omitempty"`
	Description string                    `json:"description,omitzero"`
	Items       *SchemaProperty           `json:"items,omitempty"`
	Properties  map[string]SchemaProperty `json:"properties,omitempty"`
	Enum        []any                     `json:"enum,omitempty"`
}

// TypeList is a JSON-schema "type" value: a bare string for a single type or
// an array for a union. It marshals back to the representation implied by its
// length so single-type schemas stay byte-compatible with the common form.
type TypeList []string

// Types builds a TypeList from the given type names.
func Types(names ...string) TypeList { return TypeList(names) }

// IsUnion reports whether the list names more than one type.
func (t TypeList) IsUnion() bool { return len(t) > 1 }

// Is reports whether the list names exactly the single given type.
func (t TypeList) Is(name string) bool { return len(t) == 1 && t[0] == name }

// MarshalJSON encodes a single entry as a string and multiple entries as an
// array, per JSON-schema convention.
func (t TypeList) MarshalJSON() ([]byte, error) {
	switch len(t) {
	case 0:
		return []byte(`""`), nil
	case 1:
		return json.Marshal(t[0])
	default:
		return json.Marshal([]string(t))
	}
}

// UnmarshalJSON accepts either a string or an array of strings.
func (t *TypeList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*t = nil
		} else {
			*t = TypeList{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*t = TypeList(many)
		return nil
	}
	return fmt.Errorf("schema type must be a string or array of strings, got: %s", string(data))
}
