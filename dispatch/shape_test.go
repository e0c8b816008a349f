package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odoomcp/odoo-mcp-go/mcp"
)

func TestShapeForExplicitFlags(t *testing.T) {
	shape := ShapeFor(Config{MinimalTools: true}, Meta{})
	assert.True(t, shape.Minimal)
	assert.False(t, shape.Simplify)

	shape = ShapeFor(Config{SimplifySchemas: true}, Meta{})
	assert.False(t, shape.Minimal)
	assert.True(t, shape.Simplify)
}

func TestShapeForClientDetection(t *testing.T) {
	cfg := Config{DetectClient: true}

	for _, ua := range []string{
		"ChatGPT/1.0",
		"Mozilla/5.0 openai-connector",
		"OpenAI-GPT",
	} {
		shape := ShapeFor(cfg, Meta{UserAgent: ua})
		assert.Truef(t, shape.Minimal, "user agent %q should trigger minimal mode", ua)
		assert.Truef(t, shape.Simplify, "user agent %q should trigger simplification", ua)
	}

	shape := ShapeFor(cfg, Meta{UserAgent: "claude-desktop/0.9"})
	assert.False(t, shape.Minimal)
	assert.False(t, shape.Simplify)
}

func TestShapeForDetectionDisabled(t *testing.T) {
	shape := ShapeFor(Config{DetectClient: false}, Meta{UserAgent: "ChatGPT/1.0"})
	assert.False(t, shape.Minimal)
	assert.False(t, shape.Simplify)
}

func TestApplyMinimalFiltersUnknownNames(t *testing.T) {
	tools := []mcp.Tool{
		{Name: "echo"},
		{Name: "odoo_create"},
		{Name: "odoo_search_read"},
		{Name: "odoo_unlink"},
		{Name: "odoo_read"},
		{Name: "odoo_execute"},
	}

	out := applyMinimal(tools)
	names := toolNames(out)
	assert.ElementsMatch(t, []string{"echo", "odoo_search_read", "odoo_read", "odoo_execute"}, names)
}

func TestApplySimplifyFlattensDomainSchema(t *testing.T) {
	original := mcp.Tool{Name: "odoo_search_read", InputSchema: domainSchema()}
	out := applySimplify([]mcp.Tool{original})

	require.Len(t, out, 1)
	domain := out[0].InputSchema.Properties["domain"]
	require.NotNil(t, domain.Items)
	assert.True(t, domain.Items.Type.Is("string"))

	// scalar properties pass through untouched
	assert.True(t, out[0].InputSchema.Properties["model"].Type.Is("string"))
}

func TestApplySimplifyDoesNotMutateOriginal(t *testing.T) {
	original := mcp.Tool{Name: "odoo_search_read", InputSchema: domainSchema()}
	applySimplify([]mcp.Tool{original})

	domain := original.InputSchema.Properties["domain"]
	require.NotNil(t, domain.Items)
	assert.True(t, domain.Items.Type.Is("array"), "original descriptor must keep its nested schema")
	require.NotNil(t, domain.Items.Items)
	assert.True(t, domain.Items.Items.Type.IsUnion())
}

func TestApplySimplifyLeavesSingleTypeArrays(t *testing.T) {
	tool := mcp.Tool{
		Name: "odoo_read",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]mcp.SchemaProperty{
				"ids": {Type: mcp.Types("array"), Items: &mcp.SchemaProperty{Type: mcp.Types("integer")}},
			},
		},
	}

	out := applySimplify([]mcp.Tool{tool})
	assert.True(t, out[0].InputSchema.Properties["ids"].Items.Type.Is("integer"))
}

func TestMinimalToolNames(t *testing.T) {
	assert.ElementsMatch(t, []string{"echo", "odoo_search_read", "odoo_read", "odoo_execute"}, MinimalToolNames())
}
