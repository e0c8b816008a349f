package odoo

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odoomcp/odoo-mcp-go/odoo/fieldcache"
	"github.com/odoomcp/odoo-mcp-go/registry"
)

func newConnectedToolSet(t *testing.T, f *fakeOdoo) (*ToolSet, *registry.Registry) {
	t.Helper()
	c, _ := newFakeClient(t, f)

	ts := NewToolSet(nil, WithClientFactory(func(cfg Config) (*Client, error) {
		return c, nil
	}))
	reg := registry.New()
	ts.Register(reg)

	res, err := reg.Execute(context.Background(), "odoo_connect", json.RawMessage(
		`{"url":"https://erp.example.com","database":"prod","username":"admin","password":"secret"}`))
	require.NoError(t, err)
	require.False(t, res.IsError)
	return ts, reg
}

func TestRegisterToolInventory(t *testing.T) {
	ts := NewToolSet(nil)
	reg := registry.New()
	ts.Register(reg)

	assert.Equal(t, []string{
		"odoo_connect",
		"odoo_create",
		"odoo_disconnect",
		"odoo_execute",
		"odoo_list_models",
		"odoo_model_fields",
		"odoo_read",
		"odoo_search_read",
		"odoo_unlink",
		"odoo_version",
		"odoo_write",
	}, reg.Names())
}

func TestConnectTool(t *testing.T) {
	f := &fakeOdoo{}
	ts, _ := newConnectedToolSet(t, f)

	assert.True(t, ts.Connected())
	assert.Equal(t, 1, f.loginCalls)
}

func TestConnectToolBadCredentials(t *testing.T) {
	ts := NewToolSet(nil, WithClientFactory(func(cfg Config) (*Client, error) {
		f := &fakeOdoo{t: t}
		srv := newFakeServer(t, f)
		return NewClient(Config{URL: srv.URL, Database: cfg.Database, Username: cfg.Username, Password: cfg.Password},
			WithHTTPClient(srv.Client()))
	}))
	reg := registry.New()
	ts.Register(reg)

	_, err := reg.Execute(context.Background(), "odoo_connect", json.RawMessage(
		`{"url":"https://erp.example.com","database":"prod","username":"admin","password":"wrong"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.False(t, ts.Connected())
}

func TestToolsRequireConnection(t *testing.T) {
	ts := NewToolSet(nil)
	reg := registry.New()
	ts.Register(reg)

	for _, name := range []string{"odoo_version", "odoo_list_models", "odoo_search_read", "odoo_read", "odoo_execute"} {
		args := json.RawMessage(`{"model":"res.partner","method":"read","ids":[1]}`)
		_, err := reg.Execute(context.Background(), name, args)
		assert.ErrorIsf(t, err, ErrNotConnected, "%s should fail before connect", name)
	}
}

func TestDisconnectTool(t *testing.T) {
	ts, reg := newConnectedToolSet(t, &fakeOdoo{})

	res, err := reg.Execute(context.Background(), "odoo_disconnect", nil)
	require.NoError(t, err)
	assert.Equal(t, "Disconnected.", res.Content[0].Text)
	assert.False(t, ts.Connected())

	res, err = reg.Execute(context.Background(), "odoo_disconnect", nil)
	require.NoError(t, err)
	assert.Equal(t, "No active connection.", res.Content[0].Text)
}

func TestSearchReadTool(t *testing.T) {
	f := &fakeOdoo{executeResult: []map[string]any{
		{"id": 1, "name": "Acme", "image_1920": "blob"},
	}}
	_, reg := newConnectedToolSet(t, f)

	res, err := reg.Execute(context.Background(), "odoo_search_read", json.RawMessage(
		`{"model":"res.partner","domain":[["is_company","=",true]],"fields":["name"]}`))
	require.NoError(t, err)
	require.False(t, res.IsError)

	assert.Equal(t, "res.partner", f.lastModel)
	assert.Equal(t, "search_read", f.lastMethod)
	assert.Contains(t, res.Content[0].Text, "Acme")
	assert.NotContains(t, res.Content[0].Text, "image_1920", "binary fields must be pruned")
}

func TestSearchReadToolRequiresModel(t *testing.T) {
	_, reg := newConnectedToolSet(t, &fakeOdoo{})

	res, err := reg.Execute(context.Background(), "odoo_search_read", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestModelFieldsToolCaches(t *testing.T) {
	f := &fakeOdoo{executeResult: map[string]any{
		"name": map[string]any{"type": "char", "string": "Name"},
	}}
	cache := fieldcache.NewMemory()

	c, _ := newFakeClient(t, f)
	ts := NewToolSet(nil,
		WithFieldCache(cache),
		WithClientFactory(func(cfg Config) (*Client, error) { return c, nil }))
	reg := registry.New()
	ts.Register(reg)
	_, err := reg.Execute(context.Background(), "odoo_connect", json.RawMessage(
		`{"url":"https://erp.example.com","database":"prod","username":"admin","password":"secret"}`))
	require.NoError(t, err)

	args := json.RawMessage(`{"model":"res.partner"}`)
	_, err = reg.Execute(context.Background(), "odoo_model_fields", args)
	require.NoError(t, err)
	assert.Equal(t, 1, f.executeCalls)

	// second call served from cache
	res, err := reg.Execute(context.Background(), "odoo_model_fields", args)
	require.NoError(t, err)
	assert.Equal(t, 1, f.executeCalls)
	assert.Contains(t, res.Content[0].Text, "char")
}

func TestCreateTool(t *testing.T) {
	f := &fakeOdoo{executeResult: 42}
	_, reg := newConnectedToolSet(t, f)

	res, err := reg.Execute(context.Background(), "odoo_create", json.RawMessage(
		`{"model":"res.partner","values":{"name":"New Partner"}}`))
	require.NoError(t, err)
	assert.Equal(t, "create", f.lastMethod)
	assert.Contains(t, res.Content[0].Text, "id 42")
}

func TestWriteTool(t *testing.T) {
	f := &fakeOdoo{executeResult: true}
	_, reg := newConnectedToolSet(t, f)

	res, err := reg.Execute(context.Background(), "odoo_write", json.RawMessage(
		`{"model":"res.partner","ids":[1,2],"values":{"active":false}}`))
	require.NoError(t, err)
	assert.Equal(t, "write", f.lastMethod)
	assert.Contains(t, res.Content[0].Text, "Updated 2 res.partner record(s)")
}

func TestUnlinkTool(t *testing.T) {
	f := &fakeOdoo{executeResult: true}
	_, reg := newConnectedToolSet(t, f)

	res, err := reg.Execute(context.Background(), "odoo_unlink", json.RawMessage(
		`{"model":"res.partner","ids":[3]}`))
	require.NoError(t, err)
	assert.Equal(t, "unlink", f.lastMethod)
	assert.Contains(t, res.Content[0].Text, "Deleted 1 res.partner record(s)")
}

func TestExecuteToolSanitizesRecordLists(t *testing.T) {
	f := &fakeOdoo{executeResult: []map[string]any{
		{"id": 1, "name": "Acme", "avatar_128": "blob"},
	}}
	_, reg := newConnectedToolSet(t, f)

	res, err := reg.Execute(context.Background(), "odoo_execute", json.RawMessage(
		`{"model":"res.partner","method":"search_read","args":[[]]}`))
	require.NoError(t, err)
	assert.Contains(t, res.Content[0].Text, "Acme")
	assert.NotContains(t, res.Content[0].Text, "avatar_128")
}

func TestExecuteToolPassesScalarsThrough(t *testing.T) {
	f := &fakeOdoo{executeResult: 17}
	_, reg := newConnectedToolSet(t, f)

	res, err := reg.Execute(context.Background(), "odoo_execute", json.RawMessage(
		`{"model":"res.partner","method":"search_count","args":[[]]}`))
	require.NoError(t, err)
	assert.Equal(t, "17", res.Content[0].Text)
}

func TestVersionTool(t *testing.T) {
	_, reg := newConnectedToolSet(t, &fakeOdoo{})

	res, err := reg.Execute(context.Background(), "odoo_version", nil)
	require.NoError(t, err)
	assert.Contains(t, res.Content[0].Text, "17.0")
}
