package httpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odoomcp/odoo-mcp-go/backend"
	"github.com/odoomcp/odoo-mcp-go/dispatch"
	"github.com/odoomcp/odoo-mcp-go/internal/jsonrpc"
	"github.com/odoomcp/odoo-mcp-go/mcp"
	"github.com/odoomcp/odoo-mcp-go/registry"
	"github.com/odoomcp/odoo-mcp-go/sessions"
	"github.com/odoomcp/odoo-mcp-go/sessions/memstore"
)

// sessionController is a distinguishable dedicated controller so tests can
// tell which controller served a call.
type sessionController struct {
	mu           sync.Mutex
	connectCalls int
	lastConnect  json.RawMessage
}

func (c *sessionController) Tools(ctx context.Context) ([]mcp.Tool, error) {
	return []mcp.Tool{{Name: "echo"}, {Name: "session_marker"}}, nil
}

func (c *sessionController) CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name == sessions.DefaultConnectTool {
		c.connectCalls++
		c.lastConnect = args
	}
	return registry.TextResult("dedicated: " + name), nil
}

type testEnv struct {
	srv        *httptest.Server
	manager    *sessions.Manager
	dedicated  *sessionController
	factoryUse int
}

func newTestEnv(t *testing.T, cfg dispatch.Config, opts ...Option) *testEnv {
	t.Helper()
	if cfg.ServerName == "" {
		cfg.ServerName = "odoo-mcp"
		cfg.ServerVersion = "test"
	}

	env := &testEnv{dedicated: &sessionController{}}
	global := backend.NewController(nil)
	d := dispatch.New(cfg, global, nil)
	env.manager = sessions.NewManager(memstore.New(), func() sessions.Controller {
		env.factoryUse++
		return env.dedicated
	}, nil)

	s := New(d, env.manager, nil, opts...)
	env.srv = httptest.NewServer(s.Handler())
	t.Cleanup(env.srv.Close)
	return env
}

func (env *testEnv) rpc(t *testing.T, headers map[string]string, method string, params any) (*http.Response, *jsonrpc.Response) {
	t.Helper()
	reqBody := map[string]any{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		reqBody["params"] = params
	}
	b, err := json.Marshal(reqBody)
	require.NoError(t, err)

	httpReq, err := http.NewRequest(http.MethodPost, env.srv.URL+"/mcp", bytes.NewReader(b))
	require.NoError(t, err)
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := env.srv.Client().Do(httpReq)
	require.NoError(t, err)
	t.Cleanup(func() { httpResp.Body.Close() })

	if httpResp.StatusCode == http.StatusAccepted {
		return httpResp, nil
	}
	var rpcResp jsonrpc.Response
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&rpcResp))
	return httpResp, &rpcResp
}

func credentialHeaders() map[string]string {
	return map[string]string{
		"X-Odoo-Url":      "https://erp.example.com",
		"X-Odoo-Db":       "prod",
		"X-Odoo-Username": "admin",
		"X-Odoo-Password": "secret",
	}
}

func TestInitializeCreatesSession(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{})

	httpResp, rpcResp := env.rpc(t, nil, "initialize", map[string]any{
		"clientInfo": map[string]string{"name": "test"},
	})

	assert.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.Nil(t, rpcResp.Error)
	assert.NotEmpty(t, httpResp.Header.Get("Mcp-Session-Id"))
	assert.Equal(t, 1, env.manager.Count())
	assert.Zero(t, env.factoryUse, "no credential headers means no dedicated controller")
}

func TestInitializeWithCredentialHeaders(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{})

	httpResp, rpcResp := env.rpc(t, credentialHeaders(), "initialize", nil)
	require.Nil(t, rpcResp.Error)

	sessionID := httpResp.Header.Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID)
	assert.Equal(t, 1, env.factoryUse)
	assert.Equal(t, 1, env.dedicated.connectCalls, "exactly one connect attempt")

	var creds map[string]string
	require.NoError(t, json.Unmarshal(env.dedicated.lastConnect, &creds))
	assert.Equal(t, "prod", creds["database"])
	assert.Equal(t, "jsonrpc", creds["transport"])

	// subsequent calls in this session hit the dedicated controller
	_, callResp := env.rpc(t, map[string]string{"Mcp-Session-Id": sessionID}, "tools/call", map[string]any{
		"name": "echo", "arguments": map[string]string{"message": "hi"},
	})
	require.Nil(t, callResp.Error)
	var result mcp.CallToolResult
	require.NoError(t, json.Unmarshal(callResp.Result, &result))
	assert.Equal(t, "dedicated: echo", result.Content[0].Text)
}

func TestSessionWithoutCredentialsUsesGlobalController(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{})

	httpResp, _ := env.rpc(t, nil, "initialize", nil)
	sessionID := httpResp.Header.Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID)

	_, listResp := env.rpc(t, map[string]string{"Mcp-Session-Id": sessionID}, "tools/list", nil)
	require.Nil(t, listResp.Error)

	var res mcp.ListToolsResult
	require.NoError(t, json.Unmarshal(listResp.Result, &res))
	require.Len(t, res.Tools, 1)
	assert.Equal(t, "echo", res.Tools[0].Name)

	_, callResp := env.rpc(t, map[string]string{"Mcp-Session-Id": sessionID}, "tools/call", map[string]any{
		"name": "echo", "arguments": map[string]string{"message": "hi"},
	})
	require.Nil(t, callResp.Error)
	var result mcp.CallToolResult
	require.NoError(t, json.Unmarshal(callResp.Result, &result))
	assert.Equal(t, "Echo: hi", result.Content[0].Text)
}

func TestStrictModeRejectsSessionlessCalls(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{})

	httpResp, rpcResp := env.rpc(t, nil, "tools/list", nil)
	assert.Equal(t, http.StatusBadRequest, httpResp.StatusCode)
	require.NotNil(t, rpcResp.Error)
	assert.Equal(t, jsonrpc.ErrorCodeApplication, rpcResp.Error.Code)
	assert.Contains(t, rpcResp.Error.Message, "Mcp-Session-Id")
}

func TestAutoLoginAllowsSessionlessCalls(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{ServerName: "odoo-mcp", AutoLogin: true})

	httpResp, rpcResp := env.rpc(t, nil, "tools/call", map[string]any{
		"name": "echo", "arguments": map[string]string{"message": "hi"},
	})
	assert.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.Nil(t, rpcResp.Error)

	var result mcp.CallToolResult
	require.NoError(t, json.Unmarshal(rpcResp.Result, &result))
	assert.Equal(t, "Echo: hi", result.Content[0].Text, "global controller serves session-less calls")
}

func TestUnknownSessionRejected(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{ServerName: "odoo-mcp", AutoLogin: true})

	httpResp, rpcResp := env.rpc(t, map[string]string{"Mcp-Session-Id": "nope"}, "tools/list", nil)
	assert.Equal(t, http.StatusNotFound, httpResp.StatusCode)
	require.NotNil(t, rpcResp.Error)
	assert.Contains(t, rpcResp.Error.Message, `unknown session "nope"`)
}

func TestNotificationAccepted(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{ServerName: "odoo-mcp", AutoLogin: true})

	body := `{"jsonrpc":"2.0","method":"notifications/initialized"}`
	resp, err := env.srv.Client().Post(env.srv.URL+"/mcp", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestParseErrorReturns400(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{})

	resp, err := env.srv.Client().Post(env.srv.URL+"/mcp", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var rpcResp jsonrpc.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	require.NotNil(t, rpcResp.Error)
	assert.Equal(t, jsonrpc.ErrorCodeParseError, rpcResp.Error.Code)
}

func TestTerminateSession(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{})

	httpResp, _ := env.rpc(t, nil, "initialize", nil)
	sessionID := httpResp.Header.Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID)

	del := func(id string) *http.Response {
		req, err := http.NewRequest(http.MethodDelete, env.srv.URL+"/mcp", nil)
		require.NoError(t, err)
		if id != "" {
			req.Header.Set("Mcp-Session-Id", id)
		}
		resp, err := env.srv.Client().Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	assert.Equal(t, http.StatusOK, del(sessionID).StatusCode)
	assert.Zero(t, env.manager.Count())
	assert.Equal(t, http.StatusNotFound, del(sessionID).StatusCode)
	assert.Equal(t, http.StatusBadRequest, del("").StatusCode)
}

func TestBearerToken(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{}, WithBearerToken("sekrit"))

	// protocol route rejects without token
	resp, err := env.srv.Client().Post(env.srv.URL+"/mcp", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// with token it passes
	httpResp, rpcResp := env.rpc(t, map[string]string{"Authorization": "Bearer sekrit"}, "initialize", nil)
	assert.Equal(t, http.StatusOK, httpResp.StatusCode)
	assert.Nil(t, rpcResp.Error)

	// health stays open
	resp, err = env.srv.Client().Get(env.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRESTListTools(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{ServerName: "odoo-mcp", AutoLogin: true})

	resp, err := env.srv.Client().Get(env.srv.URL + "/tools")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res mcp.ListToolsResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	require.NotEmpty(t, res.Tools)
	assert.Equal(t, "echo", res.Tools[0].Name)
}

func TestRESTCallTool(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{ServerName: "odoo-mcp", AutoLogin: true})

	resp, err := env.srv.Client().Post(env.srv.URL+"/tools/echo/call", "application/json",
		strings.NewReader(`{"message":"via rest"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result mcp.CallToolResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "Echo: via rest", result.Content[0].Text)
}

func TestRESTCallUnknownTool(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{ServerName: "odoo-mcp", AutoLogin: true})

	resp, err := env.srv.Client().Post(env.srv.URL+"/tools/no_such/call", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]*jsonrpc.Error
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body["error"])
	assert.Contains(t, body["error"].Message, "no_such")
}

func TestRESTBatchPartialFailure(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{ServerName: "odoo-mcp", AutoLogin: true})

	body := `[
		{"name":"echo","arguments":{"message":"one"}},
		{"name":"missing_tool"},
		{"name":"echo","arguments":{"message":"two"}}
	]`
	resp, err := env.srv.Client().Post(env.srv.URL+"/tools/batch", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "batch envelope is always 200")

	var out struct {
		Results []struct {
			Name    string          `json:"name"`
			Success bool            `json:"success"`
			Result  json.RawMessage `json:"result"`
			Error   *jsonrpc.Error  `json:"error"`
		} `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Results, 3)

	assert.True(t, out.Results[0].Success)
	assert.Equal(t, "echo", out.Results[0].Name)
	assert.False(t, out.Results[1].Success)
	require.NotNil(t, out.Results[1].Error)
	assert.Contains(t, out.Results[1].Error.Message, "missing_tool")
	assert.True(t, out.Results[2].Success)
}

func TestRESTBatchRejectsNonArray(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{ServerName: "odoo-mcp", AutoLogin: true})

	resp, err := env.srv.Client().Post(env.srv.URL+"/tools/batch", "application/json",
		strings.NewReader(`{"name":"echo"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndInfo(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{ServerName: "odoo-mcp", SimplifySchemas: true})

	resp, err := env.srv.Client().Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])

	resp, err = env.srv.Client().Get(env.srv.URL + "/info")
	require.NoError(t, err)
	defer resp.Body.Close()
	var info map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "odoo-mcp", info["name"])
	assert.Equal(t, mcp.LatestProtocolVersion, info["protocolVersion"])
	assert.Equal(t, true, info["simplifySchemas"])
}

func TestSSERequiresEventStreamAccept(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{})

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")

	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotAcceptable, resp.StatusCode)
}

func TestSSERequiresKnownSession(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{})

	get := func(sessionID string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/mcp", nil)
		require.NoError(t, err)
		req.Header.Set("Accept", "text/event-stream")
		if sessionID != "" {
			req.Header.Set("Mcp-Session-Id", sessionID)
		}
		resp, err := env.srv.Client().Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	assert.Equal(t, http.StatusBadRequest, get("").StatusCode)
	assert.Equal(t, http.StatusNotFound, get("nope").StatusCode)
}

func TestSSEStreamsHeartbeats(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{}, WithHeartbeatInterval(10*time.Millisecond))

	httpResp, _ := env.rpc(t, nil, "initialize", nil)
	sessionID := httpResp.Header.Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Mcp-Session-Id", sessionID)

	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readComment := func() string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, ":") {
				return strings.TrimSpace(line)
			}
		}
	}

	assert.Equal(t, ": connected", readComment())
	assert.Equal(t, ": heartbeat", readComment())
}

func TestProtocolVersionHeaderEchoed(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{})

	httpResp, _ := env.rpc(t, map[string]string{"Mcp-Protocol-Version": "2025-06-18"}, "initialize", nil)
	assert.Equal(t, "2025-06-18", httpResp.Header.Get("Mcp-Protocol-Version"))
}

func TestDocsEndpoint(t *testing.T) {
	env := newTestEnv(t, dispatch.Config{})

	resp, err := env.srv.Client().Get(env.srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var docs struct {
		Name      string            `json:"name"`
		Endpoints map[string]string `json:"endpoints"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&docs))
	assert.Equal(t, "odoo-mcp", docs.Name)
	assert.Contains(t, docs.Endpoints, "POST /mcp")
}
