// Package odoo implements the backend collaborator: a JSON-RPC client for
// the Odoo external API, the tool set exposed through the MCP registry, and
// the record sanitizer that shapes raw ORM payloads for LLM consumption.
package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

// TransportJSONRPC is the only wire transport the client speaks; it maps to
// Odoo's /jsonrpc endpoint.
const TransportJSONRPC = "jsonrpc"

// ErrAuthFailed indicates Odoo rejected the login credentials.
var ErrAuthFailed = errors.New("odoo authentication failed")

// RPCError is a structured error returned by the Odoo JSON-RPC endpoint.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	// Odoo puts the useful message in data.message; the top-level message is
	// usually a generic "Odoo Server Error".
	var data struct {
		Message string `json:"message"`
	}
	if len(e.Data) > 0 {
		if err := json.Unmarshal(e.Data, &data); err == nil && data.Message != "" {
			return fmt.Sprintf("odoo rpc error %d: %s", e.Code, strings.TrimSpace(data.Message))
		}
	}
	return fmt.Sprintf("odoo rpc error %d: %s", e.Code, e.Message)
}

// Config holds the connection parameters for one Odoo instance.
type Config struct {
	URL       string
	Database  string
	Username  string
	Password  string
	Transport string
}

// Client is an authenticated connection to one Odoo instance. The uid is set
// once by Authenticate and read-only afterwards.
type Client struct {
	endpoint string
	database string
	username string
	password string

	uid    int64
	httpc  *http.Client
	nextID atomic.Int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for backend calls.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpc = h }
}

// NewClient validates the configuration and builds an unauthenticated client.
// Only the jsonrpc transport is supported; other values fail here so the
// failure surfaces through the connect tool rather than on first use.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.Transport != "" && cfg.Transport != TransportJSONRPC {
		return nil, fmt.Errorf("unsupported transport %q (supported: %s)", cfg.Transport, TransportJSONRPC)
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid odoo url %q", cfg.URL)
	}

	c := &Client{
		endpoint: base.String() + "/jsonrpc",
		database: cfg.Database,
		username: cfg.Username,
		password: cfg.Password,
		httpc:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// UID returns the authenticated user id, or zero before Authenticate.
func (c *Client) UID() int64 { return atomic.LoadInt64(&c.uid) }

// Database returns the configured database name.
func (c *Client) Database() string { return c.database }

// Username returns the configured login.
func (c *Client) Username() string { return c.username }

// Authenticate performs common.login and records the resulting uid.
func (c *Client) Authenticate(ctx context.Context) error {
	raw, err := c.call(ctx, "common", "login", []any{c.database, c.username, c.password})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	// Odoo returns the numeric uid, or false on bad credentials.
	var uid int64
	if err := json.Unmarshal(raw, &uid); err != nil || uid == 0 {
		return ErrAuthFailed
	}
	atomic.StoreInt64(&c.uid, uid)
	return nil
}

// Version fetches the server version descriptor; it needs no authentication.
func (c *Client) Version(ctx context.Context) (json.RawMessage, error) {
	return c.call(ctx, "common", "version", []any{})
}

// ExecuteKw invokes object.execute_kw on the given model. The client must be
// authenticated first.
func (c *Client) ExecuteKw(ctx context.Context, model, method string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	uid := c.UID()
	if uid == 0 {
		return nil, fmt.Errorf("not authenticated against %s", c.database)
	}
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return c.call(ctx, "object", "execute_kw", []any{c.database, uid, c.password, model, method, args, kwargs})
}

// call performs one JSON-RPC round trip against /jsonrpc. No retries: a
// failed backend call surfaces immediately.
func (c *Client) call(ctx context.Context, service, method string, args []any) (json.RawMessage, error) {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"method":  "call",
		"params": map[string]any{
			"service": service,
			"method":  method,
			"args":    args,
		},
		"id": c.nextID.Add(1),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("odoo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("odoo returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		return nil, envelope.Error
	}
	return envelope.Result, nil
}
