package odoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/odoomcp/odoo-mcp-go/mcp"
	"github.com/odoomcp/odoo-mcp-go/odoo/fieldcache"
	"github.com/odoomcp/odoo-mcp-go/registry"
)

// ErrNotConnected is returned by tools that need a live backend connection
// before odoo_connect has succeeded.
var ErrNotConnected = errors.New("not connected to odoo; call odoo_connect first")

// ToolSet owns one backend connection slot and registers the Odoo tools that
// use it. Each session-scoped controller gets its own ToolSet instance, which
// is what keeps backend authentication state isolated between sessions.
type ToolSet struct {
	mu     sync.RWMutex
	client *Client

	sanitizer *Sanitizer
	cache     fieldcache.Cache
	log       *slog.Logger

	newClient func(cfg Config) (*Client, error)
}

// ToolSetOption configures a ToolSet.
type ToolSetOption func(*ToolSet)

// WithFieldCache sets the model-metadata cache.
func WithFieldCache(c fieldcache.Cache) ToolSetOption {
	return func(ts *ToolSet) { ts.cache = c }
}

// WithSanitizer overrides the record sanitizer.
func WithSanitizer(s *Sanitizer) ToolSetOption {
	return func(ts *ToolSet) { ts.sanitizer = s }
}

// WithClientFactory overrides client construction, for tests.
func WithClientFactory(fn func(cfg Config) (*Client, error)) ToolSetOption {
	return func(ts *ToolSet) { ts.newClient = fn }
}

// NewToolSet constructs a ToolSet with no connection.
func NewToolSet(log *slog.Logger, opts ...ToolSetOption) *ToolSet {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	ts := &ToolSet{
		sanitizer: NewSanitizer(),
		cache:     fieldcache.NewMemory(),
		log:       log,
		newClient: func(cfg Config) (*Client, error) { return NewClient(cfg) },
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts
}

// Connected reports whether a backend connection is established.
func (ts *ToolSet) Connected() bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.client != nil
}

// conn returns the live client or ErrNotConnected.
func (ts *ToolSet) conn() (*Client, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if ts.client == nil {
		return nil, ErrNotConnected
	}
	return ts.client, nil
}

// Register populates a registry with the full Odoo tool set. It matches the
// backend.ToolSetFunc shape.
func (ts *ToolSet) Register(reg *registry.Registry) {
	reg.Register(ts.connectTool())
	reg.Register(ts.disconnectTool())
	reg.Register(ts.versionTool())
	reg.Register(ts.listModelsTool())
	reg.Register(ts.modelFieldsTool())
	reg.Register(ts.searchReadTool())
	reg.Register(ts.readTool())
	reg.Register(ts.createTool())
	reg.Register(ts.writeTool())
	reg.Register(ts.unlinkTool())
	reg.Register(ts.executeTool())
}

type connectArgs struct {
	URL       string `json:"url" jsonschema:"description=Base URL of the Odoo instance (e.g. https://erp.example.com)"`
	Database  string `json:"database" jsonschema:"description=Database name"`
	Username  string `json:"username" jsonschema:"description=Login"`
	Password  string `json:"password" jsonschema:"description=Password or API key"`
	Transport string `json:"transport,omitempty" jsonschema:"description=Wire transport; only jsonrpc is supported"`
}

func (ts *ToolSet) connectTool() registry.ToolDef {
	return registry.NewTool("odoo_connect", "Connect and authenticate against an Odoo instance. Replaces any existing connection for this session.",
		func(ctx context.Context, args connectArgs) (*mcp.CallToolResult, error) {
			client, err := ts.newClient(Config{
				URL:       args.URL,
				Database:  args.Database,
				Username:  args.Username,
				Password:  args.Password,
				Transport: args.Transport,
			})
			if err != nil {
				return nil, err
			}
			if err := client.Authenticate(ctx); err != nil {
				return nil, fmt.Errorf("connect to %s: %w", args.URL, err)
			}

			ts.mu.Lock()
			ts.client = client
			ts.mu.Unlock()

			ts.log.InfoContext(ctx, "odoo connected",
				slog.String("url", args.URL),
				slog.String("database", args.Database),
				slog.Int64("uid", client.UID()))
			return registry.TextResult(fmt.Sprintf("Connected to %s database %q as %s (uid %d)",
				args.URL, args.Database, args.Username, client.UID())), nil
		})
}

// noArgs is the argument type for tools that take no input. It must be a
// named type: jsonschema's ExpandedStruct reflection looks the root schema up
// by type name and panics on anonymous structs.
type noArgs struct{}

func (ts *ToolSet) disconnectTool() registry.ToolDef {
	return registry.NewTool("odoo_disconnect", "Drop the current Odoo connection.",
		func(ctx context.Context, _ noArgs) (*mcp.CallToolResult, error) {
			ts.mu.Lock()
			had := ts.client != nil
			ts.client = nil
			ts.mu.Unlock()
			if !had {
				return registry.TextResult("No active connection."), nil
			}
			return registry.TextResult("Disconnected."), nil
		})
}

func (ts *ToolSet) versionTool() registry.ToolDef {
	return registry.NewTool("odoo_version", "Report the Odoo server version.",
		func(ctx context.Context, _ noArgs) (*mcp.CallToolResult, error) {
			client, err := ts.conn()
			if err != nil {
				return nil, err
			}
			raw, err := client.Version(ctx)
			if err != nil {
				return nil, err
			}
			return rawJSONResult(raw), nil
		})
}

type listModelsArgs struct {
	Filter string `json:"filter,omitempty" jsonschema:"description=Substring filter on the technical model name"`
}

func (ts *ToolSet) listModelsTool() registry.ToolDef {
	return registry.NewTool("odoo_list_models", "List the models available on the connected instance (technical name and label).",
		func(ctx context.Context, args listModelsArgs) (*mcp.CallToolResult, error) {
			client, err := ts.conn()
			if err != nil {
				return nil, err
			}

			domain := []any{}
			if args.Filter != "" {
				domain = []any{[]any{"model", "like", args.Filter}}
			}
			raw, err := client.ExecuteKw(ctx, "ir.model", "search_read",
				[]any{domain},
				map[string]any{"fields": []string{"model", "name"}, "order": "model"})
			if err != nil {
				return nil, err
			}
			return rawJSONResult(raw), nil
		})
}

type modelFieldsArgs struct {
	Model string `json:"model" jsonschema:"description=Technical model name (e.g. res.partner)"`
}

func (ts *ToolSet) modelFieldsTool() registry.ToolDef {
	return registry.NewTool("odoo_model_fields", "Describe the fields of a model: name, type, label, relation. Results are cached.",
		func(ctx context.Context, args modelFieldsArgs) (*mcp.CallToolResult, error) {
			if args.Model == "" {
				return registry.Errorf("model is required"), nil
			}
			client, err := ts.conn()
			if err != nil {
				return nil, err
			}

			cacheKey := fmt.Sprintf("fields:%s:%s:%s", client.endpoint, client.Database(), args.Model)
			if cached, ok, err := ts.cache.Get(ctx, cacheKey); err == nil && ok {
				return rawJSONResult(cached), nil
			} else if err != nil {
				ts.log.WarnContext(ctx, "field cache read failed", slog.Any("error", err))
			}

			raw, err := client.ExecuteKw(ctx, args.Model, "fields_get",
				[]any{},
				map[string]any{"attributes": []string{"string", "type", "required", "relation", "help"}})
			if err != nil {
				return nil, err
			}

			if err := ts.cache.Set(ctx, cacheKey, raw, 0); err != nil {
				ts.log.WarnContext(ctx, "field cache write failed", slog.Any("error", err))
			}
			return rawJSONResult(raw), nil
		})
}

// domainProperty is the hand-written schema for Odoo search domains: an array
// of [field, operator, value] triples (plus "&"/"|"/"!" operators), where the
// value leg is a union of primitive and array types. Clients that cannot
// parse unions receive a flattened form via the schema-simplification filter.
func domainProperty() mcp.SchemaProperty {
	return mcp.SchemaProperty{
		Type:        mcp.Types("array"),
		Description: "Odoo search domain, e.g. [[\"is_company\", \"=\", true]]",
		Items: &mcp.SchemaProperty{
			Type: mcp.Types("array"),
			Items: &mcp.SchemaProperty{
				Type: mcp.Types("string", "number", "boolean", "array"),
			},
		},
	}
}

type searchReadArgs struct {
	Model  string   `json:"model"`
	Domain []any    `json:"domain,omitempty"`
	Fields []string `json:"fields,omitempty"`
	Limit  int      `json:"limit,omitempty"`
	Offset int      `json:"offset,omitempty"`
	Order  string   `json:"order,omitempty"`
}

func (ts *ToolSet) searchReadTool() registry.ToolDef {
	desc := mcp.Tool{
		Name:        "odoo_search_read",
		Description: "Search a model with a domain and read matching records. Defaults to 50 records; large text and binary fields are pruned.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]mcp.SchemaProperty{
				"model":  {Type: mcp.Types("string"), Description: "Technical model name"},
				"domain": domainProperty(),
				"fields": {Type: mcp.Types("array"), Description: "Fields to return; omit for all stored fields",
					Items: &mcp.SchemaProperty{Type: mcp.Types("string")}},
				"limit":  {Type: mcp.Types("integer"), Description: "Maximum records to return (default 50)"},
				"offset": {Type: mcp.Types("integer")},
				"order":  {Type: mcp.Types("string"), Description: "Sort specification, e.g. \"name asc\""},
			},
			Required: []string{"model"},
		},
	}

	return registry.RawTool(desc, func(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResult, error) {
		var args searchReadArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return registry.Errorf("invalid arguments: %v", err), nil
		}
		if args.Model == "" {
			return registry.Errorf("model is required"), nil
		}
		client, err := ts.conn()
		if err != nil {
			return nil, err
		}

		limit := args.Limit
		if limit <= 0 {
			limit = 50
		}
		kwargs := map[string]any{"limit": limit}
		if len(args.Fields) > 0 {
			kwargs["fields"] = args.Fields
		}
		if args.Offset > 0 {
			kwargs["offset"] = args.Offset
		}
		if args.Order != "" {
			kwargs["order"] = args.Order
		}
		domain := args.Domain
		if domain == nil {
			domain = []any{}
		}

		rawRes, err := client.ExecuteKw(ctx, args.Model, "search_read", []any{domain}, kwargs)
		if err != nil {
			return nil, err
		}
		return ts.sanitizedRecordsResult(rawRes)
	})
}

type readArgs struct {
	Model  string   `json:"model" jsonschema:"description=Technical model name"`
	IDs    []int64  `json:"ids" jsonschema:"description=Record ids to read"`
	Fields []string `json:"fields,omitempty" jsonschema:"description=Fields to return; omit for all stored fields"`
}

func (ts *ToolSet) readTool() registry.ToolDef {
	return registry.NewTool("odoo_read", "Read specific records by id.",
		func(ctx context.Context, args readArgs) (*mcp.CallToolResult, error) {
			if args.Model == "" || len(args.IDs) == 0 {
				return registry.Errorf("model and ids are required"), nil
			}
			client, err := ts.conn()
			if err != nil {
				return nil, err
			}

			kwargs := map[string]any{}
			if len(args.Fields) > 0 {
				kwargs["fields"] = args.Fields
			}
			raw, err := client.ExecuteKw(ctx, args.Model, "read", []any{args.IDs}, kwargs)
			if err != nil {
				return nil, err
			}
			return ts.sanitizedRecordsResult(raw)
		})
}

type createArgs struct {
	Model  string         `json:"model" jsonschema:"description=Technical model name"`
	Values map[string]any `json:"values" jsonschema:"description=Field values for the new record"`
}

func (ts *ToolSet) createTool() registry.ToolDef {
	return registry.NewTool("odoo_create", "Create a record and return its id.",
		func(ctx context.Context, args createArgs) (*mcp.CallToolResult, error) {
			if args.Model == "" || len(args.Values) == 0 {
				return registry.Errorf("model and values are required"), nil
			}
			client, err := ts.conn()
			if err != nil {
				return nil, err
			}
			raw, err := client.ExecuteKw(ctx, args.Model, "create", []any{args.Values}, nil)
			if err != nil {
				return nil, err
			}
			return registry.TextResult(fmt.Sprintf("Created %s record with id %s", args.Model, string(raw))), nil
		})
}

type writeArgs struct {
	Model  string         `json:"model" jsonschema:"description=Technical model name"`
	IDs    []int64        `json:"ids" jsonschema:"description=Record ids to update"`
	Values map[string]any `json:"values" jsonschema:"description=Field values to write"`
}

func (ts *ToolSet) writeTool() registry.ToolDef {
	return registry.NewTool("odoo_write", "Update field values on existing records.",
		func(ctx context.Context, args writeArgs) (*mcp.CallToolResult, error) {
			if args.Model == "" || len(args.IDs) == 0 || len(args.Values) == 0 {
				return registry.Errorf("model, ids, and values are required"), nil
			}
			client, err := ts.conn()
			if err != nil {
				return nil, err
			}
			if _, err := client.ExecuteKw(ctx, args.Model, "write", []any{args.IDs, args.Values}, nil); err != nil {
				return nil, err
			}
			return registry.TextResult(fmt.Sprintf("Updated %d %s record(s)", len(args.IDs), args.Model)), nil
		})
}

type unlinkArgs struct {
	Model string  `json:"model" jsonschema:"description=Technical model name"`
	IDs   []int64 `json:"ids" jsonschema:"description=Record ids to delete"`
}

func (ts *ToolSet) unlinkTool() registry.ToolDef {
	return registry.NewTool("odoo_unlink", "Delete records by id.",
		func(ctx context.Context, args unlinkArgs) (*mcp.CallToolResult, error) {
			if args.Model == "" || len(args.IDs) == 0 {
				return registry.Errorf("model and ids are required"), nil
			}
			client, err := ts.conn()
			if err != nil {
				return nil, err
			}
			if _, err := client.ExecuteKw(ctx, args.Model, "unlink", []any{args.IDs}, nil); err != nil {
				return nil, err
			}
			return registry.TextResult(fmt.Sprintf("Deleted %d %s record(s)", len(args.IDs), args.Model)), nil
		})
}

type executeArgs struct {
	Model  string         `json:"model"`
	Method string         `json:"method"`
	Args   []any          `json:"args,omitempty"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

func (ts *ToolSet) executeTool() registry.ToolDef {
	desc := mcp.Tool{
		Name:        "odoo_execute",
		Description: "Call an arbitrary public method on a model via execute_kw. Escape hatch for operations not covered by the dedicated tools.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]mcp.SchemaProperty{
				"model":  {Type: mcp.Types("string"), Description: "Technical model name"},
				"method": {Type: mcp.Types("string"), Description: "Method name, e.g. name_search"},
				"args": {Type: mcp.Types("array"), Description: "Positional arguments",
					Items: &mcp.SchemaProperty{Type: mcp.Types("string", "number", "boolean", "object", "array", "null")}},
				"kwargs": {Type: mcp.Types("object"), Description: "Keyword arguments"},
			},
			Required: []string{"model", "method"},
		},
	}

	return registry.RawTool(desc, func(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResult, error) {
		var args executeArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return registry.Errorf("invalid arguments: %v", err), nil
		}
		if args.Model == "" || args.Method == "" {
			return registry.Errorf("model and method are required"), nil
		}
		client, err := ts.conn()
		if err != nil {
			return nil, err
		}

		rawRes, err := client.ExecuteKw(ctx, args.Model, args.Method, args.Args, args.Kwargs)
		if err != nil {
			return nil, err
		}
		// Record lists get the sanitizer treatment; any other shape passes through.
		var recs []map[string]any
		if jsonErr := json.Unmarshal(rawRes, &recs); jsonErr == nil && len(recs) > 0 {
			return ts.recordsResult(recs)
		}
		return rawJSONResult(rawRes), nil
	})
}

// sanitizedRecordsResult decodes a record list and runs it through the
// sanitizer before rendering.
func (ts *ToolSet) sanitizedRecordsResult(raw json.RawMessage) (*mcp.CallToolResult, error) {
	var recs []map[string]any
	if err := json.Unmarshal(raw, &recs); err != nil {
		return rawJSONResult(raw), nil
	}
	return ts.recordsResult(recs)
}

func (ts *ToolSet) recordsResult(recs []map[string]any) (*mcp.CallToolResult, error) {
	shaped, truncated := ts.sanitizer.Records(recs)
	body, err := json.MarshalIndent(shaped, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return registry.TextResult(string(body) + summarize(len(shaped), truncated)), nil
}

// rawJSONResult re-indents a raw JSON payload into a text block.
func rawJSONResult(raw json.RawMessage) *mcp.CallToolResult {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return registry.TextResult(string(raw))
	}
	return registry.JSONResult(v)
}
