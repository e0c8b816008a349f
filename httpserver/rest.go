package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/odoomcp/odoo-mcp-go/internal/jsonrpc"
	"github.com/odoomcp/odoo-mcp-go/mcp"
)

// The REST convenience surface mirrors the JSON-RPC methods for clients that
// do not want to build protocol envelopes. It routes through the same
// dispatcher as the protocol endpoint but always against the process-global
// controller: per-session credential isolation is a protocol-surface feature.

// restRequest builds a synthetic JSON-RPC request for the dispatcher.
func restRequest(method mcp.Method, params any) (*jsonrpc.Request, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &jsonrpc.Request{
		JSONRPCVersion: jsonrpc.ProtocolVersion,
		Method:         string(method),
		Params:         raw,
		ID:             jsonrpc.NewRequestID("rest"),
	}, nil
}

// statusForRPCError maps dispatcher error codes onto HTTP statuses.
func statusForRPCError(e *jsonrpc.Error) int {
	switch e.Code {
	case jsonrpc.ErrorCodeParseError, jsonrpc.ErrorCodeInvalidRequest, jsonrpc.ErrorCodeInvalidParams:
		return http.StatusBadRequest
	case jsonrpc.ErrorCodeMethodNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleRESTListTools(w http.ResponseWriter, r *http.Request) {
	req, err := restRequest(mcp.ToolsListMethod, nil)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := s.dispatcher.Dispatch(r.Context(), req, metaFor(r), nil)
	if resp.Error != nil {
		writeJSON(w, statusForRPCError(resp.Error), map[string]any{"error": resp.Error})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Result)
}

func (s *Server) handleRESTCallTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	args, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("failed to read body: %v", err))
		return
	}
	if len(args) == 0 {
		args = []byte(`{}`)
	}

	req, err := restRequest(mcp.ToolsCallMethod, mcp.CallToolRequestReceived{Name: name, Arguments: args})
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := s.dispatcher.Dispatch(r.Context(), req, metaFor(r), nil)
	if resp.Error != nil {
		writeJSON(w, statusForRPCError(resp.Error), map[string]any{"error": resp.Error})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Result)
}

// batchCall is one entry in a batch request body.
type batchCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// batchResult reports one entry's outcome. The envelope is always HTTP 200;
// partial failure lives in the per-item Success flag.
type batchResult struct {
	Name    string          `json:"name"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpc.Error  `json:"error,omitempty"`
}

// handleRESTBatch executes all calls concurrently and joins on completion of
// every one, regardless of individual failures.
func (s *Server) handleRESTBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("failed to read body: %v", err))
		return
	}

	var calls []batchCall
	if err := json.Unmarshal(body, &calls); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("body must be a JSON array of {name, arguments}: %v", err))
		return
	}
	if len(calls) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"results": []batchResult{}})
		return
	}

	meta := metaFor(r)
	results := make([]batchResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call batchCall) {
			defer wg.Done()
			results[i] = batchResult{Name: call.Name}

			req, err := restRequest(mcp.ToolsCallMethod, mcp.CallToolRequestReceived{Name: call.Name, Arguments: call.Arguments})
			if err != nil {
				results[i].Error = &jsonrpc.Error{Code: jsonrpc.ErrorCodeInternalError, Message: err.Error()}
				return
			}

			resp := s.dispatcher.Dispatch(r.Context(), req, meta, nil)
			if resp.Error != nil {
				results[i].Error = resp.Error
				return
			}
			results[i].Success = true
			results[i].Result = resp.Result
		}(i, call)
	}
	wg.Wait()

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
