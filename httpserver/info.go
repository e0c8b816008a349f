package httpserver

import (
	"net/http"
	"time"

	"github.com/odoomcp/odoo-mcp-go/mcp"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"uptime":   time.Since(s.startedAt).Round(time.Second).String(),
		"sessions": s.manager.Count(),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	cfg := s.dispatcher.Config()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":            cfg.ServerName,
		"version":         cfg.ServerVersion,
		"protocolVersion": mcp.LatestProtocolVersion,
		"autoLogin":       cfg.AutoLogin,
		"minimalTools":    cfg.MinimalTools,
		"simplifySchemas": cfg.SimplifySchemas,
	})
}

// handleDocs is the discovery endpoint: a JSON summary of the HTTP surface.
func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name": s.dispatcher.Config().ServerName,
		"endpoints": map[string]string{
			"POST /mcp":               "JSON-RPC 2.0: initialize, tools/list, tools/call. Initialize reads X-Odoo-* credential headers and returns Mcp-Session-Id.",
			"GET /mcp":                "SSE keep-alive heartbeat for an initialized session (Accept: text/event-stream).",
			"DELETE /mcp":             "Terminate the session named by Mcp-Session-Id.",
			"GET /tools":              "List tools (global controller).",
			"POST /tools/{name}/call": "Call one tool; body is the arguments object.",
			"POST /tools/batch":       "Call many tools concurrently; body is an array of {name, arguments}.",
			"GET /health":             "Liveness and session count.",
			"GET /info":               "Server identity and shaping configuration.",
		},
	})
}
