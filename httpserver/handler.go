// Package httpserver is the HTTP transport adapter. It owns session-id
// extraction and creation, credential-header plumbing, the REST convenience
// surface, batch execution, and the SSE heartbeat; all protocol semantics are
// delegated to the dispatcher.
package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/odoomcp/odoo-mcp-go/dispatch"
	"github.com/odoomcp/odoo-mcp-go/internal/jsonrpc"
	"github.com/odoomcp/odoo-mcp-go/internal/logctx"
	"github.com/odoomcp/odoo-mcp-go/sessions"
)

// Canonical header names; Go matches headers case-insensitively.
const (
	sessionIDHeader       = "Mcp-Session-Id"
	protocolVersionHeader = "Mcp-Protocol-Version"
	authorizationHeader   = "Authorization"
)

// requestTimeout bounds JSON-RPC and REST request handling. It terminates
// the connection only; in-flight backend work is not cancelled beyond the
// request context.
const requestTimeout = 25 * time.Second

// defaultHeartbeatInterval is the SSE keep-alive cadence.
const defaultHeartbeatInterval = 30 * time.Second

// Server is the HTTP transport.
type Server struct {
	dispatcher *dispatch.Dispatcher
	manager    *sessions.Manager
	log        *slog.Logger

	bearerToken string
	heartbeat   time.Duration
	startedAt   time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithBearerToken enables the pass-through bearer check on protocol routes.
func WithBearerToken(token string) Option {
	return func(s *Server) { s.bearerToken = token }
}

// WithHeartbeatInterval overrides the SSE keep-alive cadence.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Server) { s.heartbeat = d }
}

// New constructs the HTTP transport around a dispatcher and session manager.
func New(d *dispatch.Dispatcher, mgr *sessions.Manager, log *slog.Logger, opts ...Option) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		dispatcher: d,
		manager:    mgr,
		log:        log,
		heartbeat:  defaultHeartbeatInterval,
		startedAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestContext)

	r.Get("/", s.handleDocs)
	r.Get("/health", s.handleHealth)
	r.Get("/info", s.handleInfo)

	r.Route("/mcp", func(r chi.Router) {
		r.Use(s.requireBearer)
		r.With(middleware.Timeout(requestTimeout)).Post("/", s.handleRPC)
		r.Get("/", s.handleSSE)
		r.Delete("/", s.handleTerminate)
	})

	r.Route("/tools", func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Use(middleware.Timeout(requestTimeout))
		r.Get("/", s.handleRESTListTools)
		r.Post("/batch", s.handleRESTBatch)
		r.Post("/{name}/call", s.handleRESTCallTool)
	})

	return r
}

// requestContext tags the request context for log enrichment and echoes the
// protocol-version header.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
			RequestID:  uuid.NewString(),
			Method:     r.Method,
			UserAgent:  r.UserAgent(),
			RemoteAddr: r.RemoteAddr,
			Path:       r.URL.Path,
		})
		if pv := r.Header.Get(protocolVersionHeader); pv != "" {
			w.Header().Set(protocolVersionHeader, pv)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireBearer enforces the configured token by simple comparison. This is
// pass-through auth, not a security layer; TLS and real enforcement live in
// front of this server.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.bearerToken != "" && r.Header.Get(authorizationHeader) != "Bearer "+s.bearerToken {
			writeJSONError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// metaFor collects the transport extras the dispatcher consults for shaping.
func metaFor(r *http.Request) dispatch.Meta {
	return dispatch.Meta{
		UserAgent:       r.UserAgent(),
		SessionID:       r.Header.Get(sessionIDHeader),
		ProtocolVersion: r.Header.Get(protocolVersionHeader),
	}
}

// writeJSON emits a JSON body with the given HTTP status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError emits a minimal transport-level error body:
// {"error":{"code":<httpStatus>,"message":"<reason>"}}.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// writeRPC emits a JSON-RPC envelope with the given HTTP status.
func writeRPC(w http.ResponseWriter, status int, resp *jsonrpc.Response) {
	writeJSON(w, status, resp)
}
