package httpserver

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/odoomcp/odoo-mcp-go/credentials"
	"github.com/odoomcp/odoo-mcp-go/dispatch"
	"github.com/odoomcp/odoo-mcp-go/internal/jsonrpc"
	"github.com/odoomcp/odoo-mcp-go/internal/logctx"
	"github.com/odoomcp/odoo-mcp-go/mcp"
)

// maxBodyBytes bounds an inbound request body.
const maxBodyBytes = 10 * 1024 * 1024

// handleRPC is the JSON-RPC endpoint shared by all protocol methods. The
// initialize method additionally creates a session from the credential
// headers; every other method resolves an existing session or, in auto-login
// mode, falls through to the global controller.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeRPC(w, http.StatusBadRequest,
			jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, fmt.Sprintf("failed to read body: %v", err), nil))
		return
	}

	req, err := jsonrpc.UnmarshalRequest(body)
	if err != nil {
		writeRPC(w, http.StatusBadRequest,
			jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, fmt.Sprintf("parse error: %v", err), nil))
		return
	}

	meta := metaFor(r)

	// Session resolution happens before dispatch; the dispatcher itself is
	// session-agnostic and only sees the optional controller override.
	var override dispatch.Controller
	if mcp.Method(req.Method) == mcp.InitializeMethod {
		sess := s.manager.Create(r.Context(), credentials.FromHeader(r.Header))
		w.Header().Set(sessionIDHeader, sess.ID)
		meta.SessionID = sess.ID
		if sess.Controller != nil {
			override = sess.Controller
		}
		s.log.InfoContext(r.Context(), "session created",
			slog.String("session_id", sess.ID), slog.Bool("dedicated", sess.Dedicated()))
	} else {
		var ok bool
		override, ok = s.resolveSession(w, r, meta.SessionID)
		if !ok {
			return
		}
	}

	ctx := logctx.WithSessionData(r.Context(), &logctx.SessionData{
		SessionID: meta.SessionID,
		Dedicated: override != nil,
	})

	resp := s.dispatcher.Dispatch(ctx, req, meta, override)
	if resp == nil {
		// Notification: acknowledge with no body.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeRPC(w, http.StatusOK, resp)
}

// resolveSession maps a session id header to a controller override. With no
// session id, strict mode rejects the request while auto-login mode allows
// session-less calls on the global controller. An unknown id is always an
// error. The second return is false when a rejection was already written.
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request, sessionID string) (dispatch.Controller, bool) {
	if sessionID == "" {
		if !s.dispatcher.Config().AutoLogin {
			writeRPC(w, http.StatusBadRequest,
				jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeApplication,
					"missing Mcp-Session-Id header: initialize a session first", nil))
			return nil, false
		}
		return nil, true
	}

	sess, err := s.manager.Lookup(sessionID)
	if err != nil {
		writeRPC(w, http.StatusNotFound,
			jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeApplication,
				fmt.Sprintf("unknown session %q: initialize a new session", sessionID), nil))
		return nil, false
	}
	if sess.Controller != nil {
		return sess.Controller, true
	}
	return nil, true
}

// handleTerminate removes a session entirely; no tombstone remains.
func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing Mcp-Session-Id header")
		return
	}
	if !s.manager.Terminate(sessionID) {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown session %q", sessionID))
		return
	}
	s.log.InfoContext(r.Context(), "session terminated", slog.String("session_id", sessionID))
	writeJSON(w, http.StatusOK, map[string]any{"terminated": sessionID})
}
