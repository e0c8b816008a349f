package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/elnormous/contenttype"
)

var eventStreamMediaTypes = []contenttype.MediaType{
	contenttype.NewMediaType("text/event-stream"),
}

// handleSSE serves the keep-alive heartbeat stream for a valid session. The
// stream carries no data events, only comment frames on a fixed interval; it
// exists so intermediaries keep the logical connection open. Teardown happens
// on client disconnect.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		writeJSONError(w, http.StatusNotAcceptable, "this endpoint requires Accept: text/event-stream")
		return
	}

	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing Mcp-Session-Id header")
		return
	}
	if _, err := s.manager.Lookup(sessionID); err != nil {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown session %q", sessionID))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Initial comment so clients see bytes immediately.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	s.log.InfoContext(r.Context(), "sse stream opened", slog.String("session_id", sessionID))

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.log.InfoContext(r.Context(), "sse stream closed", slog.String("session_id", sessionID))
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
