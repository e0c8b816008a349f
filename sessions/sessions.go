// Package sessions tracks logical client connections. A session is created
// by the HTTP transport on the protocol initialize method, looked up on every
// subsequent request, and removed on explicit termination. Sessions that
// presented valid backend credentials own a dedicated controller; all others
// defer to the process-global one.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/odoomcp/odoo-mcp-go/mcp"
)

// ErrNotFound is returned when a session id is unknown to the store.
var ErrNotFound = errors.New("session not found")

// Controller is the session layer's view of a backend controller.
type Controller interface {
	Tools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error)
}

// Session is one logical client connection.
type Session struct {
	ID        string
	CreatedAt time.Time

	// Controller is the session's dedicated backend controller. Once set it
	// is never replaced. A nil Controller means every tool call in this
	// session uses the process-global controller instead.
	Controller Controller
}

// Dedicated reports whether the session owns its own controller.
func (s *Session) Dedicated() bool { return s.Controller != nil }

// Store is the process-wide session table. Implementations must be safe for
// concurrent use. The default store holds sessions forever; eviction policies
// are a store concern, not a lifecycle one.
type Store interface {
	Get(id string) (*Session, bool)
	Put(s *Session)
	Delete(id string) bool
	Len() int
}
