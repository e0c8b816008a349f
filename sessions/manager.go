package sessions

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odoomcp/odoo-mcp-go/credentials"
)

// DefaultConnectTool is the tool invoked with extracted credentials when a
// session brings its own backend identity.
const DefaultConnectTool = "odoo_connect"

// ControllerFactory builds a fresh, isolated controller for one session.
type ControllerFactory func() Controller

// Manager governs session creation, lookup, and termination against an
// injected store.
type Manager struct {
	store       Store
	newCtrl     ControllerFactory
	connectTool string
	log         *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithConnectTool overrides the tool name invoked during credentialed
// session creation.
func WithConnectTool(name string) ManagerOption {
	return func(m *Manager) { m.connectTool = name }
}

// NewManager constructs a Manager. factory is invoked once per credentialed
// session to obtain an isolated controller.
func NewManager(store Store, factory ControllerFactory, log *slog.Logger, opts ...ManagerOption) *Manager {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	m := &Manager{
		store:       store,
		newCtrl:     factory,
		connectTool: DefaultConnectTool,
		log:         log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create makes a new session from the inbound credential bag and stores it.
// When the bag yields a complete credential record, the session gets a
// dedicated controller and exactly one connect attempt is made with those
// credentials. A failed connect never blocks creation; the session simply
// holds an unconnected controller until a manual reconnect succeeds.
func (m *Manager) Create(ctx context.Context, bag credentials.Bag) *Session {
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
	}

	if creds := credentials.Extract(bag); creds != nil {
		ctrl := m.newCtrl()
		res, err := ctrl.CallTool(ctx, m.connectTool, creds.Args())
		switch {
		case err != nil:
			m.log.Warn("session connect failed", slog.String("session_id", sess.ID), slog.Any("error", err))
		case res != nil && res.IsError:
			m.log.Warn("session connect rejected", slog.String("session_id", sess.ID))
		default:
			m.log.Info("session connected", slog.String("session_id", sess.ID))
		}
		sess.Controller = ctrl
	} else {
		m.log.Debug("session created without credentials; using global controller", slog.String("session_id", sess.ID))
	}

	m.store.Put(sess)
	return sess
}

// Lookup resolves a session id, returning ErrNotFound for unknown or empty ids.
func (m *Manager) Lookup(id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	sess, ok := m.store.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Terminate removes the session entirely. It reports whether a session
// existed under the given id.
func (m *Manager) Terminate(id string) bool {
	return m.store.Delete(id)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int { return m.store.Len() }
