// Package fieldcache caches Odoo model metadata (fields_get payloads and the
// model inventory). The metadata is stable and expensive to fetch, so the
// tool set consults a cache before hitting the backend. Backends: an
// in-process TTL map, or redis for deployments that restart often.
package fieldcache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// DefaultTTL is how long cached metadata stays fresh.
const DefaultTTL = 15 * time.Minute

// Cache stores serialized metadata blobs under string keys.
type Cache interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Set(ctx context.Context, key string, val json.RawMessage, ttl time.Duration) error
}

// Memory is an in-process TTL cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	val       json.RawMessage
	expiresAt time.Time
}

var _ Cache = (*Memory)(nil)

// NewMemory constructs an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.val, true, nil
}

func (m *Memory) Set(_ context.Context, key string, val json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{
		val:       append(json.RawMessage(nil), val...),
		expiresAt: time.Now().Add(ttl),
	}
	m.mu.Unlock()
	return nil
}
