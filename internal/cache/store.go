// Package cache provides the client-side entity cache for spaces and
// the optimistic-update protocol lifecycle mutations go through.
package cache

import (
	"context"
	"errors"
	"sync"

	"agora/gateway/internal/space"
)

// ErrNotFound is returned when no entry exists for a key.
var ErrNotFound = errors.New("cache entry not found")

// Store is the shared mutable resource keyed by space identity. All
// writers go through the Optimistic helper; backends only need plain
// get/set/delete.
type Store interface {
	GetSpace(ctx context.Context, key string) (*space.Space, error)
	SetSpace(ctx context.Context, key string, value *space.Space) error
	DeleteSpace(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Key builds the cache key for a space identity.
func Key(spacePK string) string {
	return "space:" + spacePK
}

// IncentiveKey addresses a space's cached incentive state. Finish
// invalidates it so incentive surfaces refetch after selection.
func IncentiveKey(spacePK string) string {
	return "incentive:" + spacePK
}

// Memory is the in-process backend. A mutex serializes writers so the
// read-snapshot/transform/write sequence of the optimistic protocol
// stays atomic per entry.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*space.Space
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*space.Space)}
}

func (m *Memory) GetSpace(_ context.Context, key string) (*space.Space, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return entry.Clone(), nil
}

func (m *Memory) SetSpace(_ context.Context, key string, value *space.Space) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value.Clone()
	return nil
}

func (m *Memory) DeleteSpace(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }
