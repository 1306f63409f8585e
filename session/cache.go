package session

import (
	"context"
	"sync"
)

// Cache stores the live sessions of a Registry by id. The registry serializes
// create and delete itself, so implementations only need to be safe for
// concurrent use; a shared store can replace MemoryCache through WithCache.
type Cache[S any] interface {
	Set(ctx context.Context, key string, val S) error
	Get(ctx context.Context, key string) (S, bool, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Values returns a point-in-time copy of every stored value.
	Values(ctx context.Context) ([]S, error)
	Len(ctx context.Context) (int, error)
}

// MemoryCache is the in-process Cache used by default.
type MemoryCache[S any] struct {
	mu sync.RWMutex
	m  map[string]S
}

func NewMemoryCache[S any]() *MemoryCache[S] {
	return &MemoryCache[S]{m: map[string]S{}}
}

func (m *MemoryCache[S]) Set(ctx context.Context, key string, val S) error {
	m.mu.Lock()
	m.m[key] = val
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache[S]) Get(ctx context.Context, key string) (S, bool, error) {
	m.mu.RLock()
	val, ok := m.m[key]
	m.mu.RUnlock()
	return val, ok, nil
}

func (m *MemoryCache[S]) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.m, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache[S]) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	_, ok := m.m[key]
	m.mu.RUnlock()
	return ok, nil
}

func (m *MemoryCache[S]) Values(ctx context.Context) ([]S, error) {
	m.mu.RLock()
	out := make([]S, 0, len(m.m))
	for _, v := range m.m {
		out = append(out, v)
	}
	m.mu.RUnlock()
	return out, nil
}

func (m *MemoryCache[S]) Len(ctx context.Context) (int, error) {
	m.mu.RLock()
	n := len(m.m)
	m.mu.RUnlock()
	return n, nil
}

var _ Cache[int] = (*MemoryCache[int])(nil)
