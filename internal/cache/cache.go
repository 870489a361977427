// Package cache holds the read-side cache used by the catalog and invalidated
// by order operations.
package cache

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"storefront/internal/logging"
)

//go:generate mockgen -source=cache.go -destination=mocks/cache_mock.go -package=mocks Cache

// Cache кэш чтения. Patterns use glob syntax (`*`, `?`, `[...]`).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

func ProductKey(id int64) string { return fmt.Sprintf("product:%d", id) }

func ProductListKey(query string) string { return "products:" + query }

func CategoryPattern(categoryID int64) string { return fmt.Sprintf("category:%d:*", categoryID) }

const ProductListPattern = "products:*"

// InvalidateAll drops every pattern and only logs failures; callers never
// see cache errors.
func InvalidateAll(ctx context.Context, c Cache, patterns ...string) {
	for _, p := range patterns {
		if err := c.Invalidate(ctx, p); err != nil {
			logging.Warn(logging.Fields{Component: "cache", Step: "invalidate", Status: p, Err: err})
		}
	}
}

// Memory in-memory реализация с TTL
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok || (!e.expires.IsZero() && m.now().After(e.expires)) {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *Memory) Invalidate(ctx context.Context, pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.entries, k)
		}
	}
	return nil
}

// Noop отключённый кэш
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Invalidate(context.Context, string) error { return nil }
