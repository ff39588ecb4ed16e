// Package mocks holds in-memory test doubles shared across packages.
package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aimd54/datestreak/internal/cache"
)

// MockCache is an in-memory implementation of cache.Store.
// Used for testing without requiring a real Redis instance.
// Setting Err makes every call fail, which simulates an unavailable device store.
type MockCache struct {
	Err error

	data  map[string]string
	zsets map[string]map[string]float64
	mu    sync.RWMutex
}

var _ cache.Store = (*MockCache)(nil)

// NewMockCache creates a new mock cache instance
func NewMockCache() *MockCache {
	return &MockCache{
		data:  make(map[string]string),
		zsets: make(map[string]map[string]float64),
	}
}

// Get retrieves a value, returning cache.ErrCacheMiss like the Redis store.
func (m *MockCache) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return "", m.Err
	}
	val, exists := m.data[key]
	if !exists {
		return "", cache.ErrCacheMiss
	}
	return val, nil
}

// Set stores a value in the mock cache. Expiration is ignored.
func (m *MockCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	default:
		m.data[key] = fmt.Sprint(v)
	}
	return nil
}

// Del deletes keys from the mock cache
func (m *MockCache) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	for _, key := range keys {
		delete(m.data, key)
		delete(m.zsets, key)
	}
	return nil
}

// Incr increments a key's value
func (m *MockCache) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return 0, m.Err
	}

	var intVal int64
	if val, exists := m.data[key]; exists {
		if _, err := fmt.Sscanf(val, "%d", &intVal); err != nil {
			return 0, fmt.Errorf("value is not an integer: %w", err)
		}
	}

	intVal++
	m.data[key] = fmt.Sprintf("%d", intVal)
	return intVal, nil
}

// ZAdd adds or rescores a sorted set member.
func (m *MockCache) ZAdd(ctx context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if m.zsets[key] == nil {
		m.zsets[key] = make(map[string]float64)
	}
	m.zsets[key][member] = score
	return nil
}

// ZRangeByScore returns up to limit members scored at most max, lowest first.
func (m *MockCache) ZRangeByScore(ctx context.Context, key string, max float64, limit int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}

	members := make([]string, 0)
	for member, score := range m.zsets[key] {
		if score <= max {
			members = append(members, member)
		}
	}
	set := m.zsets[key]
	sort.Slice(members, func(i, j int) bool {
		if set[members[i]] != set[members[j]] {
			return set[members[i]] < set[members[j]]
		}
		return members[i] < members[j]
	})
	if limit > 0 && int64(len(members)) > limit {
		members = members[:limit]
	}
	return members, nil
}

// ZRem removes sorted set members.
func (m *MockCache) ZRem(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	for _, member := range members {
		delete(m.zsets[key], member)
	}
	return nil
}

// ZCard returns the size of a sorted set.
func (m *MockCache) ZCard(ctx context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return 0, m.Err
	}
	return int64(len(m.zsets[key])), nil
}

// Health reports the injected error, if any.
func (m *MockCache) Health(ctx context.Context) error {
	return m.Err
}

// Close is a no-op for mock
func (m *MockCache) Close() error {
	return nil
}

// Keys returns the stored plain keys, sorted.
func (m *MockCache) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clear resets the mock cache (useful for tests)
func (m *MockCache) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string]string)
	m.zsets = make(map[string]map[string]float64)
}
