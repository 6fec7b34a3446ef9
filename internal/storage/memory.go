package storage

import (
	"context"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	counter   int64
	set       map[string]struct{}
	list      []string
	expiresAt time.Time // zero = no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is a process-local CounterStore. It backs single-instance and
// development deployments where no shared redis is configured, and doubles as
// the deterministic store for tests: Now is swappable so window boundaries
// and TTL expiry can be driven by a fake clock.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]*memoryEntry

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*memoryEntry),
		Now:  time.Now,
	}
}

// get returns a live entry, lazily dropping it if expired. Callers hold mu.
func (m *MemoryStore) get(key string) *memoryEntry {
	e, ok := m.data[key]
	if !ok {
		return nil
	}
	if e.expired(m.Now()) {
		delete(m.data, key)
		return nil
	}
	return e
}

func (m *MemoryStore) IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key)
	if e == nil {
		e = &memoryEntry{}
		m.data[key] = e
	}

	e.counter++
	e.expiresAt = m.Now().Add(ttl)
	return e.counter, nil
}

func (m *MemoryStore) Decr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key)
	if e == nil {
		e = &memoryEntry{}
		m.data[key] = e
	}

	e.counter--
	return e.counter, nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key)
	if e == nil {
		return "", ErrNotFound
	}
	if e.value == "" && e.counter != 0 {
		return strconv.FormatInt(e.counter, 10), nil
	}
	return e.value, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.Now().Add(ttl)
	}
	m.data[key] = e
	return nil
}

func (m *MemoryStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *MemoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	var keys []string
	for key, e := range m.data {
		if e.expired(now) {
			delete(m.data, key)
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) SAdd(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key)
	if e == nil {
		e = &memoryEntry{set: make(map[string]struct{})}
		m.data[key] = e
	}
	if e.set == nil {
		e.set = make(map[string]struct{})
	}

	for _, member := range members {
		e.set[member] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) SRem(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key)
	if e == nil || e.set == nil {
		return nil
	}

	for _, member := range members {
		delete(e.set, member)
	}
	return nil
}

func (m *MemoryStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key)
	if e == nil || e.set == nil {
		return false, nil
	}

	_, ok := e.set[member]
	return ok, nil
}

func (m *MemoryStore) SMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key)
	if e == nil || e.set == nil {
		return nil, nil
	}

	members := make([]string, 0, len(e.set))
	for member := range e.set {
		members = append(members, member)
	}

	sort.Strings(members)
	return members, nil
}

func (m *MemoryStore) PushCapped(ctx context.Context, key, value string, max int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key)
	if e == nil {
		e = &memoryEntry{}
		m.data[key] = e
	}

	e.list = append([]string{value}, e.list...)
	if int64(len(e.list)) > max {
		e.list = e.list[:max]
	}
	e.expiresAt = m.Now().Add(ttl)
	return nil
}

func (m *MemoryStore) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key)
	if e == nil {
		return nil, nil
	}

	n := int64(len(e.list))
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil, nil
	}

	out := make([]string, stop-start+1)
	copy(out, e.list[start:stop+1])
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
