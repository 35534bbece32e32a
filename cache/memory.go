package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

type subscriber struct {
	id      int
	pattern string
	cb      func(key string)
}

// MemoryStore is a single-instance Store. Values are stored JSON-encoded so
// callers observe the same copy semantics as with Redis.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	locks   map[string]time.Time
	gens    map[string]int64
	subs    []subscriber
	nextID  int
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		locks:   make(map[string]time.Time),
		gens:    make(map[string]int64),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok && !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(e.data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Generation(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ok := m.gens[key]
	if !ok {
		// Tracked from here on so prefix invalidation reaches in-flight loads.
		m.gens[key] = 0
	}
	return gen, nil
}

func (m *MemoryStore) SetIfGeneration(ctx context.Context, key string, value any, ttl time.Duration, gen int64) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gens[key] != gen {
		return false, nil
	}
	m.entries[key] = e
	return true, nil
}

func (m *MemoryStore) Invalidate(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.gens[key]++
	m.mu.Unlock()
	m.notify(key)
	return nil
}

func (m *MemoryStore) InvalidatePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	var keys []string
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
			delete(m.entries, k)
		}
	}
	for k := range m.gens {
		if strings.HasPrefix(k, prefix) {
			m.gens[k]++
		}
	}
	m.mu.Unlock()
	for _, k := range keys {
		m.notify(k)
	}
	return nil
}

func (m *MemoryStore) Subscribe(pattern string, cb func(key string)) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, subscriber{id: id, pattern: pattern, cb: cb})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

func (m *MemoryStore) notify(key string) {
	m.mu.Lock()
	var cbs []func(string)
	for _, s := range m.subs {
		if matches(s.pattern, key) {
			cbs = append(cbs, s.cb)
		}
	}
	m.mu.Unlock()
	for _, cb := range cbs {
		cb(key)
	}
}

func (m *MemoryStore) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, held := m.locks[key]; held && m.now().Before(exp) {
		return false, nil
	}
	m.locks[key] = m.now().Add(ttl)
	return true, nil
}

func (m *MemoryStore) Unlock(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.locks, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.subs = nil
	m.mu.Unlock()
	return nil
}
