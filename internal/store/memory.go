package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process StateStore used by tests and local development.
// TTLs are honored lazily on access against the Now clock, mirroring the
// store-side expiry the Redis implementation relies on.
type Memory struct {
	// Now is the clock used for expiry checks. Tests override it.
	Now func() time.Time

	mu       sync.Mutex
	sets     map[string]map[string]struct{}
	hashes   map[string]map[string]string
	counters map[string]int64
	expiry   map[string]time.Time
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		Now:      time.Now,
		sets:     make(map[string]map[string]struct{}),
		hashes:   make(map[string]map[string]string),
		counters: make(map[string]int64),
		expiry:   make(map[string]time.Time),
	}
}

func (m *Memory) purgeLocked(key string) {
	deadline, ok := m.expiry[key]
	if !ok || m.Now().Before(deadline) {
		return
	}
	delete(m.sets, key)
	delete(m.hashes, key)
	delete(m.counters, key)
	delete(m.expiry, key)
}

func (m *Memory) touchLocked(key string, ttl time.Duration) {
	if ttl > 0 {
		m.expiry[key] = m.Now().Add(ttl)
	}
}

func (m *Memory) SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	m.touchLocked(key, ttl)
	return nil
}

func (m *Memory) SetRemove(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	set, ok := m.sets[key]
	if !ok {
		return nil
	}
	for _, member := range members {
		delete(set, member)
	}
	if len(set) == 0 {
		delete(m.sets, key)
	}
	return nil
}

func (m *Memory) SetMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	set := m.sets[key]
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	return members, nil
}

func (m *Memory) SetCount(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	return int64(len(m.sets[key])), nil
}

func (m *Memory) HashSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	hash, ok := m.hashes[key]
	if !ok {
		hash = make(map[string]string)
		m.hashes[key] = hash
	}
	for f, v := range fields {
		hash[f] = v
	}
	m.touchLocked(key, ttl)
	return nil
}

func (m *Memory) HashGet(ctx context.Context, key, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	return m.hashes[key][field], nil
}

func (m *Memory) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	out := make(map[string]string, len(m.hashes[key]))
	for f, v := range m.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (m *Memory) HashDelete(ctx context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	hash, ok := m.hashes[key]
	if !ok {
		return nil
	}
	for _, f := range fields {
		delete(hash, f)
	}
	if len(hash) == 0 {
		delete(m.hashes, key)
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets, key)
	delete(m.hashes, key)
	delete(m.counters, key)
	delete(m.expiry, key)
	return nil
}

func (m *Memory) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	m.touchLocked(key, ttl)
	return nil
}

func (m *Memory) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	m.counters[key]++
	if m.counters[key] == 1 {
		m.touchLocked(key, ttl)
	}
	return m.counters[key], nil
}
