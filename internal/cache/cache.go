package cache

import (
	"context"
	"sync"
	"time"
)

// Store is a TTL key-value store for normalized upstream payloads.
// Values are raw JSON bytes, so a cached JSON null is a present entry
// and is distinguishable from a miss.
type Store interface {
	// Get returns the stored value and whether the key is present.
	// Reading never refreshes an entry's TTL.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key for ttl, overwriting any previous entry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Store with per-entry expiry.
// The zero MaxItems means unbounded; otherwise Set evicts expired and
// then arbitrary entries to stay under the cap (best effort).
type Memory struct {
	MaxItems int

	// Now is the clock used for expiry checks. Defaults to time.Now;
	// tests swap it out.
	Now func() time.Time

	mu    sync.RWMutex
	items map[string]entry
	done  chan struct{}
}

func NewMemory() *Memory {
	m := &Memory{
		Now:   time.Now,
		items: make(map[string]entry),
		done:  make(chan struct{}),
	}
	go m.backgroundCleaner()
	return m
}

// Close stops the background cleaner.
func (m *Memory) Close() {
	close(m.done)
}

func (m *Memory) backgroundCleaner() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.done:
			return
		}
	}
}

func (m *Memory) sweep() {
	now := m.Now()
	m.mu.Lock()
	for k, e := range m.items {
		if now.After(e.expiresAt) {
			delete(m.items, k)
		}
	}
	m.mu.Unlock()
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || m.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	v := make([]byte, len(value))
	copy(v, value)
	now := m.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = entry{value: v, expiresAt: now.Add(ttl)}
	if m.MaxItems > 0 && len(m.items) > m.MaxItems {
		for k, e := range m.items {
			if k == key {
				continue
			}
			if now.After(e.expiresAt) {
				delete(m.items, k)
			}
			if len(m.items) <= m.MaxItems {
				return nil
			}
		}
		for k := range m.items {
			if k == key {
				continue
			}
			if len(m.items) <= m.MaxItems {
				break
			}
			delete(m.items, k)
		}
	}
	return nil
}
