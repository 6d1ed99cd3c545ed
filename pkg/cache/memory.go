package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
)

// Key derives the cache key for an identifier and its resolved download URL.
func Key(id, url string) string {
	sum := sha256.Sum256([]byte(url))
	return id + "_" + hex.EncodeToString(sum[:])[:16]
}

// Memory is an in-process Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
	bytes   int64
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

// Get implements Cache.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	data, ok := m.entries[key]
	m.mu.RUnlock()

	if ok {
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
	return data, ok
}

// Put implements Cache. The caller must not modify data afterwards.
func (m *Memory) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.entries[key]; ok {
		m.bytes -= int64(len(old))
	}
	m.entries[key] = data
	m.bytes += int64(len(data))
}

// Info returns current usage counters.
func (m *Memory) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Info{
		Entries: len(m.entries),
		Bytes:   m.bytes,
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
	}
}
