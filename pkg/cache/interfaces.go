// Package cache holds downloaded containers for the lifetime of a process.
package cache

// Cache stores raw container bytes by key.
//
// Implementations must be safe for concurrent use. Concurrent Puts for the same key are
// not coordinated: the last write wins, which is harmless because every writer for a
// key carries identical bytes.
type Cache interface {
	// Get returns the stored bytes and whether the key was present.
	Get(key string) ([]byte, bool)
	// Put stores data under key, replacing any previous value.
	Put(key string, data []byte)
}

// Info is a snapshot of cache usage.
type Info struct {
	Entries int
	Bytes   int64
	Hits    int64
	Misses  int64
}
