// Package cache is the client-side read-through cache of entity collections.
//
// Entries are addressed by key and only ever replaced by a completed fetch.
// Invalidation marks an entry stale and bumps the key's generation; a fetch
// that began under an older generation is returned to its caller but never
// stored, so pre-mutation data cannot overwrite an invalidation.
package cache

import "context"

// Entry is a cached collection as raw bytes.
type Entry struct {
	Data  []byte
	Fresh bool
}

// Backend stores entries. Implementations must be safe for concurrent use.
type Backend interface {
	// Load returns the entry for key, if any, and the key's current generation.
	Load(ctx context.Context, key string) (Entry, bool, uint64, error)
	// Store saves data as a fresh entry if the key is still at generation gen.
	// It reports whether the entry was written.
	Store(ctx context.Context, key string, data []byte, gen uint64) (bool, error)
	// Invalidate marks the entry stale and advances the key's generation.
	Invalidate(ctx context.Context, key string) error
}
