package storage

import "context"

// Store is the keyed row store internal/persistence layers its round and
// gossip tables over: plain byte-string keys, JSON-encoded values, no
// transactions spanning multiple keys. Every write is last-writer-wins by
// construction — callers never need compare-and-swap because the actors
// above already resolve conflicting updates before a row is persisted.
type Store interface {
	// Get retrieves the value stored under key, (nil, nil) if absent.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Set overwrites the value stored under key.
	Set(ctx context.Context, key, value []byte) error

	// Delete removes key, a no-op if it was already absent.
	Delete(ctx context.Context, key []byte) error

	// Has reports whether key currently has a value.
	Has(ctx context.Context, key []byte) (bool, error)

	// Iterate calls fn for every key carrying prefix, in the underlying
	// engine's natural key order.
	Iterate(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error

	// Close releases the store's underlying resources.
	Close() error
}
