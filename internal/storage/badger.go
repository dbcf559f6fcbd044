package storage

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v3"
)

// BadgerStore is the embedded-KV Store backing round checkpoints and
// gossip history: one process, one on-disk directory, no network hop
// between an actor persisting a round and the bytes landing on disk.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (creating if absent) a BadgerDB directory at path.
// sync enables SyncWrites, trading write throughput for a guarantee that a
// Put returns only after its row is durable — set from StorageConfig.Sync.
func NewBadgerStore(path string, sync bool) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithSyncWrites(sync)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger db at %s: %w", path, err)
	}

	return &BadgerStore{db: db}, nil
}

// Get implements Store.
func (s *BadgerStore) Get(_ context.Context, key []byte) ([]byte, error) {
	var valCopy []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			valCopy = append([]byte{}, val...)
			return nil
		})
	})

	if err == badger.ErrKeyNotFound {
		return nil, nil
	}

	return valCopy, err
}

// Set implements Store.
func (s *BadgerStore) Set(_ context.Context, key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Delete implements Store.
func (s *BadgerStore) Delete(_ context.Context, key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Has implements Store.
func (s *BadgerStore) Has(_ context.Context, key []byte) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})

	if err == badger.ErrKeyNotFound {
		return false, nil
	}

	return err == nil, err
}

// Iterate implements Store.
func (s *BadgerStore) Iterate(_ context.Context, prefix []byte, fn func(key, value []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			err := item.Value(func(val []byte) error {
				key := item.KeyCopy(nil)
				valCopy := append([]byte{}, val...)
				return fn(key, valCopy)
			})

			if err != nil {
				return err
			}
		}

		return nil
	})
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
