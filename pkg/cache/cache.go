// Package cache persists generation and embedding responses between runs so
// that re-running the pipeline over the same graph costs nothing.
package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrKeyNotFound is returned by Get for missing or expired keys.
var ErrKeyNotFound = errors.New("key not found in cache")

// Cache is a byte-valued key/value store with per-entry expiry. Keys carry a
// namespace prefix such as "llm:" or "emb:".
type Cache interface {
	// Set stores a value. A zero TTL never expires.
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	Close() error
}

// BadgerCache implements Cache using BadgerDB
type BadgerCache struct {
	db *badger.DB
}

// NewBadgerCache opens a cache at path. An empty path keeps the cache in
// memory for the lifetime of the process.
func NewBadgerCache(path string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &BadgerCache{db: db}, nil
}

func (c *BadgerCache) Set(key string, value []byte, ttl time.Duration) error {
	e := badger.NewEntry([]byte(key), value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(e)
	})
}

func (c *BadgerCache) Get(key string) ([]byte, error) {
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	return val, err
}

func (c *BadgerCache) Delete(key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Len counts the live keys starting with prefix. An empty prefix counts
// every key.
func (c *BadgerCache) Len(prefix string) (int, error) {
	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// DropPrefix removes every key starting with prefix, e.g. "llm:" to force
// summaries to be regenerated while keeping cached embeddings.
func (c *BadgerCache) DropPrefix(prefix string) error {
	if prefix == "" {
		return c.db.DropAll()
	}
	return c.db.DropPrefix([]byte(prefix))
}

func (c *BadgerCache) Close() error {
	return c.db.Close()
}
