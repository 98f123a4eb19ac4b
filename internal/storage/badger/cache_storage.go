package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/interfaces"
)

// CacheStorage is a TTL cache on the raw Badger handle. Entries expire
// through Badger's native TTL so no sweeper is needed.
type CacheStorage struct {
	db     *BadgerDB
	prefix string
	logger arbor.ILogger
}

// NewCacheStorage creates a cache whose keys live under namespace,
// e.g. "eodhd" or "llm".
func NewCacheStorage(db *BadgerDB, namespace string, logger arbor.ILogger) *CacheStorage {
	return &CacheStorage{
		db:     db,
		prefix: "cache:" + namespace + ":",
		logger: logger,
	}
}

var _ interfaces.ResponseCache = (*CacheStorage)(nil)

// Get returns the cached value, or false when absent or expired
func (c *CacheStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.db.Store().Badger().View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(c.prefix + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return value, true, nil
}

// Set stores value under key. A zero ttl keeps the entry until Clear.
func (c *CacheStorage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := badger.NewEntry([]byte(c.prefix+key), value)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}

	err := c.db.Store().Badger().Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Clear drops every entry in this namespace
func (c *CacheStorage) Clear(ctx context.Context) error {
	if err := c.db.Store().Badger().DropPrefix([]byte(c.prefix)); err != nil {
		return fmt.Errorf("failed to clear cache %s: %w", c.prefix, err)
	}
	c.logger.Debug().Str("prefix", c.prefix).Msg("Cache cleared")
	return nil
}
