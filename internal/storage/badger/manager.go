package badger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db         *BadgerDB
	checkpoint *CheckpointStorage
	logger     arbor.ILogger

	mu     sync.Mutex
	caches map[string]*CacheStorage
}

// NewManager opens the database and restores the checkpoint sequence
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:         db,
		checkpoint: NewCheckpointStorage(db, logger),
		logger:     logger,
		caches:     make(map[string]*CacheStorage),
	}

	logger.Debug().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

// CheckpointStorage returns the checkpoint store
func (m *Manager) CheckpointStorage() interfaces.CheckpointStorage {
	return m.checkpoint
}

// ResponseCache returns the namespaced response cache, creating it on first use
func (m *Manager) ResponseCache(namespace string) interfaces.ResponseCache {
	return m.cache(namespace)
}

func (m *Manager) cache(namespace string) *CacheStorage {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.caches[namespace]; ok {
		return c
	}
	c := NewCacheStorage(m.db, namespace, m.logger)
	m.caches[namespace] = c
	return c
}

// ClearCaches empties every namespace handed out so far plus the known upstreams
func (m *Manager) ClearCaches(ctx context.Context) error {
	for _, namespace := range []string{CacheNamespaceEODHD, CacheNamespaceLLM} {
		m.cache(namespace)
	}

	m.mu.Lock()
	caches := make([]*CacheStorage, 0, len(m.caches))
	for _, c := range m.caches {
		caches = append(caches, c)
	}
	m.mu.Unlock()

	for _, c := range caches {
		if err := c.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear response cache: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Cache namespaces for the two upstreams
const (
	CacheNamespaceEODHD = "eodhd"
	CacheNamespaceLLM   = "llm"
)
