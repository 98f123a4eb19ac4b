package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/valuescreen/internal/common"
)

func TestManager_CachesAndCheckpoint(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	defer m.Close()

	assert.Same(t, m.ResponseCache(CacheNamespaceLLM), m.ResponseCache(CacheNamespaceLLM))

	require.NoError(t, m.ResponseCache(CacheNamespaceEODHD).Set(ctx, "fundamentals/KO.US", []byte("{}"), 0))
	require.NoError(t, m.CheckpointStorage().Append(ctx, testRow("US:KO")))

	require.NoError(t, m.ClearCaches(ctx))

	_, ok, err := m.ResponseCache(CacheNamespaceEODHD).Get(ctx, "fundamentals/KO.US")
	require.NoError(t, err)
	assert.False(t, ok, "cache cleared")

	n, err := m.CheckpointStorage().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "clearing caches keeps the checkpoint")
}
