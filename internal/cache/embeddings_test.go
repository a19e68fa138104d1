package cache_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqleval/sqleval/internal/cache"
)

const embedModel = "text-embedding-3-small"

func openStore(t *testing.T, opts cache.Options) *cache.Store {
	t.Helper()
	s, err := cache.Open(filepath.Join(t.TempDir(), "sqleval.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// snippetVector is a 64-dim vector, 256 bytes stored.
func snippetVector(seed float32) []float32 {
	v := make([]float32, 64)
	for i := range v {
		v[i] = seed + float32(i)/100
	}
	return v
}

func TestEmbeddingCache_StoreLookup(t *testing.T) {
	ctx := context.Background()
	c := openStore(t, cache.Options{EmbeddingMaxMB: 1}).Embeddings
	snippet := "Table: events\nColumns:\n  - user_id (BIGINT)\n  - event_date (DATE)"

	_, ok, err := c.Lookup(ctx, embedModel, snippet)
	require.NoError(t, err)
	assert.False(t, ok)

	vec := []float32{0.25, -1.5, 3}
	require.NoError(t, c.Store(ctx, embedModel, snippet, vec))

	got, ok, err := c.Lookup(ctx, embedModel, snippet)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vec, got)

	_, ok, err = c.Lookup(ctx, "nomic-embed-text", snippet)
	require.NoError(t, err)
	assert.False(t, ok, "vectors are per model")
}

func TestEmbeddingCache_StoreReplacesDims(t *testing.T) {
	ctx := context.Background()
	c := openStore(t, cache.Options{EmbeddingMaxMB: 1}).Embeddings

	require.NoError(t, c.Store(ctx, embedModel, "users table has country", []float32{1, 2, 3, 4}))
	require.NoError(t, c.Store(ctx, embedModel, "users table has country", []float32{9, 8}))

	got, ok, err := c.Lookup(ctx, embedModel, "users table has country")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{9, 8}, got)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Snippets)
	assert.Equal(t, int64(8), stats.Bytes)
}

func TestEmbeddingCache_RejectsEmptyVector(t *testing.T) {
	c := openStore(t, cache.Options{EmbeddingMaxMB: 1}).Embeddings
	assert.Error(t, c.Store(context.Background(), embedModel, "empty", nil))
}

func TestEmbeddingCache_TrimKeepsRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	// Room for three 256-byte vectors.
	c := openStore(t, cache.Options{EmbeddingMaxBytes: 3 * 256}).Embeddings

	snippets := []string{"Table: events", "Table: users", "Table: orders"}
	for i, s := range snippets {
		require.NoError(t, c.Store(ctx, embedModel, s, snippetVector(float32(i))))
	}
	// Touch the oldest so "Table: users" becomes least recently used.
	_, ok, err := c.Lookup(ctx, embedModel, "Table: events")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Store(ctx, embedModel, "Table: sessions", snippetVector(3)))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Snippets)
	assert.LessOrEqual(t, stats.Bytes, int64(3*256))

	for snippet, want := range map[string]bool{
		"Table: events":   true,
		"Table: users":    false,
		"Table: orders":   true,
		"Table: sessions": true,
	} {
		_, ok, err := c.Lookup(ctx, embedModel, snippet)
		require.NoError(t, err)
		assert.Equal(t, want, ok, snippet)
	}
}

func TestEmbeddingCache_ZeroBudgetKeepsNothing(t *testing.T) {
	ctx := context.Background()
	c := openStore(t, cache.Options{}).Embeddings
	require.NoError(t, c.Store(ctx, embedModel, "Table: events", snippetVector(1)))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Snippets)
}

func TestEmbeddingCache_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sqleval.db")

	s, err := cache.Open(path, cache.Options{EmbeddingMaxMB: 1})
	require.NoError(t, err)
	require.NoError(t, s.Embeddings.Store(ctx, embedModel, "orders table has total_amount and status", []float32{0.5, 0.5}))
	require.NoError(t, s.Close())

	s, err = cache.Open(path, cache.Options{EmbeddingMaxMB: 1})
	require.NoError(t, err)
	defer s.Close()
	got, ok, err := s.Embeddings.Lookup(ctx, embedModel, "orders table has total_amount and status")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0.5, 0.5}, got)
}

func TestContentHash(t *testing.T) {
	assert.Equal(t, cache.ContentHash("Table: events"), cache.ContentHash("Table: events"))
	assert.NotEqual(t, cache.ContentHash("Table: events"), cache.ContentHash("Table: users"))
	assert.Len(t, cache.ContentHash(""), 64)
}
