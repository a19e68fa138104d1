package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqleval/sqleval/internal/cache"
)

func newJudgeCache(t *testing.T, maxEntries int, ttl time.Duration) *cache.JudgeCache {
	t.Helper()
	return openStore(t, cache.Options{JudgeMaxEntries: maxEntries, JudgeTTL: ttl}).Judge
}

func TestJudgeCache_PutGet(t *testing.T) {
	c := newJudgeCache(t, 100, 0)
	h := cache.JudgeContentHash("Question: q\n\nSELECT 1")

	miss, err := c.Get(h, "sql_correctness", "gemini-1.5-flash")
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, c.Put(h, "sql_correctness", "gemini-1.5-flash", &cache.JudgeCacheEntry{Score: 0.8, Explanation: "close"}))

	got, err := c.Get(h, "sql_correctness", "gemini-1.5-flash")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0.8, got.Score)
	assert.Equal(t, "close", got.Explanation)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestJudgeCache_KeyIsolation(t *testing.T) {
	c := newJudgeCache(t, 100, 0)
	h := cache.JudgeContentHash("same")
	require.NoError(t, c.Put(h, "faithfulness", "m1", &cache.JudgeCacheEntry{Score: 0.1}))

	for _, k := range [][2]string{{"hallucination", "m1"}, {"faithfulness", "m2"}} {
		got, err := c.Get(h, k[0], k[1])
		require.NoError(t, err)
		assert.Nil(t, got, "rubric=%s model=%s", k[0], k[1])
	}
}

func TestJudgeCache_Upsert(t *testing.T) {
	c := newJudgeCache(t, 100, 0)
	h := cache.JudgeContentHash("x")
	require.NoError(t, c.Put(h, "default", "m", &cache.JudgeCacheEntry{Score: 0.2}))
	require.NoError(t, c.Put(h, "default", "m", &cache.JudgeCacheEntry{Score: 0.9}))

	got, err := c.Get(h, "default", "m")
	require.NoError(t, err)
	assert.Equal(t, 0.9, got.Score)

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestJudgeCache_EvictsOldest(t *testing.T) {
	c := newJudgeCache(t, 3, 0)
	for _, content := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, c.Put(cache.JudgeContentHash(content), "default", "m", &cache.JudgeCacheEntry{Score: 0.5}))
	}

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	oldest, err := c.Get(cache.JudgeContentHash("a"), "default", "m")
	require.NoError(t, err)
	assert.Nil(t, oldest)

	newest, err := c.Get(cache.JudgeContentHash("e"), "default", "m")
	require.NoError(t, err)
	assert.NotNil(t, newest)
}

func TestJudgeCache_TTL(t *testing.T) {
	c := newJudgeCache(t, 100, time.Nanosecond)
	h := cache.JudgeContentHash("stale")
	require.NoError(t, c.Put(h, "default", "m", &cache.JudgeCacheEntry{Score: 1}))
	time.Sleep(time.Millisecond)

	got, err := c.Get(h, "default", "m")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOpen_SharedStore(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, cache.Options{EmbeddingMaxMB: 10})

	h := cache.JudgeContentHash("Table: events")
	require.NoError(t, s.Embeddings.Store(ctx, "text-embedding-3-small", "Table: events", []float32{1, 2}))
	require.NoError(t, s.Judge.Put(h, "default", "m", &cache.JudgeCacheEntry{Score: 0.4}))
	require.NoError(t, s.History.Record("run-1", "simple_dau_001", "overall", 0.4, "hard_fail"))

	vec, ok, err := s.Embeddings.Lookup(ctx, "text-embedding-3-small", "Table: events")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, vec)

	mean, _, count, err := s.History.Stats("simple_dau_001", "overall")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 0.4, mean)
}
