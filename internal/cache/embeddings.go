package cache

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// EmbeddingCache stores embedding vectors of schema context snippets, keyed
// by embedding model and snippet text. It is bounded by the total size of the
// stored vectors; the least recently used snippets go first.
type EmbeddingCache struct {
	db       *sql.DB
	maxBytes int64
	now      func() time.Time
}

// VectorStats reports the contents of the embedding cache.
type VectorStats struct {
	Snippets int
	Bytes    int64
}

func newEmbeddingCache(db *sql.DB, maxBytes int64) (*EmbeddingCache, error) {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snippet_vectors (
			model     TEXT    NOT NULL,
			text_hash TEXT    NOT NULL,
			dims      INTEGER NOT NULL,
			vector    BLOB    NOT NULL,
			used_at   INTEGER NOT NULL,
			PRIMARY KEY (model, text_hash)
		)
	`); err != nil {
		return nil, fmt.Errorf("create snippet_vectors table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_snippet_vectors_used ON snippet_vectors(used_at)`); err != nil {
		return nil, fmt.Errorf("create snippet_vectors index: %w", err)
	}
	return &EmbeddingCache{db: db, maxBytes: maxBytes, now: time.Now}, nil
}

// Lookup returns the cached vector for text under model and marks it used.
// ok is false on a miss.
func (c *EmbeddingCache) Lookup(ctx context.Context, model, text string) (vec []float32, ok bool, err error) {
	var (
		dims int
		blob []byte
	)
	err = c.db.QueryRowContext(ctx,
		`UPDATE snippet_vectors SET used_at = ? WHERE model = ? AND text_hash = ?
		 RETURNING dims, vector`,
		c.now().UnixNano(), model, ContentHash(text),
	).Scan(&dims, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup vector: %w", err)
	}
	vec, err = decodeVector(blob, dims)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Store saves the vector for text under model, then trims the cache to its
// size budget.
func (c *EmbeddingCache) Store(ctx context.Context, model, text string, vec []float32) error {
	if len(vec) == 0 {
		return errors.New("store vector: empty vector")
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO snippet_vectors(model, text_hash, dims, vector, used_at) VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(model, text_hash) DO UPDATE SET
		   dims = excluded.dims, vector = excluded.vector, used_at = excluded.used_at`,
		model, ContentHash(text), len(vec), encodeVector(vec), c.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("store vector: %w", err)
	}
	return c.trim(ctx)
}

// trim keeps the most recently used vectors whose combined size fits the
// budget and deletes the rest.
func (c *EmbeddingCache) trim(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM snippet_vectors WHERE rowid IN (
			SELECT rowid FROM (
				SELECT rowid, SUM(LENGTH(vector)) OVER (ORDER BY used_at DESC, rowid DESC) AS kept
				FROM snippet_vectors
			) WHERE kept > ?
		)`,
		c.maxBytes,
	)
	if err != nil {
		return fmt.Errorf("trim vectors: %w", err)
	}
	return nil
}

// Stats counts the cached snippets and their vector bytes.
func (c *EmbeddingCache) Stats(ctx context.Context) (VectorStats, error) {
	var s VectorStats
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(vector)), 0) FROM snippet_vectors`,
	).Scan(&s.Snippets, &s.Bytes)
	if err != nil {
		return VectorStats{}, fmt.Errorf("vector stats: %w", err)
	}
	return s, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 0, len(v)*4)
	for _, f := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func decodeVector(blob []byte, dims int) ([]float32, error) {
	if len(blob) != dims*4 {
		return nil, fmt.Errorf("vector blob is %d bytes, want %d for %d dims", len(blob), dims*4, dims)
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}
