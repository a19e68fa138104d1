// Package cache persists judge verdicts, embedding vectors and score history
// in SQLite so repeated evaluation runs are cheaper and comparable.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Options sizes the caches opened by Open.
type Options struct {
	EmbeddingMaxMB int
	// EmbeddingMaxBytes overrides EmbeddingMaxMB when positive.
	EmbeddingMaxBytes int64
	JudgeMaxEntries   int
	JudgeTTL          time.Duration
}

func (o Options) embeddingBudget() int64 {
	if o.EmbeddingMaxBytes > 0 {
		return o.EmbeddingMaxBytes
	}
	return int64(o.EmbeddingMaxMB) << 20
}

// ContentHash returns the SHA-256 hex digest of text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Store bundles the caches that share one SQLite file.
type Store struct {
	db         *sql.DB
	Judge      *JudgeCache
	Embeddings *EmbeddingCache
	History    *HistoryStore
}

// openDB opens path with WAL journaling and a busy timeout so concurrent
// writers wait instead of failing with SQLITE_BUSY.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	return db, nil
}

// Open opens (or creates) every cache table in the database at path.
func Open(path string, opts Options) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}

	if s.Judge, err = newJudgeCache(db, opts.JudgeMaxEntries, opts.JudgeTTL); err != nil {
		db.Close()
		return nil, err
	}
	if s.Embeddings, err = newEmbeddingCache(db, opts.embeddingBudget()); err != nil {
		db.Close()
		return nil, err
	}
	if s.History, err = NewHistoryStore(db); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the shared database.
func (s *Store) Close() error {
	return s.db.Close()
}
