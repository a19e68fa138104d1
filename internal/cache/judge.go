package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// JudgeCacheEntry is a cached judge verdict.
type JudgeCacheEntry struct {
	Score       float64
	Explanation string
	CreatedAt   time.Time
}

// JudgeCache stores judge verdicts keyed by content hash, rubric and model so
// re-running an unchanged corpus does not pay for the same LLM calls twice.
type JudgeCache struct {
	db         *sql.DB
	maxEntries int
	ttl        time.Duration
}

func newJudgeCache(db *sql.DB, maxEntries int, ttl time.Duration) (*JudgeCache, error) {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS judge_verdicts (
			content_hash TEXT    NOT NULL,
			rubric       TEXT    NOT NULL,
			model        TEXT    NOT NULL,
			score        REAL    NOT NULL,
			explanation  TEXT    NOT NULL,
			created_at   INTEGER NOT NULL,
			PRIMARY KEY (content_hash, rubric, model)
		)
	`); err != nil {
		return nil, fmt.Errorf("create judge_verdicts table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_judge_created ON judge_verdicts(created_at)`); err != nil {
		return nil, fmt.Errorf("create judge_verdicts index: %w", err)
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &JudgeCache{db: db, maxEntries: maxEntries, ttl: ttl}, nil
}

// JudgeContentHash hashes the full judge prompt content.
func JudgeContentHash(content string) string {
	return ContentHash(content)
}

// Get returns the cached verdict, or (nil, nil) on a miss or expired entry.
func (c *JudgeCache) Get(contentHash, rubric, model string) (*JudgeCacheEntry, error) {
	row := c.db.QueryRow(
		`SELECT score, explanation, created_at FROM judge_verdicts
		 WHERE content_hash = ? AND rubric = ? AND model = ?`,
		contentHash, rubric, model,
	)

	var (
		entry   JudgeCacheEntry
		created int64
	)
	if err := row.Scan(&entry.Score, &entry.Explanation, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get judge verdict: %w", err)
	}
	entry.CreatedAt = time.Unix(0, created)
	if c.ttl > 0 && time.Since(entry.CreatedAt) > c.ttl {
		return nil, nil
	}
	return &entry, nil
}

// Put stores a verdict and evicts the oldest rows beyond maxEntries.
func (c *JudgeCache) Put(contentHash, rubric, model string, entry *JudgeCacheEntry) error {
	_, err := c.db.Exec(
		`INSERT INTO judge_verdicts(content_hash, rubric, model, score, explanation, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(content_hash, rubric, model) DO UPDATE SET
		   score=excluded.score, explanation=excluded.explanation, created_at=excluded.created_at`,
		contentHash, rubric, model, entry.Score, entry.Explanation, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("put judge verdict: %w", err)
	}

	_, err = c.db.Exec(
		`DELETE FROM judge_verdicts WHERE rowid IN (
			SELECT rowid FROM judge_verdicts ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`,
		c.maxEntries,
	)
	if err != nil {
		return fmt.Errorf("evict judge verdicts: %w", err)
	}
	return nil
}

// Len returns the number of cached verdicts.
func (c *JudgeCache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM judge_verdicts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count judge verdicts: %w", err)
	}
	return n, nil
}
