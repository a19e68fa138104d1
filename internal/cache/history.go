package cache

import (
	"database/sql"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// pruneEvery is how many inserts pass between prune sweeps.
const pruneEvery = 100

// HistoryStore keeps per-case, per-metric scores across runs so regressions
// can be judged against a case's own baseline.
type HistoryStore struct {
	db *sql.DB

	inserts    atomic.Int64
	maxRows    atomic.Int64
	maxAgeDays atomic.Int64
}

// NewHistoryStore creates the score_history table and index if they don't
// exist, then returns a HistoryStore backed by db.
func NewHistoryStore(db *sql.DB) (*HistoryStore, error) {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS score_history (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT    NOT NULL,
			case_id    TEXT    NOT NULL,
			metric     TEXT    NOT NULL,
			score      REAL    NOT NULL,
			status     TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create score_history table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_score_history_case_metric_ts
		ON score_history (case_id, metric, created_at)
	`); err != nil {
		return nil, fmt.Errorf("create score_history index: %w", err)
	}

	return &HistoryStore{db: db}, nil
}

// SetPruneConfig bounds the table: every 100 inserts, rows older than
// maxAgeDays are removed and only the newest maxRows are kept. Zero disables
// the corresponding limit.
func (h *HistoryStore) SetPruneConfig(maxRows, maxAgeDays int) {
	h.maxRows.Store(int64(maxRows))
	h.maxAgeDays.Store(int64(maxAgeDays))
}

// Record inserts one score row.
func (h *HistoryStore) Record(runID, caseID, metric string, score float64, status string) error {
	_, err := h.db.Exec(
		`INSERT INTO score_history (run_id, case_id, metric, score, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, caseID, metric, score, status, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record score history: %w", err)
	}
	if h.inserts.Add(1)%pruneEvery == 0 {
		return h.prune()
	}
	return nil
}

func (h *HistoryStore) prune() error {
	if days := h.maxAgeDays.Load(); days > 0 {
		cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour).UnixNano()
		if _, err := h.db.Exec(`DELETE FROM score_history WHERE created_at < ?`, cutoff); err != nil {
			return fmt.Errorf("prune score history by age: %w", err)
		}
	}
	if rows := h.maxRows.Load(); rows > 0 {
		if _, err := h.db.Exec(
			`DELETE FROM score_history WHERE id NOT IN (
				SELECT id FROM score_history ORDER BY created_at DESC LIMIT ?
			)`, rows,
		); err != nil {
			return fmt.Errorf("prune score history by size: %w", err)
		}
	}
	return nil
}

// QueryWindow returns the last windowSize scores for caseID and metric, most
// recent first.
func (h *HistoryStore) QueryWindow(caseID, metric string, windowSize int) ([]float64, error) {
	rows, err := h.db.Query(
		`SELECT score FROM score_history
		 WHERE case_id = ? AND metric = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		caseID, metric, windowSize,
	)
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var s float64
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query window rows: %w", err)
	}
	return scores, nil
}

// Stats computes the mean, population standard deviation and count of every
// recorded score for caseID and metric. Returns zero values when none exist.
func (h *HistoryStore) Stats(caseID, metric string) (mean float64, stddev float64, count int, err error) {
	scores, err := h.QueryWindow(caseID, metric, -1)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("stats: %w", err)
	}
	if len(scores) == 0 {
		return 0, 0, 0, nil
	}
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	// SQLite lacks STDDEV_POP.
	var sumSqDiff float64
	for _, s := range scores {
		d := s - mean
		sumSqDiff += d * d
	}
	return mean, math.Sqrt(sumSqDiff / float64(len(scores))), len(scores), nil
}
