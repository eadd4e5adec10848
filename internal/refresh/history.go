package refresh

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS run_history (
	run_id      TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	attempted   INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	complete    INTEGER NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_history_started ON run_history(started_at);
`

// RunRecord is one persisted batch-run summary.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	Kind       string    `json:"kind"`
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Complete   bool      `json:"complete"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// History persists batch-run summaries for the operational trail.
type History struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistory creates the run-history repository and ensures its schema.
func NewHistory(db *sql.DB, log zerolog.Logger) (*History, error) {
	if _, err := db.Exec(historySchema); err != nil {
		return nil, fmt.Errorf("failed to create run_history schema: %w", err)
	}
	return &History{
		db:  db,
		log: log.With().Str("service", "run_history").Logger(),
	}, nil
}

// Record persists one batch report summary.
func (h *History) Record(report Report) error {
	complete := 0
	if report.Complete {
		complete = 1
	}

	_, err := h.db.Exec(`
		INSERT INTO run_history
			(run_id, kind, attempted, succeeded, failed, complete, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Kind, report.Attempted, report.Succeeded,
		report.Failed, complete, report.StartedAt.Unix(), report.FinishedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", report.RunID, err)
	}
	return nil
}

// Recent returns the latest run records, newest first.
func (h *History) Recent(limit int) ([]RunRecord, error) {
	rows, err := h.db.Query(`
		SELECT run_id, kind, attempted, succeeded, failed, complete, started_at, finished_at
		FROM run_history
		ORDER BY started_at DESC, run_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list run history: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		var complete int
		var startedAt, finishedAt int64
		if err := rows.Scan(&r.RunID, &r.Kind, &r.Attempted, &r.Succeeded,
			&r.Failed, &complete, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		r.Complete = complete == 1
		r.StartedAt = time.Unix(startedAt, 0)
		r.FinishedAt = time.Unix(finishedAt, 0)
		records = append(records, r)
	}
	return records, rows.Err()
}
