package journal

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/starford/inkmirror/internal/apperr"
	"github.com/starford/inkmirror/internal/models"
)

// RunRow represents a row in the runs table.
type RunRow struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	Total      int        `json:"total"`
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
}

// Checksum returns the hex-encoded SHA-256 digest of a source file.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// BeginRun inserts a run in the running state.
func (db *DB) BeginRun(ctx context.Context, id string, startedAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)`,
		id, startedAt.UTC(), StatusRunning)
	if err != nil {
		return fmt.Errorf("journal: begin run: %w", err)
	}
	return nil
}

// RecordFile appends the result for one file to a run.
func (db *DB) RecordFile(ctx context.Context, runID string, r models.FileResult) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO files (run_id, path, note_id, outcome, checksum, error, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, r.Path, r.NoteID, string(r.Outcome), r.Checksum, r.Error, r.SyncedAt.UTC())
	if err != nil {
		return fmt.Errorf("journal: record file: %w", err)
	}
	return nil
}

// FinishRun stores the final counts and status of a run. A non-nil runErr
// marks the run failed.
func (db *DB) FinishRun(ctx context.Context, rep models.Report, runErr error) error {
	status, msg := StatusOK, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	_, err := db.conn.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?,
			status      = ?,
			error       = ?,
			total       = ?,
			created     = ?,
			updated     = ?,
			skipped     = ?,
			failed      = ?
		WHERE id = ?
	`, rep.FinishedAt.UTC(), status, msg, rep.Total, rep.Created, rep.Updated, rep.Skipped, rep.Failed, rep.RunID)
	if err != nil {
		return fmt.Errorf("journal: finish run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, error, total, created, updated, skipped, failed
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &r.Error,
			&r.Total, &r.Created, &r.Updated, &r.Skipped, &r.Failed); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunFiles returns the per-file results of a run in the order they were recorded.
func (db *DB) RunFiles(ctx context.Context, runID string) ([]models.FileResult, error) {
	var exists int
	err := db.conn.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("journal: lookup run: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT path, note_id, outcome, checksum, error, synced_at
		FROM files
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("journal: run files: %w", err)
	}
	defer rows.Close()

	out := []models.FileResult{}
	for rows.Next() {
		var r models.FileResult
		var outcome string
		if err := rows.Scan(&r.Path, &r.NoteID, &outcome, &r.Checksum, &r.Error, &r.SyncedAt); err != nil {
			return nil, err
		}
		r.Outcome = models.Outcome(outcome)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastResult returns the most recent result recorded for a source path.
func (db *DB) LastResult(ctx context.Context, path string) (*models.FileResult, error) {
	var r models.FileResult
	var outcome string
	err := db.conn.QueryRowContext(ctx, `
		SELECT path, note_id, outcome, checksum, error, synced_at
		FROM files
		WHERE path = ?
		ORDER BY id DESC
		LIMIT 1
	`, path).Scan(&r.Path, &r.NoteID, &outcome, &r.Checksum, &r.Error, &r.SyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("journal: last result: %w", err)
	}
	r.Outcome = models.Outcome(outcome)
	return &r, nil
}
