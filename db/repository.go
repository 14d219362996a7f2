package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run statuses.
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusInterrupted = "interrupted"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("db: run not found")

// RunRecord is a row in the runs table.
type RunRecord struct {
	ID          string
	InputPath   string
	OutputDir   string
	Parameters  string // JSON
	TotalAngles int
	Succeeded   int
	Failed      int
	MontagePath string
	Status      string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
	Elapsed     time.Duration
}

// AngleRecord is a row in the angle_results table.
type AngleRecord struct {
	RunID    string
	Angle    int
	Success  bool
	Path     string
	Seed     int64
	Attempts int
	Bytes    int64
	Error    string
	Duration time.Duration
}

// Repository provides typed access to the history tables.
type Repository struct {
	db *Database
}

// NewRepository creates a Repository over an open Database.
func NewRepository(db *Database) *Repository {
	return &Repository{db: db}
}

// CreateRun inserts a run in the running state.
func (r *Repository) CreateRun(ctx context.Context, run RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}

	return r.db.withConn(func(conn *sql.DB) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO runs (id, input_path, output_dir, parameters, total_angles, status, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.InputPath, run.OutputDir, run.Parameters, run.TotalAngles, run.Status,
			run.StartedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}
		return nil
	})
}

// RecordAngle stores one angle's outcome. Recording the same angle twice
// replaces the earlier row.
func (r *Repository) RecordAngle(ctx context.Context, rec AngleRecord) error {
	return r.db.withConn(func(conn *sql.DB) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO angle_results (run_id, angle, success, path, seed, attempts, bytes, error, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, angle) DO UPDATE SET
				success = excluded.success,
				path = excluded.path,
				seed = excluded.seed,
				attempts = excluded.attempts,
				bytes = excluded.bytes,
				error = excluded.error,
				duration_ms = excluded.duration_ms`,
			rec.RunID, rec.Angle, boolToInt(rec.Success), rec.Path, rec.Seed, rec.Attempts, rec.Bytes,
			rec.Error, rec.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to record angle %d: %w", rec.Angle, err)
		}
		return nil
	})
}

// FinishRun stores the final counts and status of a run.
func (r *Repository) FinishRun(ctx context.Context, run RunRecord) error {
	return r.db.withConn(func(conn *sql.DB) error {
		res, err := conn.ExecContext(ctx, `
			UPDATE runs SET succeeded = ?, failed = ?, montage_path = ?, status = ?,
				finished_at = ?, elapsed_ms = ?
			WHERE id = ?`,
			run.Succeeded, run.Failed, run.MontagePath, run.Status,
			run.FinishedAt.UnixMilli(), run.Elapsed.Milliseconds(), run.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to finish run: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

const runColumns = `id, input_path, output_dir, parameters, total_angles, succeeded, failed,
	montage_path, status, started_at, finished_at, elapsed_ms`

// GetRun returns a run by ID, or ErrNotFound.
func (r *Repository) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var run *RunRecord
	err := r.db.withConn(func(conn *sql.DB) error {
		row := conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
		var err error
		run, err = scanRun(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	return run, err
}

// ListRecentRuns returns up to limit runs, newest first.
func (r *Repository) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	var runs []RunRecord
	err := r.db.withConn(func(conn *sql.DB) error {
		rows, err := conn.QueryContext(ctx,
			`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("failed to query runs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			run, err := scanRun(rows)
			if err != nil {
				return err
			}
			runs = append(runs, *run)
		}
		return rows.Err()
	})
	return runs, err
}

// ListAngleResults returns a run's angle rows in angle order.
func (r *Repository) ListAngleResults(ctx context.Context, runID string) ([]AngleRecord, error) {
	var out []AngleRecord
	err := r.db.withConn(func(conn *sql.DB) error {
		rows, err := conn.QueryContext(ctx, `
			SELECT run_id, angle, success, path, seed, attempts, bytes, error, duration_ms
			FROM angle_results WHERE run_id = ? ORDER BY angle`, runID)
		if err != nil {
			return fmt.Errorf("failed to query angle results: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				rec        AngleRecord
				success    int
				durationMS int64
			)
			if err := rows.Scan(&rec.RunID, &rec.Angle, &success, &rec.Path, &rec.Seed,
				&rec.Attempts, &rec.Bytes, &rec.Error, &durationMS); err != nil {
				return fmt.Errorf("failed to scan angle result: %w", err)
			}
			rec.Success = success != 0
			rec.Duration = time.Duration(durationMS) * time.Millisecond
			out = append(out, rec)
		}
		return rows.Err()
	})
	return out, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var (
		run       RunRecord
		startedMS int64
		finished  sql.NullInt64
		elapsedMS int64
	)
	err := s.Scan(&run.ID, &run.InputPath, &run.OutputDir, &run.Parameters, &run.TotalAngles,
		&run.Succeeded, &run.Failed, &run.MontagePath, &run.Status, &startedMS, &finished, &elapsedMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.StartedAt = time.UnixMilli(startedMS)
	if finished.Valid {
		run.FinishedAt = time.UnixMilli(finished.Int64)
	}
	run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
