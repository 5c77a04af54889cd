// Package store keeps a SQLite ledger of report-generation runs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tuannvm/sprint-report/internal/models"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("store: run not found")

// Fixed-width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RunStore persists RunRecords.
type RunStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the ledger at path. ":memory:" is accepted.
func Open(path string) (*RunStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &RunStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

func (s *RunStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS report_runs (
			id            TEXT PRIMARY KEY,
			sprint_id     INTEGER NOT NULL,
			board_id      INTEGER NOT NULL DEFAULT 0,
			status        TEXT NOT NULL,
			error         TEXT NOT NULL DEFAULT '',
			markdown_path TEXT NOT NULL DEFAULT '',
			html_path     TEXT NOT NULL DEFAULT '',
			pdf_path      TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_report_runs_sprint ON report_runs(sprint_id);
		CREATE INDEX IF NOT EXISTS idx_report_runs_created ON report_runs(created_at);
	`)
	return err
}

// CreateRun records a new pending run and returns it.
func (s *RunStore) CreateRun(ctx context.Context, sprintID, boardID int) (models.RunRecord, error) {
	now := s.now().UTC()
	rec := models.RunRecord{
		ID:        uuid.NewString(),
		SprintID:  sprintID,
		BoardID:   boardID,
		Status:    models.RunPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO report_runs (id, sprint_id, board_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SprintID, rec.BoardID, string(rec.Status),
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return models.RunRecord{}, fmt.Errorf("store: create run: %w", err)
	}
	return rec, nil
}

// UpdateRun stores the status, error and output paths of rec.
func (s *RunStore) UpdateRun(ctx context.Context, rec models.RunRecord) error {
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE report_runs
		 SET status = ?, error = ?, markdown_path = ?, html_path = ?, pdf_path = ?, updated_at = ?
		 WHERE id = ?`,
		string(rec.Status), rec.Error, rec.MarkdownPath, rec.HTMLPath, rec.PDFPath,
		now.Format(timeLayout), rec.ID)
	if err != nil {
		return fmt.Errorf("store: update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update run: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun loads one run.
func (s *RunStore) GetRun(ctx context.Context, id string) (models.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RunRecord{}, ErrNotFound
	}
	return rec, err
}

// ListRuns returns the most recent runs first. sprintID 0 lists all sprints.
func (s *RunStore) ListRuns(ctx context.Context, sprintID, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := selectRuns
	args := []any{}
	if sprintID > 0 {
		query += ` WHERE sprint_id = ?`
		args = append(args, sprintID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

const selectRuns = `SELECT id, sprint_id, board_id, status, error, markdown_path, html_path, pdf_path, created_at, updated_at FROM report_runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (models.RunRecord, error) {
	var (
		rec              models.RunRecord
		status           string
		created, updated string
	)
	err := sc.Scan(&rec.ID, &rec.SprintID, &rec.BoardID, &status, &rec.Error,
		&rec.MarkdownPath, &rec.HTMLPath, &rec.PDFPath, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("store: scan run: %w", err)
	}
	rec.Status = models.RunStatus(status)
	if rec.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return rec, fmt.Errorf("store: parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return rec, fmt.Errorf("store: parse updated_at: %w", err)
	}
	return rec, nil
}
