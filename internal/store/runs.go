package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// IngestRun records one ingestion of a repository.
type IngestRun struct {
	ID           int64      `json:"id"`
	RepositoryID string     `json:"repositoryId"`
	Quote        int        `json:"quote"`
	Indexed      int        `json:"indexed"`
	Degraded     int        `json:"degraded"`
	Failed       int        `json:"failed"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// StartRun inserts a run for the repository and returns its ID.
func (d *DB) StartRun(ctx context.Context, repositoryID string, quote int) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (repository_id, quote, started_at) VALUES (?, ?, ?)`,
		repositoryID, quote, d.timestamp(),
	)
	if err != nil {
		return 0, fmt.Errorf("starting ingest run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting run id: %w", err)
	}
	return id, nil
}

// FinishRun stores the outcome counts of a run.
func (d *DB) FinishRun(ctx context.Context, id int64, indexed, degraded, failed int, runErr error) error {
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := d.db.ExecContext(ctx,
		`UPDATE ingest_runs SET indexed = ?, degraded = ?, failed = ?, error = ?, finished_at = ? WHERE id = ?`,
		indexed, degraded, failed, errText, d.timestamp(), id,
	)
	if err != nil {
		return fmt.Errorf("finishing ingest run: %w", err)
	}
	return expectOne(res, "ingest run", fmt.Sprint(id))
}

// LastRun returns the most recent run of the repository.
func (d *DB) LastRun(ctx context.Context, repositoryID string) (*IngestRun, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, repository_id, quote, indexed, degraded, failed, error, started_at, finished_at
		 FROM ingest_runs WHERE repository_id = ? ORDER BY id DESC LIMIT 1`,
		repositoryID,
	)

	var r IngestRun
	var errText, finished sql.NullString
	var started string
	err := row.Scan(&r.ID, &r.RepositoryID, &r.Quote, &r.Indexed, &r.Degraded, &r.Failed, &errText, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ingest run: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning ingest run: %w", err)
	}
	r.Error = errText.String
	r.StartedAt = parseTime(started)
	if finished.Valid {
		t := parseTime(finished.String)
		r.FinishedAt = &t
	}
	return &r, nil
}
