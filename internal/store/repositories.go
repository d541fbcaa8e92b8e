package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is a linked GitHub repository (a project). It is immutable after
// creation except for ArchivedAt.
type Repository struct {
	ID          string
	UserID      string
	Name        string
	Owner       string
	Repo        string
	URL         string
	AccessToken string
	CreatedAt   time.Time
	ArchivedAt  *time.Time
}

// Archived reports whether the repository is soft-deleted.
func (r *Repository) Archived() bool {
	return r.ArchivedAt != nil
}

const repositoryColumns = `id, user_id, name, owner, repo, url, access_token, created_at, archived_at`

// CreateRepository inserts a new repository. An empty ID is replaced with a
// random UUID.
func (d *DB) CreateRepository(ctx context.Context, r *Repository) (*Repository, error) {
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO repositories (id, user_id, name, owner, repo, url, access_token, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.UserID, r.Name, r.Owner, r.Repo, r.URL, nullString(r.AccessToken), d.timestamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating repository: %w", err)
	}

	return d.GetRepository(ctx, id)
}

// GetRepository retrieves a repository by its ID.
func (d *DB) GetRepository(ctx context.Context, id string) (*Repository, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+repositoryColumns+` FROM repositories WHERE id = ?`, id,
	)
	return scanRepository(row)
}

// ListRepositories returns the user's repositories, newest first. When
// archived is true only archived repositories are returned, otherwise only
// active ones.
func (d *DB) ListRepositories(ctx context.Context, userID string, archived bool) ([]Repository, error) {
	cond := `archived_at IS NULL`
	if archived {
		cond = `archived_at IS NOT NULL`
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+repositoryColumns+` FROM repositories WHERE user_id = ? AND `+cond+` ORDER BY created_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}
	defer rows.Close()

	var repos []Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, *r)
	}
	return repos, rows.Err()
}

// ArchiveRepository soft-deletes a repository.
func (d *DB) ArchiveRepository(ctx context.Context, id string) error {
	return d.setArchived(ctx, id, sql.NullString{String: d.timestamp(), Valid: true})
}

// UnarchiveRepository restores an archived repository.
func (d *DB) UnarchiveRepository(ctx context.Context, id string) error {
	return d.setArchived(ctx, id, sql.NullString{})
}

func (d *DB) setArchived(ctx context.Context, id string, at sql.NullString) error {
	res, err := d.db.ExecContext(ctx, `UPDATE repositories SET archived_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("updating archived_at: %w", err)
	}
	return expectOne(res, "repository", id)
}

// DeleteRepository removes a repository together with its embeddings,
// commits, questions and ingestion runs.
func (d *DB) DeleteRepository(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM repositories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting repository: %w", err)
	}
	return expectOne(res, "repository", id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRepository(s scanner) (*Repository, error) {
	var r Repository
	var token, archivedAt sql.NullString
	var createdAt string

	err := s.Scan(&r.ID, &r.UserID, &r.Name, &r.Owner, &r.Repo, &r.URL, &token, &createdAt, &archivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning repository: %w", err)
	}

	r.AccessToken = token.String
	r.CreatedAt = parseTime(createdAt)
	if archivedAt.Valid {
		t := parseTime(archivedAt.String)
		r.ArchivedAt = &t
	}
	return &r, nil
}

func expectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
