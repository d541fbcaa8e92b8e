package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Commit is a summarized commit of a repository.
type Commit struct {
	ID           int64     `json:"id"`
	RepositoryID string    `json:"repositoryId"`
	Hash         string    `json:"hash"`
	Message      string    `json:"message"`
	AuthorName   string    `json:"authorName"`
	AuthorAvatar string    `json:"authorAvatar"`
	Date         time.Time `json:"date"`
	Summary      string    `json:"summary"`
}

// CommitHashes returns the set of commit hashes already stored for the
// repository.
func (d *DB) CommitHashes(ctx context.Context, repositoryID string) (map[string]bool, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT hash FROM commits WHERE repository_id = ?`, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("listing commit hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning commit hash: %w", err)
		}
		hashes[h] = true
	}
	return hashes, rows.Err()
}

// InsertCommits stores commits, ignoring hashes that already exist. It
// returns the number of rows written.
func (d *DB) InsertCommits(ctx context.Context, commits []Commit) (int, error) {
	if len(commits) == 0 {
		return 0, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning commit insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO commits (repository_id, hash, message, author_name, author_avatar, committed_at, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(repository_id, hash) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("preparing commit insert: %w", err)
	}
	defer stmt.Close()

	now := d.timestamp()
	var written int
	for _, c := range commits {
		res, err := stmt.ExecContext(ctx,
			c.RepositoryID, c.Hash, c.Message, nullString(c.AuthorName), nullString(c.AuthorAvatar),
			formatTime(c.Date), c.Summary, now,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting commit %s: %w", c.Hash, err)
		}
		n, _ := res.RowsAffected()
		written += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing commit insert: %w", err)
	}
	return written, nil
}

// ListCommits returns the repository's commits, newest first.
func (d *DB) ListCommits(ctx context.Context, repositoryID string) ([]Commit, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, repository_id, hash, message, author_name, author_avatar, committed_at, summary
		 FROM commits WHERE repository_id = ? ORDER BY committed_at DESC, id DESC`,
		repositoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing commits: %w", err)
	}
	defer rows.Close()

	var commits []Commit
	for rows.Next() {
		var c Commit
		var author, avatar sql.NullString
		var date string
		if err := rows.Scan(&c.ID, &c.RepositoryID, &c.Hash, &c.Message, &author, &avatar, &date, &c.Summary); err != nil {
			return nil, fmt.Errorf("scanning commit: %w", err)
		}
		c.AuthorName = author.String
		c.AuthorAvatar = avatar.String
		c.Date = parseTime(date)
		commits = append(commits, c)
	}
	return commits, rows.Err()
}
