package store

import (
	"context"
	"errors"
	"fmt"
)

// RepositoryStats holds aggregate statistics for a single repository.
type RepositoryStats struct {
	Repository Repository
	Files      int
	Degraded   int
	Commits    int
	Questions  int
	LastRun    *IngestRun
}

// GetRepositoryStats returns aggregate statistics for a single repository.
// File counts come from the SQLite index; callers using another vector
// backend overwrite them.
func (d *DB) GetRepositoryStats(ctx context.Context, id string) (*RepositoryStats, error) {
	repo, err := d.GetRepository(ctx, id)
	if err != nil {
		return nil, err
	}

	stats := &RepositoryStats{Repository: *repo}

	stats.Files, stats.Degraded, err = d.Embeddings().Count(ctx, id)
	if err != nil {
		return nil, err
	}

	err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commits WHERE repository_id = ?`, id).Scan(&stats.Commits)
	if err != nil {
		return nil, fmt.Errorf("counting commits: %w", err)
	}

	err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE repository_id = ?`, id).Scan(&stats.Questions)
	if err != nil {
		return nil, fmt.Errorf("counting questions: %w", err)
	}

	run, err := d.LastRun(ctx, id)
	switch {
	case err == nil:
		stats.LastRun = run
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	return stats, nil
}

// GetAllRepositoryStats returns statistics for all of the user's active
// repositories.
func (d *DB) GetAllRepositoryStats(ctx context.Context, userID string) ([]RepositoryStats, error) {
	repos, err := d.ListRepositories(ctx, userID, false)
	if err != nil {
		return nil, err
	}

	var results []RepositoryStats
	for _, repo := range repos {
		stats, err := d.GetRepositoryStats(ctx, repo.ID)
		if err != nil {
			return nil, fmt.Errorf("getting stats for %s/%s: %w", repo.Owner, repo.Repo, err)
		}
		results = append(results, *stats)
	}
	return results, nil
}
