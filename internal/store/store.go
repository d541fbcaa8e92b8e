package store

import (
	"context"

	"github.com/jacklau/repolens/internal/vector"
)

// Store defines the catalog and ledger operations used by the project
// service. It is satisfied by *DB and can be replaced with a mock for testing.
type Store interface {
	CreateRepository(ctx context.Context, r *Repository) (*Repository, error)
	GetRepository(ctx context.Context, id string) (*Repository, error)
	ListRepositories(ctx context.Context, userID string, archived bool) ([]Repository, error)
	ArchiveRepository(ctx context.Context, id string) error
	UnarchiveRepository(ctx context.Context, id string) error
	DeleteRepository(ctx context.Context, id string) error

	Balance(ctx context.Context, userID string) (int, error)
	Decrement(ctx context.Context, userID string, n int) error

	CommitHashes(ctx context.Context, repositoryID string) (map[string]bool, error)
	InsertCommits(ctx context.Context, commits []Commit) (int, error)
	ListCommits(ctx context.Context, repositoryID string) ([]Commit, error)

	SaveQuestion(ctx context.Context, q *Question) (*Question, error)
	ListQuestions(ctx context.Context, repositoryID string) ([]Question, error)
	DeleteQuestion(ctx context.Context, userID, id string) error

	StartRun(ctx context.Context, repositoryID string, quote int) (int64, error)
	FinishRun(ctx context.Context, id int64, indexed, degraded, failed int, runErr error) error

	GetRepositoryStats(ctx context.Context, id string) (*RepositoryStats, error)
}

// Compile-time checks.
var (
	_ Store        = (*DB)(nil)
	_ vector.Index = (*EmbeddingIndex)(nil)
)
