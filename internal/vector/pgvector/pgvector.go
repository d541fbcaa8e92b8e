// Package pgvector implements vector.Index on Postgres with the pgvector
// extension.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/jacklau/repolens/internal/vector"
)

// Index stores code embeddings in a pgvector column and searches with the
// cosine distance operator.
type Index struct {
	db        *sql.DB
	dimension int
}

// Open connects to databaseURL, creates the schema if needed and returns an
// Index for vectors of the given dimension.
func Open(ctx context.Context, databaseURL string, dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("pgvector: dimension must be positive, got %d", dimension)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	idx := &Index{db: db, dimension: dimension}
	if err := idx.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// Close closes the database connection.
func (x *Index) Close() error {
	return x.db.Close()
}

func (x *Index) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS code_embeddings (
			id                BIGSERIAL PRIMARY KEY,
			repository_id     TEXT NOT NULL,
			file_name         TEXT NOT NULL,
			source_code       TEXT NOT NULL,
			summary           TEXT NOT NULL,
			summary_embedding vector(%d),
			degraded          BOOLEAN NOT NULL DEFAULT FALSE,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (repository_id, file_name)
		)`, x.dimension),
		`CREATE INDEX IF NOT EXISTS idx_code_embeddings_repo ON code_embeddings(repository_id)`,
	}
	for _, stmt := range stmts {
		if _, err := x.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector migration: %w", err)
		}
	}
	return nil
}

// Upsert inserts or replaces the row for (repository, file). Degraded rows
// carry a NULL vector.
func (x *Index) Upsert(ctx context.Context, e vector.CodeEmbedding) error {
	if err := e.Validate(); err != nil {
		return err
	}

	var vec *pgvector.Vector
	if !e.Degraded {
		if len(e.Vector) != x.dimension {
			return fmt.Errorf("%w: got %d, index holds %d", vector.ErrDimensionMismatch, len(e.Vector), x.dimension)
		}
		v := pgvector.NewVector(e.Vector)
		vec = &v
	}

	query := `INSERT INTO code_embeddings (repository_id, file_name, source_code, summary, summary_embedding, degraded)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          ON CONFLICT (repository_id, file_name) DO UPDATE SET
	              source_code = EXCLUDED.source_code,
	              summary = EXCLUDED.summary,
	              summary_embedding = EXCLUDED.summary_embedding,
	              degraded = EXCLUDED.degraded`

	_, err := x.db.ExecContext(ctx, query,
		e.RepositoryID, e.FileName, vector.BoundSource(e.SourceCode), e.Summary, vec, e.Degraded,
	)
	if err != nil {
		return fmt.Errorf("upsert embedding %s: %w", e.FileName, err)
	}
	return nil
}

// Search performs a cosine similarity search restricted to one repository.
func (x *Index) Search(ctx context.Context, q vector.Query) ([]vector.Match, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q = q.WithDefaults()
	if len(q.Vector) != x.dimension {
		return nil, fmt.Errorf("%w: query has %d, index holds %d", vector.ErrDimensionMismatch, len(q.Vector), x.dimension)
	}

	query := `SELECT file_name, source_code, summary,
	                 1 - (summary_embedding <=> $1::vector) AS similarity
	          FROM code_embeddings
	          WHERE repository_id = $2
	            AND summary_embedding IS NOT NULL
	            AND 1 - (summary_embedding <=> $1::vector) > $3
	          ORDER BY summary_embedding <=> $1::vector
	          LIMIT $4`

	rows, err := x.db.QueryContext(ctx, query, pgvector.NewVector(q.Vector), q.RepositoryID, q.MinSimilarity(), q.Limit)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}
	defer rows.Close()

	var matches []vector.Match
	for rows.Next() {
		var m vector.Match
		if err := rows.Scan(&m.FileName, &m.SourceCode, &m.Summary, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan similar: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}
	return matches, nil
}

// DeleteRepository deletes all embeddings for a repository.
func (x *Index) DeleteRepository(ctx context.Context, repositoryID string) error {
	if _, err := x.db.ExecContext(ctx, `DELETE FROM code_embeddings WHERE repository_id = $1`, repositoryID); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	return nil
}

// Count reports the number of rows and degraded rows of a repository.
func (x *Index) Count(ctx context.Context, repositoryID string) (int, int, error) {
	var total, degraded int
	err := x.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE degraded) FROM code_embeddings WHERE repository_id = $1`,
		repositoryID,
	).Scan(&total, &degraded)
	if err != nil {
		return 0, 0, fmt.Errorf("count embeddings: %w", err)
	}
	return total, degraded, nil
}

var _ vector.Index = (*Index)(nil)
