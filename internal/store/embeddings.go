package store

import (
	"context"
	"fmt"

	"github.com/jacklau/repolens/internal/vector"
)

// EmbeddingIndex implements vector.Index on the code_embeddings table.
// Vectors are stored as little-endian float32 BLOBs and searched with an
// exact scan.
type EmbeddingIndex struct {
	d *DB
}

// Embeddings returns the SQLite-backed vector index.
func (d *DB) Embeddings() *EmbeddingIndex {
	return &EmbeddingIndex{d: d}
}

// Upsert inserts or replaces the row for (repository, file).
func (x *EmbeddingIndex) Upsert(ctx context.Context, e vector.CodeEmbedding) error {
	if err := e.Validate(); err != nil {
		return err
	}

	var blob []byte
	if !e.Degraded {
		blob = vector.Encode(e.Vector)
	}

	_, err := x.d.db.ExecContext(ctx,
		`INSERT INTO code_embeddings (repository_id, file_name, source_code, summary, embedding, degraded, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(repository_id, file_name) DO UPDATE SET
			source_code = excluded.source_code,
			summary = excluded.summary,
			embedding = excluded.embedding,
			degraded = excluded.degraded`,
		e.RepositoryID, e.FileName, vector.BoundSource(e.SourceCode), e.Summary, blob, boolToInt(e.Degraded), x.d.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("upserting embedding %s: %w", e.FileName, err)
	}
	return nil
}

// Search computes cosine similarity against every embedded row of the
// repository.
func (x *EmbeddingIndex) Search(ctx context.Context, q vector.Query) ([]vector.Match, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q = q.WithDefaults()

	rows, err := x.d.db.QueryContext(ctx,
		`SELECT file_name, source_code, summary, embedding FROM code_embeddings
		 WHERE repository_id = ? AND degraded = 0 AND embedding IS NOT NULL`,
		q.RepositoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var matches []vector.Match
	for rows.Next() {
		var m vector.Match
		var blob []byte
		if err := rows.Scan(&m.FileName, &m.SourceCode, &m.Summary, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		vec, err := vector.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", m.FileName, err)
		}
		m.Similarity, err = vector.CosineSimilarity(q.Vector, vec)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}

	return vector.Rank(matches, q.MinSimilarity(), q.Limit), nil
}

// DeleteRepository removes every embedding of the repository.
func (x *EmbeddingIndex) DeleteRepository(ctx context.Context, repositoryID string) error {
	if _, err := x.d.db.ExecContext(ctx, `DELETE FROM code_embeddings WHERE repository_id = ?`, repositoryID); err != nil {
		return fmt.Errorf("deleting embeddings: %w", err)
	}
	return nil
}

// Count reports the number of rows and degraded rows of the repository.
func (x *EmbeddingIndex) Count(ctx context.Context, repositoryID string) (int, int, error) {
	var total, degraded int
	err := x.d.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(degraded), 0) FROM code_embeddings WHERE repository_id = ?`,
		repositoryID,
	).Scan(&total, &degraded)
	if err != nil {
		return 0, 0, fmt.Errorf("counting embeddings: %w", err)
	}
	return total, degraded, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ vector.Index = (*EmbeddingIndex)(nil)
