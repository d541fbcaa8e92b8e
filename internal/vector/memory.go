package vector

import (
	"context"
	"sync"
)

// MemoryIndex is an in-process Index. It performs an exact scan on every
// search and is used for dry runs and tests.
type MemoryIndex struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[string]map[string]CodeEmbedding // repository -> file -> row
}

// NewMemoryIndex creates an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{rows: make(map[string]map[string]CodeEmbedding)}
}

// Upsert inserts or replaces the row for (repository, file).
func (m *MemoryIndex) Upsert(_ context.Context, e CodeEmbedding) error {
	if err := e.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	files, ok := m.rows[e.RepositoryID]
	if !ok {
		files = make(map[string]CodeEmbedding)
		m.rows[e.RepositoryID] = files
	}
	if prev, ok := files[e.FileName]; ok {
		e.ID = prev.ID
	} else {
		m.nextID++
		e.ID = m.nextID
	}
	e.SourceCode = BoundSource(e.SourceCode)
	e.Vector = append([]float32(nil), e.Vector...)
	files[e.FileName] = e
	return nil
}

// Search scans every non-degraded row of the repository.
func (m *MemoryIndex) Search(_ context.Context, q Query) ([]Match, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q = q.WithDefaults()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Match
	for _, row := range m.rows[q.RepositoryID] {
		if row.Degraded || len(row.Vector) == 0 {
			continue
		}
		sim, err := CosineSimilarity(q.Vector, row.Vector)
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{
			FileName:   row.FileName,
			SourceCode: row.SourceCode,
			Summary:    row.Summary,
			Similarity: sim,
		})
	}
	return Rank(matches, q.MinSimilarity(), q.Limit), nil
}

// DeleteRepository removes every row of the repository.
func (m *MemoryIndex) DeleteRepository(_ context.Context, repositoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, repositoryID)
	return nil
}

// Count reports the number of rows and degraded rows of the repository.
func (m *MemoryIndex) Count(_ context.Context, repositoryID string) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total, degraded int
	for _, row := range m.rows[repositoryID] {
		total++
		if row.Degraded {
			degraded++
		}
	}
	return total, degraded, nil
}

var _ Index = (*MemoryIndex)(nil)
