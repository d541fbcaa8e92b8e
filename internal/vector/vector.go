// Package vector defines the code-embedding index contract shared by the
// SQLite, pgvector and Qdrant backends.
package vector

import (
	"context"
	"errors"
	"fmt"
)

// Defaults for a similarity query.
const (
	DefaultFloor = 0.5
	DefaultLimit = 10

	// MaxSourceBytes bounds the source code stored alongside an embedding.
	MaxSourceBytes = 256 * 1024
)

// ErrDimensionMismatch is returned when two vectors that must be compared
// or stored together have different lengths.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// CodeEmbedding is one indexed file of a repository. Vector is nil when the
// summary is degraded; such rows are stored but never searched.
type CodeEmbedding struct {
	ID           int64
	RepositoryID string
	FileName     string
	SourceCode   string
	Summary      string
	Vector       []float32
	Degraded     bool
}

// Query asks for the files of one repository most similar to Vector.
type Query struct {
	RepositoryID string
	Vector       []float32

	// Floor is the similarity a row must exceed. Nil means DefaultFloor.
	Floor *float64
	Limit int
}

// Match is a search hit. Similarity is 1 - cosine distance.
type Match struct {
	FileName   string  `json:"fileName"`
	SourceCode string  `json:"sourceCode"`
	Summary    string  `json:"summary"`
	Similarity float64 `json:"similarity"`
}

// Index stores code embeddings and answers similarity queries.
//
// Search returns only rows of the query's repository whose similarity is
// strictly greater than Floor, ordered by descending similarity, at most
// Limit rows.
type Index interface {
	Upsert(ctx context.Context, e CodeEmbedding) error
	Search(ctx context.Context, q Query) ([]Match, error)
	DeleteRepository(ctx context.Context, repositoryID string) error
	Count(ctx context.Context, repositoryID string) (total, degraded int, err error)
}

// Floor returns a pointer to v for Query.Floor.
func Floor(v float64) *float64 {
	return &v
}

// MinSimilarity returns the floor the query applies.
func (q Query) MinSimilarity() float64 {
	if q.Floor == nil {
		return DefaultFloor
	}
	return *q.Floor
}

// WithDefaults fills a nil Floor and a non-positive Limit.
func (q Query) WithDefaults() Query {
	if q.Floor == nil {
		q.Floor = Floor(DefaultFloor)
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	return q
}

// Validate checks the fields every backend relies on.
func (q Query) Validate() error {
	if q.RepositoryID == "" {
		return errors.New("query requires a repository id")
	}
	if len(q.Vector) == 0 {
		return errors.New("query requires a vector")
	}
	if f := q.MinSimilarity(); f < -1 || f > 1 {
		return fmt.Errorf("query floor %g is outside [-1, 1]", f)
	}
	return nil
}

// Validate checks an embedding before it is written.
func (e CodeEmbedding) Validate() error {
	if e.RepositoryID == "" {
		return errors.New("embedding requires a repository id")
	}
	if e.FileName == "" {
		return errors.New("embedding requires a file name")
	}
	if !e.Degraded && len(e.Vector) == 0 {
		return fmt.Errorf("embedding for %s has no vector", e.FileName)
	}
	return nil
}

// BoundSource truncates source code to MaxSourceBytes without splitting a
// UTF-8 sequence.
func BoundSource(src string) string {
	if len(src) <= MaxSourceBytes {
		return src
	}
	cut := MaxSourceBytes
	for cut > 0 && !utf8RuneStart(src[cut]) {
		cut--
	}
	return src[:cut]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
