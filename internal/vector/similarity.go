package vector

import (
	"fmt"
	"math"
	"sort"
)

// CosineSimilarity computes the cosine similarity between two float32 vectors.
// Returns 0 for zero vectors, and ErrDimensionMismatch if lengths differ.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}

	var dot, normA, normB float64
	for i := range a {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / math.Sqrt(normA*normB), nil
}

// Rank keeps the matches strictly above floor, sorts them by descending
// similarity and truncates to limit. Ties keep their input order.
func Rank(matches []Match, floor float64, limit int) []Match {
	kept := matches[:0:0]
	for _, m := range matches {
		if m.Similarity > floor {
			kept = append(kept, m)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Similarity > kept[j].Similarity
	})
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
