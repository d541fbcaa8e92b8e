package vector

import (
	"errors"
	"math"
	"testing"
)

func TestCosineSimilarity_IdenticalVectors(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5}
	score, err := CosineSimilarity(a, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(score-1.0) > 1e-6 {
		t.Errorf("expected ~1.0 for identical vectors, got %f", score)
	}
}

func TestCosineSimilarity_OppositeVectors(t *testing.T) {
	score, err := CosineSimilarity([]float32{1, 2, 3}, []float32{-1, -2, -3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(score+1.0) > 1e-6 {
		t.Errorf("expected ~-1.0 for opposite vectors, got %f", score)
	}
}

func TestCosineSimilarity_KnownPair(t *testing.T) {
	score, err := CosineSimilarity([]float32{1, 0}, []float32{1, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := 1.0 / math.Sqrt(2.0); math.Abs(score-want) > 1e-6 {
		t.Errorf("expected ~%f, got %f", want, score)
	}
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	score, err := CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0 {
		t.Errorf("expected 0 for zero vector, got %f", score)
	}
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestRank_FloorIsStrict(t *testing.T) {
	in := []Match{
		{FileName: "a", Similarity: 0.5},
		{FileName: "b", Similarity: 0.50001},
		{FileName: "c", Similarity: 0.2},
	}
	got := Rank(in, 0.5, 10)
	if len(got) != 1 || got[0].FileName != "b" {
		t.Fatalf("expected only b above floor, got %+v", got)
	}
}

func TestRank_OrderAndLimit(t *testing.T) {
	in := []Match{
		{FileName: "low", Similarity: 0.6},
		{FileName: "high", Similarity: 0.95},
		{FileName: "mid", Similarity: 0.8},
		{FileName: "mid2", Similarity: 0.7},
	}
	got := Rank(in, 0.5, 3)
	want := []string{"high", "mid", "mid2"}
	if len(got) != len(want) {
		t.Fatalf("expected %d matches, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i].FileName != name {
			t.Errorf("position %d: expected %s, got %s", i, name, got[i].FileName)
		}
	}
	// Input is not modified.
	if in[0].FileName != "low" {
		t.Error("Rank must not reorder its input")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	v := []float32{0.25, -1.5, 3.0e-7, float32(math.Pi)}
	got, err := Decode(Encode(v))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("index %d: expected %v, got %v", i, v[i], got[i])
		}
	}
}

func TestDecode_BadLength(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated blob")
	}
}

func TestDecode_Empty(t *testing.T) {
	v, err := Decode(nil)
	if err != nil || v != nil {
		t.Fatalf("expected nil, nil; got %v, %v", v, err)
	}
}

func TestBoundSource(t *testing.T) {
	short := "package main"
	if BoundSource(short) != short {
		t.Error("short source should be unchanged")
	}

	long := make([]byte, MaxSourceBytes+10)
	for i := range long {
		long[i] = 'a'
	}
	// Place a multi-byte rune across the boundary.
	copy(long[MaxSourceBytes-1:], "é")
	got := BoundSource(string(long))
	if len(got) > MaxSourceBytes {
		t.Fatalf("expected at most %d bytes, got %d", MaxSourceBytes, len(got))
	}
	if len(got) != MaxSourceBytes-1 {
		t.Errorf("expected cut before the split rune at %d, got %d", MaxSourceBytes-1, len(got))
	}
}
