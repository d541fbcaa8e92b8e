package github

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestCountFiles(t *testing.T) {
	repo := newFakeRepo(t, sampleTree())
	e := NewEstimator(repo.clients(), fastOptions())

	n, err := e.CountFiles(context.Background(), "https://github.com/o/r", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7 eligible files, got %d", n)
	}
	if got := repo.fetches.Load(); got != 0 {
		t.Errorf("expected no content fetches, got %d", got)
	}
}

func TestCountFiles_EmptyRepository(t *testing.T) {
	repo := newFakeRepo(t, map[string]string{})
	e := NewEstimator(repo.clients(), fastOptions())

	n, err := e.CountFiles(context.Background(), "o/r", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
}

func TestCountFiles_Errors(t *testing.T) {
	repo := newFakeRepo(t, map[string]string{"a/b.go": "b"})
	repo.failNext("a", 10, http.StatusForbidden)
	e := NewEstimator(repo.clients(), fastOptions())

	_, err := e.CountFiles(context.Background(), "o/r", "")
	if !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired for 403 without rate headers, got %v", err)
	}

	_, err = e.CountFiles(context.Background(), "o/missing", "")
	if !errors.Is(err, ErrRepositoryNotFound) {
		t.Fatalf("expected ErrRepositoryNotFound, got %v", err)
	}
}
