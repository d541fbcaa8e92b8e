package project

import (
	"context"
	"fmt"
	"strings"

	"github.com/jacklau/repolens/internal/store"
	"github.com/jacklau/repolens/internal/vector"
)

// SaveAnswer stores a question with its answer and the files it was
// answered from.
func (s *Service) SaveAnswer(ctx context.Context, userID, repositoryID, question, answer string, files []vector.Match) (*store.Question, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidRequest)
	}
	if _, err := s.deps.Store.GetRepository(ctx, repositoryID); err != nil {
		return nil, err
	}
	return s.deps.Store.SaveQuestion(ctx, &store.Question{
		RepositoryID:   repositoryID,
		UserID:         userID,
		Question:       question,
		Answer:         answer,
		FileReferences: store.ReferencesFromMatches(files),
	})
}

// Questions returns the saved questions of a repository, newest first.
func (s *Service) Questions(ctx context.Context, repositoryID string) ([]store.Question, error) {
	return s.deps.Store.ListQuestions(ctx, repositoryID)
}

// DeleteQuestion removes a saved question of the user.
func (s *Service) DeleteQuestion(ctx context.Context, userID, id string) error {
	return s.deps.Store.DeleteQuestion(ctx, userID, id)
}
