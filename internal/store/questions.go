package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jacklau/repolens/internal/vector"
)

// Limits applied to saved file references.
const (
	MaxFileReferences    = 50
	maxReferenceName     = 1024
	maxReferenceSummary  = 8 * 1024
	maxQuestionTextBytes = 64 * 1024
)

// FileReference is a file cited by a saved answer.
type FileReference struct {
	FileName   string `json:"fileName"`
	SourceCode string `json:"sourceCode"`
	Summary    string `json:"summary"`
}

// Validate checks that the reference names a file and fits the size limits.
func (f FileReference) Validate() error {
	switch {
	case f.FileName == "":
		return errors.New("file reference requires a file name")
	case len(f.FileName) > maxReferenceName:
		return fmt.Errorf("file reference name exceeds %d bytes", maxReferenceName)
	case len(f.SourceCode) > vector.MaxSourceBytes:
		return fmt.Errorf("file reference %s: source exceeds %d bytes", f.FileName, vector.MaxSourceBytes)
	case len(f.Summary) > maxReferenceSummary:
		return fmt.Errorf("file reference %s: summary exceeds %d bytes", f.FileName, maxReferenceSummary)
	}
	return nil
}

// ReferencesFromMatches converts search hits into file references.
func ReferencesFromMatches(matches []vector.Match) []FileReference {
	refs := make([]FileReference, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, FileReference{FileName: m.FileName, SourceCode: m.SourceCode, Summary: m.Summary})
	}
	return refs
}

// Question is a saved question and its answer.
type Question struct {
	ID             string          `json:"id"`
	RepositoryID   string          `json:"repositoryId"`
	UserID         string          `json:"userId"`
	Question       string          `json:"question"`
	Answer         string          `json:"answer"`
	FileReferences []FileReference `json:"fileReferences"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// SaveQuestion validates and stores a question with its file references.
func (d *DB) SaveQuestion(ctx context.Context, q *Question) (*Question, error) {
	if q.Question == "" {
		return nil, errors.New("question text is required")
	}
	if len(q.Question) > maxQuestionTextBytes || len(q.Answer) > maxQuestionTextBytes {
		return nil, fmt.Errorf("question or answer exceeds %d bytes", maxQuestionTextBytes)
	}
	if len(q.FileReferences) > MaxFileReferences {
		return nil, fmt.Errorf("too many file references: %d > %d", len(q.FileReferences), MaxFileReferences)
	}
	for _, ref := range q.FileReferences {
		if err := ref.Validate(); err != nil {
			return nil, err
		}
	}

	refs := q.FileReferences
	if refs == nil {
		refs = []FileReference{}
	}
	encoded, err := json.Marshal(refs)
	if err != nil {
		return nil, fmt.Errorf("encoding file references: %w", err)
	}

	saved := *q
	saved.FileReferences = refs
	if saved.ID == "" {
		saved.ID = uuid.NewString()
	}
	created := d.timestamp()
	saved.CreatedAt = parseTime(created)

	_, err = d.db.ExecContext(ctx,
		`INSERT INTO questions (id, repository_id, user_id, question, answer, file_references, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		saved.ID, saved.RepositoryID, saved.UserID, saved.Question, saved.Answer, string(encoded), created,
	)
	if err != nil {
		return nil, fmt.Errorf("saving question: %w", err)
	}
	return &saved, nil
}

// ListQuestions returns the repository's saved questions, newest first.
func (d *DB) ListQuestions(ctx context.Context, repositoryID string) ([]Question, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, repository_id, user_id, question, answer, file_references, created_at
		 FROM questions WHERE repository_id = ? ORDER BY created_at DESC, id`,
		repositoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing questions: %w", err)
	}
	defer rows.Close()

	var questions []Question
	for rows.Next() {
		var q Question
		var refs, created string
		if err := rows.Scan(&q.ID, &q.RepositoryID, &q.UserID, &q.Question, &q.Answer, &refs, &created); err != nil {
			return nil, fmt.Errorf("scanning question: %w", err)
		}
		if err := json.Unmarshal([]byte(refs), &q.FileReferences); err != nil {
			return nil, fmt.Errorf("decoding file references of %s: %w", q.ID, err)
		}
		q.CreatedAt = parseTime(created)
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// DeleteQuestion removes a saved question owned by userID.
func (d *DB) DeleteQuestion(ctx context.Context, userID, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM questions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting question: %w", err)
	}
	return expectOne(res, "question", id)
}
