package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/jacklau/repolens/internal/project"
	"github.com/jacklau/repolens/internal/store"
)

type repositoryView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Owner      string     `json:"owner"`
	Repo       string     `json:"repo"`
	URL        string     `json:"url"`
	CreatedAt  time.Time  `json:"createdAt"`
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`
}

// view hides the access token.
func view(r *store.Repository) repositoryView {
	return repositoryView{
		ID:         r.ID,
		Name:       r.Name,
		Owner:      r.Owner,
		Repo:       r.Repo,
		URL:        r.URL,
		CreatedAt:  r.CreatedAt,
		ArchivedAt: r.ArchivedAt,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (s *Server) credits(c fiber.Ctx) error {
	balance, err := s.projects.Credits(c.Context(), s.cfg.UserID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"credits": balance})
}

type repositoryRequest struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Token string `json:"token"`
}

func (s *Server) quote(c fiber.Ctx) error {
	var body repositoryRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	q, err := s.projects.Quote(c.Context(), s.cfg.UserID, body.URL, body.Token)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"files": q.Files, "balance": q.Balance, "sufficient": q.Sufficient()})
}

func (s *Server) listRepositories(c fiber.Ctx) error {
	archived := c.Query("archived") == "true"
	repos, err := s.projects.List(c.Context(), s.cfg.UserID, archived)
	if err != nil {
		return s.fail(c, err)
	}
	views := make([]repositoryView, 0, len(repos))
	for i := range repos {
		views = append(views, view(&repos[i]))
	}
	return c.JSON(views)
}

// createRepository links a repository and starts its ingestion in the
// background. Progress is available from the events stream.
func (s *Server) createRepository(c fiber.Ctx) error {
	var body repositoryRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	repo, quote, err := s.projects.Create(c.Context(), project.CreateRequest{
		UserID: s.cfg.UserID,
		Name:   body.Name,
		URL:    body.URL,
		Token:  body.Token,
	})
	if err != nil {
		if quote != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error(), "files": quote.Files, "balance": quote.Balance})
		}
		return s.fail(c, err)
	}

	s.startIndex(repo.ID, quote.Files)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"repository": view(repo),
		"quote":      quote.Files,
		"balance":    quote.Balance,
	})
}

func (s *Server) startIndex(repositoryID string, quote int) {
	s.background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.IngestTimeout)
		defer cancel()
		if _, err := s.projects.Index(ctx, repositoryID, quote, nil); err != nil {
			s.logger.Error("background ingestion", "repository", repositoryID, "error", err)
		}
	})
}

func (s *Server) getRepository(c fiber.Ctx) error {
	stats, err := s.projects.Stats(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"repository": view(&stats.Repository),
		"files":      stats.Files,
		"degraded":   stats.Degraded,
		"commits":    stats.Commits,
		"questions":  stats.Questions,
		"lastRun":    stats.LastRun,
	})
}

func (s *Server) deleteRepository(c fiber.Ctx) error {
	if err := s.projects.Delete(c.Context(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) reindex(c fiber.Ctx) error {
	id := c.Params("id")
	quote, err := s.projects.ChargeReindex(c.Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	s.startIndex(id, quote)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"quote": quote})
}

func (s *Server) archive(c fiber.Ctx) error {
	if err := s.projects.Archive(c.Context(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) unarchive(c fiber.Ctx) error {
	if err := s.projects.Unarchive(c.Context(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) listQuestions(c fiber.Ctx) error {
	questions, err := s.projects.Questions(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(nonNil(questions))
}

func (s *Server) deleteQuestion(c fiber.Ctx) error {
	if err := s.projects.DeleteQuestion(c.Context(), s.cfg.UserID, c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) listCommits(c fiber.Ctx) error {
	commits, err := s.projects.Commits(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(nonNil(commits))
}

func (s *Server) refreshCommits(c fiber.Ctx) error {
	n, err := s.projects.RefreshCommits(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"new": n})
}
