package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/jacklau/repolens/internal/ingest"
	"github.com/jacklau/repolens/internal/pubsub"
)

// eventsTimeout ends an idle progress stream.
const eventsTimeout = 30 * time.Minute

func writeEvent(w *bufio.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}

func sseHeaders(c fiber.Ctx) {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
}

type askRequest struct {
	Question string `json:"question"`
	Save     bool   `json:"save"`
}

// ask streams an answer as server-sent events: one "files" event with the
// context files, "delta" events with answer text, then "done" or "error".
func (s *Server) ask(c fiber.Ctx) error {
	id := c.Params("id")
	var body askRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	// The stream outlives the handler, so it gets its own context.
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AskTimeout)
	answer, err := s.projects.Ask(ctx, id, body.Question)
	if err != nil {
		cancel()
		return s.fail(c, err)
	}

	sseHeaders(c)
	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		if err := writeEvent(w, "files", answer.Files); err != nil {
			return
		}

		var text strings.Builder
		for delta, err := range answer.Stream {
			if err != nil {
				s.logger.Error("answer stream", "repository", id, "error", err)
				writeEvent(w, "error", fiber.Map{"error": err.Error()})
				return
			}
			text.WriteString(delta)
			if err := writeEvent(w, "delta", fiber.Map{"text": delta}); err != nil {
				return
			}
		}

		done := fiber.Map{"answer": text.String()}
		if body.Save {
			saved, err := s.projects.SaveAnswer(ctx, s.cfg.UserID, id, body.Question, text.String(), answer.Files)
			if err != nil {
				s.logger.Error("saving answer", "repository", id, "error", err)
			} else {
				done["questionId"] = saved.ID
			}
		}
		writeEvent(w, "done", done)
	})
}

// events streams ingestion progress of one repository until the run
// finishes.
func (s *Server) events(c fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.projects.Get(c.Context(), id); err != nil {
		return s.fail(c, err)
	}
	if s.broker == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "progress events are disabled"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventsTimeout)
	events := s.broker.SubscribeFunc(ctx, func(p ingest.Progress) bool { return p.RepositoryID == id })

	sseHeaders(c)
	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		fmt.Fprintf(w, ": connected\n\n")
		if err := w.Flush(); err != nil {
			return
		}
		for evt := range events {
			if err := writeEvent(w, string(evt.Type), evt.Payload); err != nil {
				return
			}
			if evt.Type == pubsub.Finished {
				return
			}
		}
	})
}
