package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/jacklau/repolens/internal/github"
	"github.com/jacklau/repolens/internal/ingest"
	"github.com/jacklau/repolens/internal/metrics"
	"github.com/jacklau/repolens/internal/project"
	"github.com/jacklau/repolens/internal/pubsub"
	"github.com/jacklau/repolens/internal/qa"
	"github.com/jacklau/repolens/internal/store"
	"github.com/jacklau/repolens/internal/vector"
)

// Projects is the subset of project.Service the API serves.
type Projects interface {
	Quote(ctx context.Context, userID, repoURL, credential string) (*project.Quote, error)
	Create(ctx context.Context, req project.CreateRequest) (*store.Repository, *project.Quote, error)
	Index(ctx context.Context, repositoryID string, quote int, observer ingest.Observer) (*ingest.Report, error)
	ChargeReindex(ctx context.Context, repositoryID string) (int, error)
	Ask(ctx context.Context, repositoryID, question string) (*qa.Answer, error)
	Get(ctx context.Context, repositoryID string) (*store.Repository, error)
	List(ctx context.Context, userID string, archived bool) ([]store.Repository, error)
	Stats(ctx context.Context, repositoryID string) (*store.RepositoryStats, error)
	Archive(ctx context.Context, repositoryID string) error
	Unarchive(ctx context.Context, repositoryID string) error
	Delete(ctx context.Context, repositoryID string) error
	Credits(ctx context.Context, userID string) (int, error)
	RefreshCommits(ctx context.Context, repositoryID string) (int, error)
	Commits(ctx context.Context, repositoryID string) ([]store.Commit, error)
	SaveAnswer(ctx context.Context, userID, repositoryID, question, answer string, files []vector.Match) (*store.Question, error)
	Questions(ctx context.Context, repositoryID string) ([]store.Question, error)
	DeleteQuestion(ctx context.Context, userID, id string) error
}

// Config configures the Server. Zero values take the defaults.
type Config struct {
	AppName      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string

	// MetricsPath serves Prometheus metrics when Metrics is set.
	MetricsPath string

	// UserID owns every request; authentication happens upstream.
	UserID string

	// IngestTimeout bounds background ingestion started by a request.
	IngestTimeout time.Duration

	// AskTimeout bounds one streamed answer.
	AskTimeout time.Duration

	// AccessLog enables the request logger middleware.
	AccessLog bool
}

// Server exposes Projects over HTTP.
type Server struct {
	app      *fiber.App
	projects Projects
	broker   *pubsub.Broker[ingest.Progress]
	cfg      Config
	logger   *slog.Logger

	// background runs ingestion started by requests. Tests replace it to
	// wait for completion.
	background func(func())
}

// New creates a Server. broker carries ingestion progress for the events
// stream and may be nil.
func New(projects Projects, broker *pubsub.Broker[ingest.Progress], m *metrics.Metrics, cfg Config, logger *slog.Logger) *Server {
	if cfg.AppName == "" {
		cfg.AppName = "repolens"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.UserID == "" {
		cfg.UserID = "local"
	}
	if cfg.IngestTimeout <= 0 {
		cfg.IngestTimeout = 2 * time.Hour
	}
	if cfg.AskTimeout <= 0 {
		cfg.AskTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(fiberlogger.New())
	}
	if len(cfg.CORSOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
			AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		}))
	}

	s := &Server{
		app:        app,
		projects:   projects,
		broker:     broker,
		cfg:        cfg,
		logger:     logger,
		background: func(fn func()) { go fn() },
	}

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if m != nil {
		app.Get(cfg.MetricsPath, adaptor.HTTPHandler(m.Handler()))
	}
	s.register(app.Group("/api/v1"))

	return s
}

// App returns the underlying Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops the server, waiting for active requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) register(router fiber.Router) {
	router.Get("/credits", s.credits)
	router.Post("/quote", s.quote)

	repos := router.Group("/repositories")
	repos.Get("/", s.listRepositories)
	repos.Post("/", s.createRepository)
	repos.Get("/:id", s.getRepository)
	repos.Delete("/:id", s.deleteRepository)
	repos.Post("/:id/reindex", s.reindex)
	repos.Get("/:id/events", s.events)
	repos.Post("/:id/archive", s.archive)
	repos.Post("/:id/unarchive", s.unarchive)
	repos.Post("/:id/ask", s.ask)
	repos.Get("/:id/questions", s.listQuestions)
	repos.Get("/:id/commits", s.listCommits)
	repos.Post("/:id/commits/refresh", s.refreshCommits)

	router.Delete("/questions/:id", s.deleteQuestion)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, github.ErrAuthRequired):
		return fiber.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound), errors.Is(err, github.ErrRepositoryNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, github.ErrRateLimited):
		return fiber.StatusTooManyRequests
	case errors.Is(err, project.ErrInsufficientCredits):
		return fiber.StatusPaymentRequired
	case errors.Is(err, project.ErrInvalidRequest), errors.Is(err, qa.ErrEmptyQuestion):
		return fiber.StatusBadRequest
	case errors.Is(err, project.ErrArchived):
		return fiber.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) fail(c fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

