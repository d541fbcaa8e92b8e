package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jacklau/repolens/internal/config"
	"github.com/jacklau/repolens/internal/embedding"
	"github.com/jacklau/repolens/internal/github"
	"github.com/jacklau/repolens/internal/ingest"
	"github.com/jacklau/repolens/internal/metrics"
	"github.com/jacklau/repolens/internal/notify"
	"github.com/jacklau/repolens/internal/project"
	"github.com/jacklau/repolens/internal/provider"
	"github.com/jacklau/repolens/internal/pubsub"
	"github.com/jacklau/repolens/internal/qa"
	"github.com/jacklau/repolens/internal/retry"
	"github.com/jacklau/repolens/internal/store"
	"github.com/jacklau/repolens/internal/summarize"
	"github.com/jacklau/repolens/internal/vector"
	"github.com/jacklau/repolens/internal/vector/pgvector"
	"github.com/jacklau/repolens/internal/vector/qdrant"

	gogithub "github.com/google/go-github/v60/github"
)

var (
	cfgFile string
	verbose bool
	noColor bool
)

// errProvidersRequired is returned by commands that call the embedding or
// text-generation backends when none are configured.
var errProvidersRequired = errors.New("embedding and llm providers must be configured; run 'repolens init'")

var rootCmd = &cobra.Command{
	Use:   "repolens",
	Short: "Index GitHub repositories and ask questions about their code",
	Long: `RepoLens walks a GitHub repository, summarizes and embeds every file,
and answers natural-language questions about the codebase from the most
relevant files. It also keeps an AI-summarized log of recent commits.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default %s)", config.DefaultPath()))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

// components holds initialized components for use by subcommands.
type components struct {
	Config   *config.Config
	Store    *store.DB
	Index    vector.Index
	Broker   *pubsub.Broker[ingest.Progress]
	Metrics  *metrics.Metrics
	Projects *project.Service
	Logger   *slog.Logger

	// HasProviders is false when no embedding or LLM backend is
	// configured; ingestion, questions and commit summaries are then
	// unavailable.
	HasProviders bool

	closers []func() error
}

// Close releases the vector backend and the store.
func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn("closing component", "error", err)
		}
	}
}

// requireProviders fails commands that need the AI backends.
func (c *components) requireProviders() error {
	if !c.HasProviders {
		return errProvidersRequired
	}
	return nil
}

// setup loads the config and initializes the components.
func setup() (*components, error) {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	c, err := initComponents(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing components: %w", err)
	}
	return c, nil
}

// initComponents creates all components from config.
func initComponents(cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{
		Config: cfg,
		Logger: logger,
		Broker: pubsub.NewBroker[ingest.Progress](),
	}
	if cfg.Metrics.On() {
		c.Metrics = metrics.New()
	}

	// Open store
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	c.Store = db
	c.closers = append(c.closers, db.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.EnsureUser(ctx, userID(cfg), cfg.Ingest.InitialCredits); err != nil {
		c.Close()
		return nil, fmt.Errorf("preparing credit ledger: %w", err)
	}

	index, err := openIndex(ctx, cfg, db)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Index = index
	if closer, ok := index.(io.Closer); ok {
		c.closers = append(c.closers, closer.Close)
	}

	clients, err := createGitHubClients(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	ghOpts := githubOptions(cfg, logger)

	n, err := createNotifier(cfg, "")
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("creating notifier: %w", err)
	}

	deps := project.Deps{
		Store:       db,
		Index:       index,
		Estimator:   github.NewEstimator(clients, ghOpts),
		Commits:     github.NewCommitPoller(clients, ghOpts),
		Notifier:    n,
		Metrics:     c.Metrics,
		Logger:      logger.With("component", "project"),
		CommitLimit: cfg.Commits.Limit,
	}

	embedder, completer, answerer, err := createProviders(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	if embedder != nil && completer != nil && answerer != nil {
		c.HasProviders = true

		policy := retry.DefaultPolicy(nil)
		if cfg.Ingest.RetryAttempts > 0 {
			policy.MaxAttempts = cfg.Ingest.RetryAttempts
		}

		summarizer := summarize.New(completer, summarize.Options{
			MaxInputChars:   cfg.Ingest.MaxInputChars,
			MaxSummaryChars: cfg.Ingest.MaxSummaryChars,
			Timeout:         cfg.Ingest.Timeout(),
			Retry:           &policy,
			CustomPrompt:    cfg.Ingest.CustomPrompt,
			Logger:          logger.With("component", "summarizer"),
		})

		embedOpts := []embedding.Option{
			embedding.WithRetry(policy),
			embedding.WithLogger(logger.With("component", "embedder")),
		}
		if cfg.Providers.Embedding.Dimension > 0 {
			embedOpts = append(embedOpts, embedding.WithDimension(cfg.Providers.Embedding.Dimension))
		}
		if d := cfg.Ingest.Timeout(); d > 0 {
			embedOpts = append(embedOpts, embedding.WithTimeout(d))
		}
		emb := embedding.New(embedder, embedOpts...)

		deps.Ingester = ingest.New(ingest.Deps{
			Walker:      github.NewWalker(clients, ghOpts),
			Summarizer:  summarizer,
			Embedder:    emb,
			Index:       index,
			Broker:      c.Broker,
			Metrics:     c.Metrics,
			Logger:      logger.With("component", "ingest"),
			Workers:     cfg.Ingest.Workers,
			FileTimeout: cfg.Ingest.FileTimeout(),
		})
		deps.DiffSummarizer = summarizer
		deps.Answerer = qa.New(emb, index, answerer, qa.Options{
			Floor:           cfg.Ask.SimilarityFloor,
			Limit:           cfg.Ask.Limit,
			MaxContextChars: cfg.Ask.MaxContextChars,
			Timeout:         cfg.Ask.Timeout(),
			CustomPrompt:    cfg.Ask.CustomPrompt,
			Metrics:         c.Metrics,
			Logger:          logger.With("component", "qa"),
		})
	}

	c.Projects = project.New(deps)
	return c, nil
}

// githubOptions builds the traversal options shared by the Estimator, the
// Walker and the CommitPoller.
func githubOptions(cfg *config.Config, logger *slog.Logger) github.Options {
	return github.Options{
		MaxDepth:          cfg.Ingest.MaxDepth,
		Concurrency:       cfg.Ingest.Workers,
		RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
		Burst:             cfg.GitHub.Burst,
		Excluder:          github.NewExcluder(cfg.Ingest.Exclude...),
		Logger:            logger.With("component", "github"),
	}
}

// userID returns the local user that owns repositories and credits.
func userID(cfg *config.Config) string {
	if cfg.Ingest.User == "" {
		return "local"
	}
	return cfg.Ingest.User
}

// openIndex opens the configured embedding index. The sqlite backend shares
// the store database.
func openIndex(ctx context.Context, cfg *config.Config, db *store.DB) (vector.Index, error) {
	dim := cfg.Providers.Embedding.Dimension
	switch cfg.Vector.Backend {
	case "sqlite", "":
		return db.Embeddings(), nil
	case "memory":
		return vector.NewMemoryIndex(), nil
	case "pgvector":
		idx, err := pgvector.Open(ctx, cfg.Vector.PostgresURL, dim)
		if err != nil {
			return nil, fmt.Errorf("opening pgvector index: %w", err)
		}
		return idx, nil
	case "qdrant":
		idx, err := qdrant.Open(ctx, cfg.Vector.QdrantAddr, cfg.Vector.QdrantCollection, dim)
		if err != nil {
			return nil, fmt.Errorf("opening qdrant index: %w", err)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported vector backend: %q", cfg.Vector.Backend)
	}
}

// createGitHubClients builds the default GitHub client: a GitHub App
// installation, a personal token, or anonymous access.
func createGitHubClients(cfg *config.Config) (*github.Clients, error) {
	var def *gogithub.Client
	switch {
	case cfg.GitHub.Auth == "app":
		appID, err := strconv.ParseInt(cfg.GitHub.AppID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing app_id: %w", err)
		}
		installID, err := strconv.ParseInt(cfg.GitHub.InstallationID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing installation_id: %w", err)
		}
		client, err := github.NewGitHubClient(appID, installID, []byte(cfg.GitHub.PrivateKey), cfg.GitHub.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("creating GitHub client: %w", err)
		}
		def = client
	case cfg.GitHub.Token != "":
		def = gogithub.NewClient(nil).WithAuthToken(cfg.GitHub.Token)
	}

	clients := github.NewClients(def)
	if cfg.GitHub.EnterpriseURL != "" {
		return clients.WithEnterpriseURL(cfg.GitHub.EnterpriseURL)
	}
	return clients, nil
}

// createProviders builds the embedding backend, the summary completer and
// the answer completer. Each is nil when its provider is not configured.
func createProviders(cfg *config.Config) (provider.Embedder, provider.Completer, provider.Completer, error) {
	var (
		embedder  provider.Embedder
		completer provider.Completer
		answerer  provider.Completer
		err       error
	)

	if configured(cfg.Providers.Embedding) {
		embedder, err = provider.NewEmbedder(provider.EmbedderConfig{
			Type:   cfg.Providers.Embedding.Type,
			Model:  cfg.Providers.Embedding.Model,
			APIKey: cfg.Providers.Embedding.APIKey,
			URL:    cfg.Providers.Embedding.URL,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating embedding provider: %w", err)
		}
	}

	if configured(cfg.Providers.LLM) {
		completer, err = newCompleter(cfg.Providers.LLM)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating llm provider: %w", err)
		}
		answerer = completer
	}

	if configured(cfg.Providers.Answer) && cfg.Providers.Answer != cfg.Providers.LLM {
		answerer, err = newCompleter(cfg.Providers.Answer)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating answer provider: %w", err)
		}
	}

	return embedder, completer, answerer, nil
}

func configured(p config.ProviderConfig) bool {
	return p.Type != "" || p.APIKey != ""
}

func newCompleter(p config.ProviderConfig) (provider.Completer, error) {
	return provider.NewCompleter(provider.CompleterConfig{
		Type:   p.Type,
		Model:  p.Model,
		APIKey: p.APIKey,
		URL:    p.URL,
	})
}

// createNotifier builds a Notifier from config and flag override.
func createNotifier(cfg *config.Config, notifyFlag string) (notify.Notifier, error) {
	notifyType := notifyFlag
	if notifyType == "" {
		notifyType = cfg.Notify.Type
	}
	if notifyType == "" {
		// Determine from config
		hasSlack := cfg.Notify.SlackWebhook != ""
		hasDiscord := cfg.Notify.DiscordWebhook != ""
		switch {
		case hasSlack && hasDiscord:
			notifyType = "both"
		case hasSlack:
			notifyType = "slack"
		case hasDiscord:
			notifyType = "discord"
		default:
			return nil, nil // no notification configured
		}
	}

	return notify.NewNotifier(notifyType, cfg.Notify.SlackWebhook, cfg.Notify.DiscordWebhook)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
