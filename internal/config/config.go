package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	GitHub    GitHubConfig    `yaml:"github"`
	Providers ProvidersConfig `yaml:"providers"`
	Store     StoreConfig     `yaml:"store"`
	Vector    VectorConfig    `yaml:"vector"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Ask       AskConfig       `yaml:"ask"`
	Commits   CommitsConfig   `yaml:"commits"`
	Notify    NotifyConfig    `yaml:"notify"`
	Server    ServerConfig    `yaml:"server"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// GitHubConfig holds GitHub authentication settings. Auth is "token"
// (default, Token may be empty for public repositories) or "app".
type GitHubConfig struct {
	Auth              string  `yaml:"auth"`
	Token             string  `yaml:"token"`
	AppID             string  `yaml:"app_id"`
	InstallationID    string  `yaml:"installation_id"`
	PrivateKeyPath    string  `yaml:"private_key_path"`
	PrivateKey        string  `yaml:"private_key"`
	EnterpriseURL     string  `yaml:"enterprise_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ProviderConfig holds settings for a single provider (embedding or LLM).
type ProviderConfig struct {
	Type   string `yaml:"type"`
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`
	URL    string `yaml:"url"`

	// Dimension fixes the embedding length. Required for the pgvector and
	// qdrant backends.
	Dimension int `yaml:"dimension"`
}

// ProvidersConfig groups embedding and LLM provider configs. Answer
// optionally selects a different model for question answering; it
// defaults to LLM.
type ProvidersConfig struct {
	Embedding ProviderConfig `yaml:"embedding"`
	LLM       ProviderConfig `yaml:"llm"`
	Answer    ProviderConfig `yaml:"answer"`
}

// StoreConfig holds storage settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// VectorConfig selects the embedding index backend: "sqlite" (default,
// the store database), "pgvector", "qdrant" or "memory" (lost on exit).
type VectorConfig struct {
	Backend          string `yaml:"backend"`
	PostgresURL      string `yaml:"postgres_url"`
	QdrantAddr       string `yaml:"qdrant_addr"`
	QdrantCollection string `yaml:"qdrant_collection"`
}

// IngestConfig holds ingestion parameters.
type IngestConfig struct {
	Workers         int      `yaml:"workers"`
	MaxDepth        int      `yaml:"max_depth"`
	FileTimeoutRaw  string   `yaml:"file_timeout"`
	RequestTimeout  string   `yaml:"request_timeout"`
	MaxInputChars   int      `yaml:"max_input_chars"`
	MaxSummaryChars int      `yaml:"max_summary_chars"`
	RetryAttempts   int      `yaml:"retry_attempts"`
	Exclude         []string `yaml:"exclude"`
	CustomPrompt    string   `yaml:"custom_prompt"`
	InitialCredits  int      `yaml:"initial_credits"`
	User            string   `yaml:"user"`
}

// AskConfig holds question answering parameters.
type AskConfig struct {
	SimilarityFloor *float64 `yaml:"similarity_floor"`
	Limit           int      `yaml:"limit"`
	MaxContextChars int      `yaml:"max_context_chars"`
	TimeoutRaw      string   `yaml:"timeout"`
	CustomPrompt    string   `yaml:"custom_prompt"`
}

// CommitsConfig holds commit log parameters.
type CommitsConfig struct {
	Limit           int    `yaml:"limit"`
	PollIntervalRaw string `yaml:"poll_interval"`
}

// NotifyConfig holds notification webhook URLs. Type is "slack",
// "discord", "both" or empty for none.
type NotifyConfig struct {
	Type           string `yaml:"type"`
	SlackWebhook   string `yaml:"slack_webhook"`
	DiscordWebhook string `yaml:"discord_webhook"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeoutRaw  string   `yaml:"read_timeout"`
	WriteTimeoutRaw string   `yaml:"write_timeout"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// On reports whether metrics are enabled. They are unless disabled
// explicitly.
func (m MetricsConfig) On() bool {
	return m.Enabled == nil || *m.Enabled
}

// FileTimeout returns the parsed per-file timeout.
func (i IngestConfig) FileTimeout() time.Duration {
	return mustDuration(i.FileTimeoutRaw)
}

// Timeout returns the parsed per-request provider timeout.
func (i IngestConfig) Timeout() time.Duration {
	return mustDuration(i.RequestTimeout)
}

// Timeout returns the parsed answer timeout.
func (a AskConfig) Timeout() time.Duration {
	return mustDuration(a.TimeoutRaw)
}

// PollInterval returns the parsed commit poll interval.
func (c CommitsConfig) PollInterval() time.Duration {
	return mustDuration(c.PollIntervalRaw)
}

// ReadTimeout returns the parsed server read timeout.
func (s ServerConfig) ReadTimeout() time.Duration {
	return mustDuration(s.ReadTimeoutRaw)
}

// WriteTimeout returns the parsed server write timeout.
func (s ServerConfig) WriteTimeout() time.Duration {
	return mustDuration(s.WriteTimeoutRaw)
}

// mustDuration parses a duration that validate has already checked.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// envVarPattern matches ${VAR} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} placeholders with environment variable values.
// Returns an error if any referenced variable is not set.
func expandEnvVars(data []byte) ([]byte, error) {
	var missing []string

	result := envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		val, ok := os.LookupEnv(string(varName))
		if !ok {
			missing = append(missing, string(varName))
			return match
		}
		return []byte(val)
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return expandTilde("~/.repolens/config.yaml")
}

// Load reads and parses a config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses config from raw YAML bytes, expanding env vars and validating.
func Parse(data []byte) (*Config, error) {
	expanded, err := expandEnvVars(data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func setDefault[T comparable](v *T, def T) {
	var zero T
	if *v == zero {
		*v = def
	}
}

func applyDefaults(cfg *Config) {
	setDefault(&cfg.GitHub.Auth, "token")
	setDefault(&cfg.GitHub.RequestsPerSecond, 10)
	setDefault(&cfg.GitHub.Burst, 5)

	if cfg.Providers.Answer.Type == "" {
		cfg.Providers.Answer = cfg.Providers.LLM
	}

	setDefault(&cfg.Store.Path, "~/.repolens/repolens.db")
	cfg.Store.Path = expandTilde(cfg.Store.Path)

	setDefault(&cfg.Vector.Backend, "sqlite")
	setDefault(&cfg.Vector.QdrantCollection, "code_embeddings")

	setDefault(&cfg.Ingest.Workers, 5)
	setDefault(&cfg.Ingest.MaxDepth, 64)
	setDefault(&cfg.Ingest.FileTimeoutRaw, "5m")
	setDefault(&cfg.Ingest.RequestTimeout, "30s")
	setDefault(&cfg.Ingest.MaxInputChars, 1000)
	setDefault(&cfg.Ingest.MaxSummaryChars, 1500)
	setDefault(&cfg.Ingest.RetryAttempts, 5)
	setDefault(&cfg.Ingest.InitialCredits, 150)
	setDefault(&cfg.Ingest.User, "local")

	if cfg.Ask.SimilarityFloor == nil {
		floor := 0.5
		cfg.Ask.SimilarityFloor = &floor
	}
	setDefault(&cfg.Ask.Limit, 10)
	setDefault(&cfg.Ask.MaxContextChars, 40000)
	setDefault(&cfg.Ask.TimeoutRaw, "2m")

	setDefault(&cfg.Commits.Limit, 15)
	setDefault(&cfg.Commits.PollIntervalRaw, "10m")

	setDefault(&cfg.Server.Addr, ":8080")
	setDefault(&cfg.Server.ReadTimeoutRaw, "30s")
	setDefault(&cfg.Server.WriteTimeoutRaw, "5m")

	setDefault(&cfg.Metrics.Path, "/metrics")
}

func validate(cfg *Config) error {
	switch cfg.GitHub.Auth {
	case "token":
	case "app":
		if cfg.GitHub.AppID == "" || cfg.GitHub.InstallationID == "" {
			return fmt.Errorf("github app auth requires app_id and installation_id")
		}
		if cfg.GitHub.PrivateKey == "" && cfg.GitHub.PrivateKeyPath == "" {
			return fmt.Errorf("github app auth requires private_key or private_key_path")
		}
	default:
		return fmt.Errorf("unsupported github auth: %q", cfg.GitHub.Auth)
	}
	if cfg.GitHub.RequestsPerSecond < 0 || cfg.GitHub.Burst < 0 {
		return fmt.Errorf("github rate limit must not be negative")
	}

	// Validate provider types if set
	validEmbedTypes := map[string]bool{"openai": true, "ollama": true, "": true}
	if !validEmbedTypes[cfg.Providers.Embedding.Type] {
		return fmt.Errorf("unsupported embedding provider type: %s", cfg.Providers.Embedding.Type)
	}
	validLLMTypes := map[string]bool{"openai": true, "ollama": true, "anthropic": true, "": true}
	if !validLLMTypes[cfg.Providers.LLM.Type] {
		return fmt.Errorf("unsupported LLM provider type: %s", cfg.Providers.LLM.Type)
	}
	if !validLLMTypes[cfg.Providers.Answer.Type] {
		return fmt.Errorf("unsupported answer provider type: %s", cfg.Providers.Answer.Type)
	}
	if cfg.Providers.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding dimension must not be negative, got %d", cfg.Providers.Embedding.Dimension)
	}

	switch cfg.Vector.Backend {
	case "sqlite", "memory":
	case "pgvector":
		if cfg.Vector.PostgresURL == "" {
			return fmt.Errorf("pgvector backend requires postgres_url")
		}
		if cfg.Providers.Embedding.Dimension == 0 {
			return fmt.Errorf("pgvector backend requires providers.embedding.dimension")
		}
	case "qdrant":
		if cfg.Vector.QdrantAddr == "" {
			return fmt.Errorf("qdrant backend requires qdrant_addr")
		}
		if cfg.Providers.Embedding.Dimension == 0 {
			return fmt.Errorf("qdrant backend requires providers.embedding.dimension")
		}
	default:
		return fmt.Errorf("unsupported vector backend: %q", cfg.Vector.Backend)
	}

	if cfg.Ingest.Workers < 1 || cfg.Ingest.MaxDepth < 1 {
		return fmt.Errorf("ingest workers and max_depth must be positive")
	}
	if cfg.Ingest.InitialCredits < 0 {
		return fmt.Errorf("initial_credits must not be negative, got %d", cfg.Ingest.InitialCredits)
	}

	if f := *cfg.Ask.SimilarityFloor; f < 0 || f > 1 {
		return fmt.Errorf("similarity_floor must be between 0 and 1, got %f", f)
	}
	if cfg.Ask.Limit < 1 {
		return fmt.Errorf("ask limit must be positive, got %d", cfg.Ask.Limit)
	}
	if cfg.Commits.Limit < 1 || cfg.Commits.Limit > 100 {
		return fmt.Errorf("commits limit must be between 1 and 100, got %d", cfg.Commits.Limit)
	}

	// Validate durations parse correctly
	durations := []struct{ name, raw string }{
		{"ingest.file_timeout", cfg.Ingest.FileTimeoutRaw},
		{"ingest.request_timeout", cfg.Ingest.RequestTimeout},
		{"ask.timeout", cfg.Ask.TimeoutRaw},
		{"commits.poll_interval", cfg.Commits.PollIntervalRaw},
		{"server.read_timeout", cfg.Server.ReadTimeoutRaw},
		{"server.write_timeout", cfg.Server.WriteTimeoutRaw},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.raw, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %q", d.name, d.raw)
		}
	}

	switch cfg.Notify.Type {
	case "", "slack", "discord", "both":
	default:
		return fmt.Errorf("unsupported notify type: %q", cfg.Notify.Type)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with /, got %q", cfg.Metrics.Path)
	}

	return nil
}
