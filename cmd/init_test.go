package cmd

import (
	"strings"
	"testing"

	"github.com/jacklau/repolens/internal/config"
)

func TestBuildConfigYAML_OpenAI(t *testing.T) {
	result := buildConfigYAML(true, "openai", "openai", "", "")

	if !strings.Contains(result, "model: text-embedding-3-small") {
		t.Error("expected OpenAI embedding model 'text-embedding-3-small' in config")
	}
	if !strings.Contains(result, "model: gpt-4o-mini") {
		t.Error("expected OpenAI LLM model 'gpt-4o-mini' in config")
	}
	// Check api_key appears for both providers
	if strings.Count(result, "${OPENAI_API_KEY}") != 2 {
		t.Errorf("expected two occurrences of ${OPENAI_API_KEY}, got %d", strings.Count(result, "${OPENAI_API_KEY}"))
	}
	if !strings.Contains(result, "  token: ${GITHUB_TOKEN}") {
		t.Error("expected github token placeholder")
	}
}

func TestBuildConfigYAML_Anthropic(t *testing.T) {
	result := buildConfigYAML(false, "openai", "anthropic", "", "")

	if !strings.Contains(result, "type: anthropic") {
		t.Error("expected 'type: anthropic' in config")
	}
	if !strings.Contains(result, "model: claude-sonnet-4-20250514") {
		t.Errorf("expected Anthropic model 'claude-sonnet-4-20250514' in config, got:\n%s", result)
	}
	if !strings.Contains(result, "${ANTHROPIC_API_KEY}") {
		t.Errorf("expected ${ANTHROPIC_API_KEY} in config, got:\n%s", result)
	}
	if strings.Contains(result, "${GITHUB_TOKEN}") {
		t.Error("expected no token placeholder when declined")
	}
}

func TestBuildConfigYAML_Ollama(t *testing.T) {
	result := buildConfigYAML(false, "ollama", "ollama", "", "")

	if !strings.Contains(result, "model: nomic-embed-text") {
		t.Errorf("expected Ollama embedding model 'nomic-embed-text' in config, got:\n%s", result)
	}
	if !strings.Contains(result, "model: llama3") {
		t.Errorf("expected Ollama LLM model 'llama3' in config, got:\n%s", result)
	}
	// Ollama should not reference OpenAI/Anthropic API keys
	if strings.Contains(result, "${OPENAI_API_KEY}") {
		t.Error("Ollama config should not reference ${OPENAI_API_KEY}")
	}
	if strings.Contains(result, "${ANTHROPIC_API_KEY}") {
		t.Error("Ollama config should not reference ${ANTHROPIC_API_KEY}")
	}
}

func TestBuildConfigYAML_WithWebhooks(t *testing.T) {
	result := buildConfigYAML(false, "openai", "openai", "https://hooks.slack.com/test", "https://discord.com/api/webhooks/test")

	if !strings.Contains(result, "slack_webhook: https://hooks.slack.com/test") {
		t.Error("expected slack_webhook in config")
	}
	if !strings.Contains(result, "discord_webhook: https://discord.com/api/webhooks/test") {
		t.Error("expected discord_webhook in config")
	}
}

func TestBuildConfigYAML_Parses(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	tests := []struct {
		name  string
		token bool
		embed string
		llm   string
	}{
		{"openai with token", true, "openai", "openai"},
		{"anthropic", false, "openai", "anthropic"},
		{"ollama", false, "ollama", "ollama"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte(buildConfigYAML(tt.token, tt.embed, tt.llm, "", "")))
			if err != nil {
				t.Fatalf("generated config does not parse: %v", err)
			}
			if cfg.Providers.LLM.Type != tt.llm {
				t.Errorf("expected llm %q, got %q", tt.llm, cfg.Providers.LLM.Type)
			}
			if tt.token && cfg.GitHub.Token != "ghp_test" {
				t.Errorf("expected token from environment, got %q", cfg.GitHub.Token)
			}
			if cfg.Vector.Backend != "sqlite" || cfg.Ingest.InitialCredits != 150 {
				t.Errorf("unexpected defaults: %+v %+v", cfg.Vector, cfg.Ingest)
			}
		})
	}
}

func TestEmbeddingProviderDefaults(t *testing.T) {
	tests := []struct {
		provider      string
		expectedModel string
		expectedKey   string
	}{
		{"openai", "text-embedding-3-small", "${OPENAI_API_KEY}"},
		{"ollama", "nomic-embed-text", "# not required for ollama"},
		{"unknown", "text-embedding-3-small", "${OPENAI_API_KEY}"}, // falls back to openai
	}

	for _, tc := range tests {
		t.Run(tc.provider, func(t *testing.T) {
			model, key := embeddingProviderDefaults(tc.provider)
			if model != tc.expectedModel {
				t.Errorf("embeddingProviderDefaults(%q) model = %q, want %q", tc.provider, model, tc.expectedModel)
			}
			if key != tc.expectedKey {
				t.Errorf("embeddingProviderDefaults(%q) key = %q, want %q", tc.provider, key, tc.expectedKey)
			}
		})
	}
}

func TestLLMProviderDefaults(t *testing.T) {
	tests := []struct {
		provider      string
		expectedModel string
		expectedKey   string
	}{
		{"openai", "gpt-4o-mini", "${OPENAI_API_KEY}"},
		{"anthropic", "claude-sonnet-4-20250514", "${ANTHROPIC_API_KEY}"},
		{"ollama", "llama3", "# not required for ollama"},
		{"unknown", "gpt-4o-mini", "${OPENAI_API_KEY}"}, // falls back to openai
	}

	for _, tc := range tests {
		t.Run(tc.provider, func(t *testing.T) {
			model, key := llmProviderDefaults(tc.provider)
			if model != tc.expectedModel {
				t.Errorf("llmProviderDefaults(%q) model = %q, want %q", tc.provider, model, tc.expectedModel)
			}
			if key != tc.expectedKey {
				t.Errorf("llmProviderDefaults(%q) key = %q, want %q", tc.provider, key, tc.expectedKey)
			}
		})
	}
}
