package provider

import "fmt"

// NewEmbedder creates an Embedder from configuration.
func NewEmbedder(cfg EmbedderConfig) (Embedder, error) {
	switch cfg.Type {
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embedder requires an api key")
		}
		return NewOpenAIEmbedder(cfg.APIKey, cfg.Model, cfg.URL), nil
	case "ollama":
		return NewOllamaEmbedder(cfg.URL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Type)
	}
}

// NewCompleter creates a Completer from configuration. Every returned
// completer also implements StreamCompleter.
func NewCompleter(cfg CompleterConfig) (Completer, error) {
	switch cfg.Type {
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai completer requires an api key")
		}
		return NewOpenAICompleter(cfg.APIKey, cfg.Model, cfg.URL), nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic completer requires an api key")
		}
		return NewAnthropicCompleter(cfg.APIKey, cfg.Model), nil
	case "ollama":
		return NewOllamaCompleter(cfg.URL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Type)
	}
}
