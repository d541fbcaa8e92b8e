package provider

import (
	"context"
	"errors"
)

// Sentinel errors for provider operations.
var (
	ErrRateLimit       = errors.New("rate limit exceeded")
	ErrTimeout         = errors.New("request timed out")
	ErrInvalidResponse = errors.New("invalid response from provider")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Embed returns a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer generates text completions from a prompt.
type Completer interface {
	// Complete returns a text completion for the given prompt.
	Complete(ctx context.Context, prompt string) (string, error)
}

// StreamCompleter generates a completion incrementally. onDelta is called
// for every text fragment in order; returning an error from onDelta stops
// the stream and that error is returned.
type StreamCompleter interface {
	Completer
	CompleteStream(ctx context.Context, system, prompt string, onDelta func(delta string) error) error
}

// Stream streams a completion from c. Completers without native streaming
// deliver the whole completion as a single delta.
func Stream(ctx context.Context, c Completer, system, prompt string, onDelta func(delta string) error) error {
	if sc, ok := c.(StreamCompleter); ok {
		return sc.CompleteStream(ctx, system, prompt, onDelta)
	}
	full := prompt
	if system != "" {
		full = system + "\n\n" + prompt
	}
	text, err := c.Complete(ctx, full)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	return onDelta(text)
}

// IsRateLimit reports whether err is a provider rate-limit error.
func IsRateLimit(err error) bool {
	return errors.Is(err, ErrRateLimit)
}

// IsTransient reports whether err is worth retrying: rate limits and
// timeouts. Cancellation by the caller is never transient.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout)
}

// EmbedderConfig holds configuration for creating an Embedder.
type EmbedderConfig struct {
	Type   string
	Model  string
	APIKey string
	URL    string
}

// CompleterConfig holds configuration for creating a Completer.
type CompleterConfig struct {
	Type   string
	Model  string
	APIKey string
	URL    string
}
