package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jacklau/repolens/internal/provider"
	"github.com/jacklau/repolens/internal/retry"
	"github.com/jacklau/repolens/internal/vector"
)

// ErrEmbeddingFailed is returned when no vector could be produced.
var ErrEmbeddingFailed = errors.New("embedding failed")

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxChars = 8000
)

// Embedder turns text into fixed-dimension vectors.
type Embedder struct {
	backend   provider.Embedder
	dimension atomic.Int64
	timeout   time.Duration
	maxChars  int
	policy    retry.Policy
	logger    *slog.Logger
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithDimension fixes the expected vector length. Without it the length of
// the first vector produced becomes the expected one.
func WithDimension(n int) Option {
	return func(e *Embedder) { e.dimension.Store(int64(n)) }
}

// WithTimeout bounds each backend attempt.
func WithTimeout(d time.Duration) Option {
	return func(e *Embedder) { e.timeout = d }
}

// WithMaxChars sets the maximum number of bytes of text sent to the backend.
func WithMaxChars(n int) Option {
	return func(e *Embedder) { e.maxChars = n }
}

// WithRetry overrides the retry policy. Its Retryable predicate is always
// provider.IsTransient.
func WithRetry(p retry.Policy) Option {
	return func(e *Embedder) { e.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Embedder) { e.logger = l }
}

// New creates an Embedder backed by backend.
func New(backend provider.Embedder, opts ...Option) *Embedder {
	e := &Embedder{
		backend:  backend,
		timeout:  defaultTimeout,
		maxChars: defaultMaxChars,
		policy:   retry.DefaultPolicy(nil),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.policy.Retryable = provider.IsTransient
	logger := e.logger
	e.policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Debug("retrying embedding", "attempt", attempt, "delay", delay, "error", err)
	}
	return e
}

// Dimension returns the expected vector length, or 0 if not yet known.
func (e *Embedder) Dimension() int {
	return int(e.dimension.Load())
}

// Embed returns the vector for text. A vector of unexpected length is a
// configuration error and wraps vector.ErrDimensionMismatch.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrEmbeddingFailed)
	}
	if e.maxChars > 0 && len(text) > e.maxChars {
		text = strings.ToValidUTF8(text[:e.maxChars], "")
	}

	var vec []float32
	err := e.policy.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		v, err := e.backend.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: %w: empty vector", ErrEmbeddingFailed, provider.ErrInvalidResponse)
	}

	want := e.dimension.Load()
	if want == 0 && e.dimension.CompareAndSwap(0, int64(len(vec))) {
		return vec, nil
	}
	if want = e.dimension.Load(); int64(len(vec)) != want {
		return nil, fmt.Errorf("%w: embedder returned %d values, expected %d", vector.ErrDimensionMismatch, len(vec), want)
	}
	return vec, nil
}
