package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jacklau/repolens/internal/prompt"
	"github.com/jacklau/repolens/internal/provider"
	"github.com/jacklau/repolens/internal/retry"
)

// ErrSummarizationFailed is returned when the backend fails with a
// non-transient error or returns nothing usable.
var ErrSummarizationFailed = errors.New("summarization failed")

// DegradedSummary is returned in place of a summary when the backend stayed
// rate limited through every retry.
const DegradedSummary = "Error generating summary"

// Defaults for Options.
const (
	DefaultMaxInputChars   = 1000
	DefaultMaxSummaryChars = 1500
	DefaultMaxDiffChars    = 10000
	DefaultTimeout         = 30 * time.Second
)

// Options configures a Summarizer. Zero values take the defaults.
type Options struct {
	MaxInputChars   int
	MaxSummaryChars int
	MaxDiffChars    int

	// Timeout bounds each backend attempt.
	Timeout time.Duration

	// Retry overrides the retry policy. Its Retryable predicate is always
	// replaced with provider.IsTransient.
	Retry *retry.Policy

	CustomPrompt string
	Logger       *slog.Logger
}

// Summarizer produces short synopses of files and commit diffs.
type Summarizer struct {
	completer provider.Completer
	opts      Options
	policy    retry.Policy
}

// New creates a Summarizer backed by completer.
func New(completer provider.Completer, opts Options) *Summarizer {
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = DefaultMaxInputChars
	}
	if opts.MaxSummaryChars <= 0 {
		opts.MaxSummaryChars = DefaultMaxSummaryChars
	}
	if opts.MaxDiffChars <= 0 {
		opts.MaxDiffChars = DefaultMaxDiffChars
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	policy := retry.DefaultPolicy(provider.IsTransient)
	if opts.Retry != nil {
		policy = *opts.Retry
		policy.Retryable = provider.IsTransient
	}
	logger := opts.Logger
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Debug("retrying summary", "attempt", attempt, "delay", delay, "error", err)
	}

	return &Summarizer{completer: completer, opts: opts, policy: policy}
}

// IsDegraded reports whether summary is the degraded placeholder.
func IsDegraded(summary string) bool {
	return summary == DegradedSummary
}

// Summarize returns a summary of the file at path. Only the first
// MaxInputChars characters of content are sent.
func (s *Summarizer) Summarize(ctx context.Context, content, path string) (string, error) {
	p, err := prompt.SummaryWithCustom(path, Truncate(content, s.opts.MaxInputChars), s.opts.CustomPrompt)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrSummarizationFailed, path, err)
	}
	return s.complete(ctx, p, s.opts.Logger.With("file", path))
}

// SummarizeDiff returns a summary of a commit diff. Only the first
// MaxDiffChars characters of diff are sent.
func (s *Summarizer) SummarizeDiff(ctx context.Context, diff string) (string, error) {
	p, err := prompt.Diff(Truncate(diff, s.opts.MaxDiffChars))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSummarizationFailed, err)
	}
	return s.complete(ctx, p, s.opts.Logger.With("kind", "diff"))
}

func (s *Summarizer) complete(ctx context.Context, p string, logger *slog.Logger) (string, error) {
	var raw string
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		text, err := s.completer.Complete(ctx, p)
		if err != nil {
			return err
		}
		raw = text
		return nil
	})

	switch {
	case err == nil:
	case retry.IsExhausted(err):
		logger.Warn("summary degraded after retries", "error", err)
		return DegradedSummary, nil
	default:
		return "", fmt.Errorf("%w: %w", ErrSummarizationFailed, err)
	}

	summary := Truncate(clean(raw), s.opts.MaxSummaryChars)
	if summary == "" {
		return "", fmt.Errorf("%w: %w: empty summary", ErrSummarizationFailed, provider.ErrInvalidResponse)
	}
	return summary, nil
}

// codeFenceRe matches a response wrapped entirely in a markdown code fence.
var codeFenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n(.*?)\\s*```$")

func clean(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if matches := codeFenceRe.FindStringSubmatch(cleaned); len(matches) > 1 {
		cleaned = strings.TrimSpace(matches[1])
	}
	return cleaned
}

// Truncate returns the first n characters of s, never splitting a UTF-8
// sequence.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
