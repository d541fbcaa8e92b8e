package qa

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/jacklau/repolens/internal/metrics"
	"github.com/jacklau/repolens/internal/prompt"
	"github.com/jacklau/repolens/internal/provider"
	"github.com/jacklau/repolens/internal/vector"
)

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

// Defaults for Options.
const (
	DefaultMaxContextChars = 40000
	DefaultTimeout         = 2 * time.Minute
)

// Embedder turns the question into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher finds the stored files closest to a vector.
type Searcher interface {
	Search(ctx context.Context, q vector.Query) ([]vector.Match, error)
}

// Options configures an Assembler. Zero values take the defaults.
type Options struct {
	// Floor is passed to vector.Query; nil means vector.DefaultFloor.
	Floor           *float64
	Limit           int
	MaxContextChars int

	// Timeout bounds one streamed answer.
	Timeout time.Duration

	CustomPrompt string
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Answer holds the files used as context and the answer text stream.
// Ranging over Stream calls the backend; it yields text fragments in order
// and stops at the first error.
type Answer struct {
	Files  []vector.Match
	Stream iter.Seq2[string, error]
}

// Assembler answers questions about a repository from its most similar
// files.
type Assembler struct {
	embedder  Embedder
	searcher  Searcher
	completer provider.Completer
	opts      Options
}

// New creates an Assembler.
func New(embedder Embedder, searcher Searcher, completer provider.Completer, opts Options) *Assembler {
	if opts.Floor == nil {
		opts.Floor = vector.Floor(vector.DefaultFloor)
	}
	if opts.Limit <= 0 {
		opts.Limit = vector.DefaultLimit
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = DefaultMaxContextChars
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Assembler{embedder: embedder, searcher: searcher, completer: completer, opts: opts}
}

// Answer retrieves context for question from the repository and returns
// the files used plus a stream of the answer. When no file clears the
// similarity floor the stream yields exactly prompt.UnknownAnswer and Files
// is empty.
func (a *Assembler) Answer(ctx context.Context, question, repositoryID string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	logger := a.opts.Logger.With("repository", repositoryID)

	vec, err := a.embedder.Embed(ctx, question)
	if err != nil {
		a.opts.Metrics.QuestionAnswered(metrics.OutcomeError, 0)
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	matches, err := a.searcher.Search(ctx, vector.Query{
		RepositoryID: repositoryID,
		Vector:       vec,
		Floor:        a.opts.Floor,
		Limit:        a.opts.Limit,
	})
	if err != nil {
		a.opts.Metrics.QuestionAnswered(metrics.OutcomeError, 0)
		return nil, fmt.Errorf("searching repository %s: %w", repositoryID, err)
	}

	if len(matches) == 0 {
		logger.Info("no relevant files for question")
		a.opts.Metrics.QuestionAnswered(metrics.OutcomeUnknown, 0)
		return &Answer{Files: []vector.Match{}, Stream: unknown}, nil
	}

	block, used := BuildContext(matches, a.opts.MaxContextChars)
	files := matches[:used]

	p, err := prompt.Answer(question, block, a.opts.CustomPrompt)
	if err != nil {
		return nil, fmt.Errorf("building answer prompt: %w", err)
	}

	logger.Info("answering question", "files", len(files))
	return &Answer{Files: files, Stream: a.stream(ctx, p, len(files), logger)}, nil
}

// errStopped ends a backend stream when the consumer stops ranging.
var errStopped = errors.New("stream consumer stopped")

func (a *Assembler) stream(ctx context.Context, p string, files int, logger *slog.Logger) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()

		// Leading whitespace is held back so that a blank completion can
		// be replaced with the unknown answer.
		var pending strings.Builder
		started := false
		err := provider.Stream(ctx, a.completer, prompt.AnswerSystem, p, func(delta string) error {
			if !started {
				pending.WriteString(delta)
				if strings.TrimSpace(pending.String()) == "" {
					return nil
				}
				started = true
				delta = strings.TrimLeft(pending.String(), " \t\r\n")
			}
			if !yield(delta, nil) {
				return errStopped
			}
			return nil
		})

		switch {
		case errors.Is(err, errStopped):
			a.opts.Metrics.QuestionAnswered(metrics.OutcomeAnswered, files)
		case err != nil:
			logger.Error("answer stream failed", "error", err)
			a.opts.Metrics.QuestionAnswered(metrics.OutcomeError, files)
			yield("", fmt.Errorf("generating answer: %w", err))
		case !started:
			logger.Warn("empty completion, answering unknown")
			a.opts.Metrics.QuestionAnswered(metrics.OutcomeUnknown, files)
			yield(prompt.UnknownAnswer, nil)
		default:
			a.opts.Metrics.QuestionAnswered(metrics.OutcomeAnswered, files)
		}
	}
}

func unknown(yield func(string, error) bool) {
	yield(prompt.UnknownAnswer, nil)
}

// BuildContext renders matches as a context block of at most maxChars
// bytes and returns it with the number of matches it includes. A match
// that does not fit is dropped along with every later one, except the
// first match which is cut to fit.
func BuildContext(matches []vector.Match, maxChars int) (string, int) {
	var b strings.Builder
	used := 0
	for i, m := range matches {
		entry := fmt.Sprintf("source: %s\ncode content: %s\nsummary of file: %s\n\n", m.FileName, m.SourceCode, m.Summary)
		if b.Len()+len(entry) > maxChars {
			if i == 0 {
				b.WriteString(strings.ToValidUTF8(entry[:maxChars], ""))
				used = 1
			}
			break
		}
		b.WriteString(entry)
		used++
	}
	return b.String(), used
}

// Collect joins a stream into a single string.
func Collect(stream iter.Seq2[string, error]) (string, error) {
	var b strings.Builder
	for delta, err := range stream {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(delta)
	}
	return b.String(), nil
}
