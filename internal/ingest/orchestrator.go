package ingest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jacklau/repolens/internal/github"
	"github.com/jacklau/repolens/internal/metrics"
	"github.com/jacklau/repolens/internal/pubsub"
	"github.com/jacklau/repolens/internal/summarize"
	"github.com/jacklau/repolens/internal/vector"
)

// Defaults for Deps.
const (
	DefaultWorkers     = 5
	DefaultFileTimeout = 5 * time.Minute
)

// Walker yields the files of a repository.
type Walker interface {
	Walk(ctx context.Context, repoURL, credential string) iter.Seq2[github.FileRecord, error]
}

// Summarizer summarizes one file. It returns summarize.DegradedSummary with
// a nil error when the backend stayed unavailable.
type Summarizer interface {
	Summarize(ctx context.Context, content, path string) (string, error)
}

// Embedder turns a summary into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Progress describes the state of an ingestion run after one event.
type Progress struct {
	RepositoryID string `json:"repositoryId"`
	File         string `json:"file,omitempty"`
	Error        string `json:"error,omitempty"`
	Indexed      int    `json:"indexed"`
	Degraded     int    `json:"degraded"`
	Failed       int    `json:"failed"`
}

// Done returns the number of files settled so far.
func (p Progress) Done() int {
	return p.Indexed + p.Degraded + p.Failed
}

// Deps holds the dependencies of the Orchestrator.
type Deps struct {
	Walker     Walker
	Summarizer Summarizer
	Embedder   Embedder
	Index      vector.Index
	Broker     *pubsub.Broker[Progress]
	Metrics    *metrics.Metrics
	Logger     *slog.Logger

	// Workers bounds how many files are processed at once.
	Workers int

	// FileTimeout bounds the work on one file. In-flight files keep running
	// after the caller cancels, up to this limit.
	FileTimeout time.Duration
}

// FileFailure records a file that produced no row.
type FileFailure struct {
	Path string
	Err  error
}

// Report is the result of an ingestion run.
type Report struct {
	RepositoryID string
	Indexed      int
	Degraded     int
	Failures     []FileFailure
	Duration     time.Duration
}

// Written returns the number of rows written.
func (r *Report) Written() int {
	return r.Indexed + r.Degraded
}

// Failed returns the number of files that produced no row.
func (r *Report) Failed() int {
	return len(r.Failures)
}

// Observer receives every ingestion event synchronously, in addition to the
// broker.
type Observer func(pubsub.EventType, Progress)

// Orchestrator runs the walk, summarize, embed and store pipeline for a
// repository.
type Orchestrator struct {
	deps Deps
}

// New creates an Orchestrator with the given dependencies.
func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Workers <= 0 {
		deps.Workers = DefaultWorkers
	}
	if deps.FileTimeout <= 0 {
		deps.FileTimeout = DefaultFileTimeout
	}
	return &Orchestrator{deps: deps}
}

type outcome int

const (
	outcomeIndexed outcome = iota
	outcomeDegraded
	outcomeFailed
)

// Ingest runs Run without an observer.
func (o *Orchestrator) Ingest(ctx context.Context, repositoryID, repoURL, credential string) (*Report, error) {
	return o.Run(ctx, repositoryID, repoURL, credential, nil)
}

// Run processes every file the Walker yields for repoURL and stores one
// row per file under repositoryID, replacing rows from earlier runs.
//
// Per-file failures, including files the Walker could not fetch, are
// collected in the report and never abort the run.
// A dimension mismatch stops scheduling and is returned with the partial
// report. A traversal error before the first file is returned with a nil
// report; a later one stops scheduling and is returned with the partial
// report once in-flight files settle. Cancelling ctx stops scheduling;
// in-flight files run to completion.
func (o *Orchestrator) Run(ctx context.Context, repositoryID, repoURL, credential string, observer Observer) (*Report, error) {
	start := time.Now()
	logger := o.deps.Logger.With("repository", repositoryID)
	logger.Info("ingestion started", "url", repoURL, "workers", o.deps.Workers)

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		report   = &Report{RepositoryID: repositoryID}
		progress = Progress{RepositoryID: repositoryID}
		fatal    error
	)
	o.emit(observer, pubsub.Started, progress)

	stopped := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fatal != nil
	}

	sem := make(chan struct{}, o.deps.Workers)
	taskCtx := context.WithoutCancel(ctx)
	scheduled := 0
	var walkErr error

walk:
	for rec, err := range o.deps.Walker.Walk(ctx, repoURL, credential) {
		if err != nil {
			var fe *github.FileError
			if !errors.As(err, &fe) {
				walkErr = err
				break
			}
			scheduled++
			mu.Lock()
			report.Failures = append(report.Failures, FileFailure{Path: fe.Path, Err: fe.Err})
			progress.Failed++
			snapshot := progress
			snapshot.File, snapshot.Error = fe.Path, fe.Err.Error()
			mu.Unlock()

			logger.Error("file failed", "file", fe.Path, "error", fe.Err)
			o.deps.Metrics.FileProcessed(metrics.OutcomeFailed, 0)
			o.emit(observer, pubsub.FileFailed, snapshot)
			continue
		}
		if stopped() {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			walkErr = ctx.Err()
			break walk
		}
		if err := ctx.Err(); err != nil {
			<-sem
			walkErr = err
			break
		}

		scheduled++
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			fileStart := time.Now()
			fctx, cancel := context.WithTimeout(taskCtx, o.deps.FileTimeout)
			res, err := o.processFile(fctx, repositoryID, rec)
			cancel()

			mu.Lock()
			evt := pubsub.FileIndexed
			label := metrics.OutcomeIndexed
			switch res {
			case outcomeIndexed:
				report.Indexed++
				progress.Indexed++
			case outcomeDegraded:
				report.Degraded++
				progress.Degraded++
				evt, label = pubsub.FileDegraded, metrics.OutcomeDegraded
			case outcomeFailed:
				report.Failures = append(report.Failures, FileFailure{Path: rec.Path, Err: err})
				progress.Failed++
				evt, label = pubsub.FileFailed, metrics.OutcomeFailed
				if errors.Is(err, vector.ErrDimensionMismatch) && fatal == nil {
					fatal = err
				}
			}
			snapshot := progress
			snapshot.File = rec.Path
			if err != nil {
				snapshot.Error = err.Error()
			}
			mu.Unlock()

			switch res {
			case outcomeDegraded:
				logger.Warn("file degraded", "file", rec.Path)
			case outcomeFailed:
				logger.Error("file failed", "file", rec.Path, "error", err)
			default:
				logger.Debug("file indexed", "file", rec.Path, "duration", time.Since(fileStart))
			}
			o.deps.Metrics.FileProcessed(label, time.Since(fileStart))
			o.emit(observer, evt, snapshot)
		}()
	}

	wg.Wait()
	report.Duration = time.Since(start)

	var runErr error
	switch {
	case fatal != nil:
		runErr = fmt.Errorf("ingesting %s: %w", repositoryID, fatal)
	case walkErr != nil && scheduled == 0:
		o.finish(observer, logger, progress, walkErr, report.Duration)
		return nil, walkErr
	case walkErr != nil:
		runErr = fmt.Errorf("ingesting %s: traversal stopped after %d files: %w", repositoryID, scheduled, walkErr)
	}

	o.finish(observer, logger, progress, runErr, report.Duration)
	return report, runErr
}

func (o *Orchestrator) finish(observer Observer, logger *slog.Logger, progress Progress, err error, d time.Duration) {
	if err != nil {
		progress.Error = err.Error()
		logger.Error("ingestion stopped", "error", err, "indexed", progress.Indexed,
			"degraded", progress.Degraded, "failed", progress.Failed, "duration", d)
	} else {
		logger.Info("ingestion finished", "indexed", progress.Indexed,
			"degraded", progress.Degraded, "failed", progress.Failed, "duration", d)
	}
	o.deps.Metrics.RunFinished(err, d)
	o.emit(observer, pubsub.Finished, progress)
}

func (o *Orchestrator) emit(observer Observer, evt pubsub.EventType, p Progress) {
	if observer != nil {
		observer(evt, p)
	}
	if o.deps.Broker != nil {
		o.deps.Broker.Publish(evt, p)
	}
}

// processFile summarizes, embeds and stores one file.
func (o *Orchestrator) processFile(ctx context.Context, repositoryID string, rec github.FileRecord) (outcome, error) {
	content := sanitize(rec.Content)

	summary, err := o.deps.Summarizer.Summarize(ctx, content, rec.Path)
	if err != nil {
		return outcomeFailed, err
	}

	row := vector.CodeEmbedding{
		RepositoryID: repositoryID,
		FileName:     rec.Path,
		SourceCode:   vector.BoundSource(content),
		Summary:      summary,
	}

	res := outcomeIndexed
	if summarize.IsDegraded(summary) {
		row.Degraded = true
		res = outcomeDegraded
	} else {
		row.Vector, err = o.deps.Embedder.Embed(ctx, summary)
		if err != nil {
			return outcomeFailed, err
		}
	}

	if err := o.deps.Index.Upsert(ctx, row); err != nil {
		return outcomeFailed, fmt.Errorf("storing %s: %w", rec.Path, err)
	}
	return res, nil
}

// sanitize makes repository content safe to store as text.
func sanitize(s string) string {
	s = strings.ToValidUTF8(s, "�")
	return strings.ReplaceAll(s, "\x00", "")
}
