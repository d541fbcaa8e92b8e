package project

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/jacklau/repolens/internal/github"
	"github.com/jacklau/repolens/internal/ingest"
	"github.com/jacklau/repolens/internal/metrics"
	"github.com/jacklau/repolens/internal/notify"
	"github.com/jacklau/repolens/internal/qa"
	"github.com/jacklau/repolens/internal/store"
	"github.com/jacklau/repolens/internal/vector"
)

// Sentinel errors returned by the Service.
var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrArchived            = errors.New("repository is archived")
	ErrInvalidRequest      = errors.New("invalid request")
)

// notifyTimeout bounds the delivery of a completion notice.
const notifyTimeout = 30 * time.Second

// Estimator quotes the number of files an ingestion will process.
type Estimator interface {
	CountFiles(ctx context.Context, repoURL, credential string) (int, error)
}

// Ingester runs an ingestion of a repository.
type Ingester interface {
	Run(ctx context.Context, repositoryID, repoURL, credential string, observer ingest.Observer) (*ingest.Report, error)
}

// CommitSource reads the commit history of a repository.
type CommitSource interface {
	LatestCommits(ctx context.Context, repoURL, credential string, limit int) ([]github.CommitInfo, error)
	CommitDiff(ctx context.Context, repoURL, credential, sha string) (string, error)
}

// DiffSummarizer summarizes a commit diff.
type DiffSummarizer interface {
	SummarizeDiff(ctx context.Context, diff string) (string, error)
}

// Answerer answers questions about an indexed repository.
type Answerer interface {
	Answer(ctx context.Context, question, repositoryID string) (*qa.Answer, error)
}

// Deps holds the dependencies of the Service. Notifier and Metrics are
// optional.
type Deps struct {
	Store          store.Store
	Index          vector.Index
	Estimator      Estimator
	Ingester       Ingester
	Commits        CommitSource
	DiffSummarizer DiffSummarizer
	Answerer       Answerer
	Notifier       notify.Notifier
	Metrics        *metrics.Metrics
	Logger         *slog.Logger

	// CommitLimit is how many of the latest commits are considered per
	// refresh.
	CommitLimit int
}

// Service manages the lifecycle of linked repositories: registration with
// a credit check, ingestion, the commit log, questions and deletion.
type Service struct {
	deps  Deps
	locks *repoLocks
}

// New creates a Service.
func New(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.CommitLimit <= 0 {
		deps.CommitLimit = github.DefaultCommitLimit
	}
	return &Service{deps: deps, locks: newRepoLocks()}
}

// Quote is the cost of ingesting a repository against the user's balance.
type Quote struct {
	Files   int `json:"files"`
	Balance int `json:"balance"`
}

// Sufficient reports whether the balance covers the quote.
func (q Quote) Sufficient() bool {
	return q.Files <= q.Balance
}

// Quote counts the eligible files of repoURL without reading their content
// and reads the user's balance.
func (s *Service) Quote(ctx context.Context, userID, repoURL, credential string) (*Quote, error) {
	if _, err := github.ParseRepoURL(repoURL); err != nil {
		return nil, err
	}
	files, err := s.deps.Estimator.CountFiles(ctx, repoURL, credential)
	if err != nil {
		return nil, fmt.Errorf("estimating %s: %w", repoURL, err)
	}
	balance, err := s.deps.Store.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Quote{Files: files, Balance: balance}, nil
}

// CreateRequest describes a repository to link.
type CreateRequest struct {
	UserID string
	Name   string
	URL    string
	Token  string
}

// Create links a repository after checking that the user's credits cover
// the quote, and charges the quote. It does not ingest; call Index with the
// returned quote.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*store.Repository, *Quote, error) {
	if req.UserID == "" {
		return nil, nil, fmt.Errorf("%w: user is required", ErrInvalidRequest)
	}
	ref, err := github.ParseRepoURL(req.URL)
	if err != nil {
		return nil, nil, err
	}

	quote, err := s.Quote(ctx, req.UserID, req.URL, req.Token)
	if err != nil {
		return nil, nil, err
	}
	if !quote.Sufficient() {
		return nil, quote, fmt.Errorf("%w: %d files quoted, %d credits available", ErrInsufficientCredits, quote.Files, quote.Balance)
	}

	name := req.Name
	if name == "" {
		name = ref.Name
	}
	repo, err := s.deps.Store.CreateRepository(ctx, &store.Repository{
		UserID:      req.UserID,
		Name:        name,
		Owner:       ref.Owner,
		Repo:        ref.Name,
		URL:         req.URL,
		AccessToken: req.Token,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := s.charge(ctx, req.UserID, quote.Files); err != nil {
		if delErr := s.deps.Store.DeleteRepository(ctx, repo.ID); delErr != nil {
			s.deps.Logger.Error("removing unpaid repository", "repository", repo.ID, "error", delErr)
		}
		return nil, quote, err
	}
	quote.Balance -= quote.Files

	s.deps.Logger.Info("repository linked", "repository", repo.ID, "repo", ref.String(), "quote", quote.Files)
	return repo, quote, nil
}

// charge decrements n credits. Credits are charged for the attempt, not
// for the rows that end up written.
func (s *Service) charge(ctx context.Context, userID string, n int) error {
	err := s.deps.Store.Decrement(ctx, userID, n)
	if errors.Is(err, store.ErrInsufficientBalance) {
		return fmt.Errorf("%w: %d files quoted", ErrInsufficientCredits, n)
	}
	if err != nil {
		return err
	}
	s.deps.Metrics.CreditsCharged(n)
	return nil
}

// Index ingests a linked repository. quote is recorded with the run. Only
// one ingestion per repository runs at a time; a second caller waits.
func (s *Service) Index(ctx context.Context, repositoryID string, quote int, observer ingest.Observer) (*ingest.Report, error) {
	repo, err := s.active(ctx, repositoryID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.lock(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	runID, err := s.deps.Store.StartRun(ctx, repositoryID, quote)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	report, runErr := s.deps.Ingester.Run(ctx, repositoryID, repo.URL, repo.AccessToken, observer)

	var indexed, degraded, failed int
	if report != nil {
		indexed, degraded, failed = report.Indexed, report.Degraded, report.Failed()
	}
	finishCtx := context.WithoutCancel(ctx)
	if err := s.deps.Store.FinishRun(finishCtx, runID, indexed, degraded, failed, runErr); err != nil {
		s.deps.Logger.Error("recording ingest run", "repository", repositoryID, "error", err)
	}

	notice := notify.Notice{
		Kind:       notify.KindIngestion,
		Repository: repo.Owner + "/" + repo.Repo,
		URL:        repo.URL,
		Quote:      quote,
		Indexed:    indexed,
		Degraded:   degraded,
		Failed:     failed,
		Duration:   time.Since(start),
	}
	if runErr != nil {
		notice.Error = runErr.Error()
	}
	s.notify(finishCtx, notice)

	return report, runErr
}

// ChargeReindex quotes a linked repository again and charges the quote.
// It returns the quote to pass to Index.
func (s *Service) ChargeReindex(ctx context.Context, repositoryID string) (int, error) {
	repo, err := s.active(ctx, repositoryID)
	if err != nil {
		return 0, err
	}
	quote, err := s.Quote(ctx, repo.UserID, repo.URL, repo.AccessToken)
	if err != nil {
		return 0, err
	}
	if !quote.Sufficient() {
		return 0, fmt.Errorf("%w: %d files quoted, %d credits available", ErrInsufficientCredits, quote.Files, quote.Balance)
	}
	if err := s.charge(ctx, repo.UserID, quote.Files); err != nil {
		return 0, err
	}
	return quote.Files, nil
}

// Reindex charges a linked repository again and ingests it. Rows of files
// that still exist are replaced.
func (s *Service) Reindex(ctx context.Context, repositoryID string, observer ingest.Observer) (*ingest.Report, error) {
	quote, err := s.ChargeReindex(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	return s.Index(ctx, repositoryID, quote, observer)
}

// Ask answers a question from the files of an active repository.
func (s *Service) Ask(ctx context.Context, repositoryID, question string) (*qa.Answer, error) {
	if _, err := s.active(ctx, repositoryID); err != nil {
		return nil, err
	}
	return s.deps.Answerer.Answer(ctx, question, repositoryID)
}

// Get returns a repository.
func (s *Service) Get(ctx context.Context, repositoryID string) (*store.Repository, error) {
	return s.deps.Store.GetRepository(ctx, repositoryID)
}

// List returns the user's repositories, either active or archived.
func (s *Service) List(ctx context.Context, userID string, archived bool) ([]store.Repository, error) {
	return s.deps.Store.ListRepositories(ctx, userID, archived)
}

// All iterates over the active repositories of the user.
func (s *Service) All(ctx context.Context, userID string) iter.Seq2[store.Repository, error] {
	return func(yield func(store.Repository, error) bool) {
		repos, err := s.List(ctx, userID, false)
		if err != nil {
			yield(store.Repository{}, err)
			return
		}
		for _, r := range repos {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Archive hides a repository from listings and questions.
func (s *Service) Archive(ctx context.Context, repositoryID string) error {
	return s.deps.Store.ArchiveRepository(ctx, repositoryID)
}

// Unarchive restores an archived repository.
func (s *Service) Unarchive(ctx context.Context, repositoryID string) error {
	return s.deps.Store.UnarchiveRepository(ctx, repositoryID)
}

// Delete removes a repository with its embeddings, commits and questions.
// It waits for a running ingestion of the repository to finish.
func (s *Service) Delete(ctx context.Context, repositoryID string) error {
	if _, err := s.deps.Store.GetRepository(ctx, repositoryID); err != nil {
		return err
	}

	unlock, err := s.locks.lock(ctx, repositoryID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.deps.Index.DeleteRepository(ctx, repositoryID); err != nil {
		return fmt.Errorf("deleting embeddings of %s: %w", repositoryID, err)
	}
	if err := s.deps.Store.DeleteRepository(ctx, repositoryID); err != nil {
		return err
	}
	s.deps.Logger.Info("repository deleted", "repository", repositoryID)
	return nil
}

// Stats returns aggregate counts for a repository. File counts come from
// the configured index.
func (s *Service) Stats(ctx context.Context, repositoryID string) (*store.RepositoryStats, error) {
	stats, err := s.deps.Store.GetRepositoryStats(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	stats.Files, stats.Degraded, err = s.deps.Index.Count(ctx, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("counting files of %s: %w", repositoryID, err)
	}
	return stats, nil
}

// AllStats returns Stats for every active repository of the user.
func (s *Service) AllStats(ctx context.Context, userID string) ([]store.RepositoryStats, error) {
	var all []store.RepositoryStats
	for repo, err := range s.All(ctx, userID) {
		if err != nil {
			return nil, err
		}
		stats, err := s.Stats(ctx, repo.ID)
		if err != nil {
			return nil, err
		}
		all = append(all, *stats)
	}
	return all, nil
}

// Credits returns the user's credit balance.
func (s *Service) Credits(ctx context.Context, userID string) (int, error) {
	return s.deps.Store.Balance(ctx, userID)
}

// active returns the repository if it exists and is not archived.
func (s *Service) active(ctx context.Context, repositoryID string) (*store.Repository, error) {
	repo, err := s.deps.Store.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	if repo.Archived() {
		return nil, fmt.Errorf("%s: %w", repositoryID, ErrArchived)
	}
	return repo, nil
}

func (s *Service) notify(ctx context.Context, n notify.Notice) {
	if s.deps.Notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := s.deps.Notifier.Notify(ctx, n); err != nil {
		s.deps.Logger.Warn("sending notification", "repository", n.Repository, "error", err)
	}
}

// repoLocks serializes work per repository. Waiting honours ctx.
type repoLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newRepoLocks() *repoLocks {
	return &repoLocks{slots: make(map[string]chan struct{})}
}

func (l *repoLocks) lock(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[id]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[id] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
