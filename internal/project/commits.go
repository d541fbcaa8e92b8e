package project

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jacklau/repolens/internal/notify"
	"github.com/jacklau/repolens/internal/store"
	"github.com/jacklau/repolens/internal/summarize"
)

// commitWorkers bounds concurrent diff summaries.
const commitWorkers = 4

// RefreshCommits stores AI summaries of the latest commits that are not
// stored yet and returns how many were added. A commit whose diff cannot
// be read or summarized is stored with summarize.DegradedSummary.
func (s *Service) RefreshCommits(ctx context.Context, repositoryID string) (int, error) {
	repo, err := s.active(ctx, repositoryID)
	if err != nil {
		return 0, err
	}
	logger := s.deps.Logger.With("repository", repositoryID)
	start := time.Now()

	latest, err := s.deps.Commits.LatestCommits(ctx, repo.URL, repo.AccessToken, s.deps.CommitLimit)
	if err != nil {
		return 0, fmt.Errorf("listing commits of %s/%s: %w", repo.Owner, repo.Repo, err)
	}
	known, err := s.deps.Store.CommitHashes(ctx, repositoryID)
	if err != nil {
		return 0, err
	}

	var fresh []store.Commit
	for _, c := range latest {
		if known[c.Hash] {
			continue
		}
		fresh = append(fresh, store.Commit{
			RepositoryID: repositoryID,
			Hash:         c.Hash,
			Message:      c.Message,
			AuthorName:   c.AuthorName,
			AuthorAvatar: c.AuthorAvatar,
			Date:         c.Date,
		})
	}
	if len(fresh) == 0 {
		logger.Debug("no new commits")
		return 0, nil
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
		nf int
	)
	g.SetLimit(commitWorkers)
	for i := range fresh {
		g.Go(func() error {
			summary, err := s.summarizeCommit(ctx, repo, fresh[i].Hash)
			if err != nil {
				logger.Warn("commit summary failed", "commit", fresh[i].Hash, "error", err)
				summary = summarize.DegradedSummary
				mu.Lock()
				nf++
				mu.Unlock()
			}
			fresh[i].Summary = summary
			return nil
		})
	}
	_ = g.Wait()

	written, err := s.deps.Store.InsertCommits(ctx, fresh)
	if err != nil {
		return 0, err
	}
	s.deps.Metrics.CommitsSummarized(written)
	logger.Info("commits summarized", "new", written, "failed", nf, "duration", time.Since(start))

	s.notify(context.WithoutCancel(ctx), notify.Notice{
		Kind:       notify.KindCommits,
		Repository: repo.Owner + "/" + repo.Repo,
		URL:        repo.URL,
		Commits:    written,
		Duration:   time.Since(start),
	})
	return written, nil
}

func (s *Service) summarizeCommit(ctx context.Context, repo *store.Repository, sha string) (string, error) {
	diff, err := s.deps.Commits.CommitDiff(ctx, repo.URL, repo.AccessToken, sha)
	if err != nil {
		return "", err
	}
	return s.deps.DiffSummarizer.SummarizeDiff(ctx, diff)
}

// Commits returns the stored commit log of a repository, newest first.
func (s *Service) Commits(ctx context.Context, repositoryID string) ([]store.Commit, error) {
	return s.deps.Store.ListCommits(ctx, repositoryID)
}

// WatchCommits refreshes the commit log of every active repository of the
// user each interval until ctx is cancelled. Per-repository failures are
// logged and do not stop the loop.
func (s *Service) WatchCommits(ctx context.Context, userID string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.refreshAll(ctx, userID)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) refreshAll(ctx context.Context, userID string) {
	for repo, err := range s.All(ctx, userID) {
		if err != nil {
			s.deps.Logger.Error("listing repositories", "error", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if _, err := s.RefreshCommits(ctx, repo.ID); err != nil {
			s.deps.Logger.Error("refreshing commits", "repository", repo.ID, "error", err)
		}
	}
}
