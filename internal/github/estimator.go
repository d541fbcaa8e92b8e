package github

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Estimator counts eligible files from directory listings alone, without
// downloading content.
type Estimator struct {
	r *requester
}

// NewEstimator creates an Estimator. It must share Options with the Walker
// whose ingestion it quotes.
func NewEstimator(clients *Clients, opts Options) *Estimator {
	return &Estimator{r: newRequester(clients, opts)}
}

// CountFiles returns the number of files Walk would yield for the same
// repository. Directories are listed level by level; the directories of one
// level are listed concurrently, bounded by Options.Concurrency.
func (e *Estimator) CountFiles(ctx context.Context, repoURL, credential string) (int, error) {
	ref, err := ParseRepoURL(repoURL)
	if err != nil {
		return 0, err
	}
	client := e.r.clients.For(credential)

	total := 0
	level := []string{""}
	for depth := 0; len(level) > 0; depth++ {
		var (
			mu   sync.Mutex
			next []string
		)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.r.opts.Concurrency)
		for _, dir := range level {
			g.Go(func() error {
				entries, err := e.r.listDir(gctx, client, ref, dir)
				if err != nil {
					return listingError(err, dir, credential)
				}
				files, dirs := e.r.partition(entries, depth)

				mu.Lock()
				total += len(files)
				next = append(next, dirs...)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return 0, err
		}
		level = next
	}

	e.r.opts.Logger.Debug("counted repository files", "repo", ref.String(), "files", total)
	return total, nil
}
