package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	gogithub "github.com/google/go-github/v60/github"
	"golang.org/x/time/rate"

	"github.com/jacklau/repolens/internal/retry"
)

const (
	// DefaultMaxDepth bounds how deep traversal descends below the root.
	DefaultMaxDepth = 64

	// DefaultConcurrency is the number of directory listings the Estimator
	// runs at once.
	DefaultConcurrency = 5

	defaultRequestsPerSecond = 10
	defaultBurst             = 5
)

// Options configures repository traversal. The Walker and the Estimator
// must be built from the same Options for quotes to match ingestion.
type Options struct {
	MaxDepth          int
	Concurrency       int
	RequestsPerSecond float64
	Burst             int
	Excluder          *Excluder

	// Retry overrides the policy for listing and fetch calls. Its Retryable
	// predicate is always replaced with IsRetryable.
	Retry *retry.Policy

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = defaultRequestsPerSecond
	}
	if o.Burst <= 0 {
		o.Burst = defaultBurst
	}
	if o.Excluder == nil {
		o.Excluder = NewExcluder()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// requester issues paced, retried GitHub API calls.
type requester struct {
	clients *Clients
	opts    Options
	policy  retry.Policy
	limiter *rate.Limiter

	mu        sync.Mutex
	throttled bool
}

func newRequester(clients *Clients, opts Options) *requester {
	if clients == nil {
		clients = NewClients(nil)
	}
	opts = opts.withDefaults()

	policy := retry.DefaultPolicy(IsRetryable)
	if opts.Retry != nil {
		policy = *opts.Retry
		policy.Retryable = IsRetryable
	}
	logger := opts.Logger
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn("retrying github request", "attempt", attempt, "delay", delay, "error", err)
	}

	return &requester{
		clients: clients,
		opts:    opts,
		policy:  policy,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
	}
}

// call runs fn under the rate limiter and the retry policy, translating
// errors into package sentinels.
func (r *requester) call(ctx context.Context, op string, fn func(ctx context.Context) (*gogithub.Response, error)) error {
	return r.policy.Do(ctx, func(ctx context.Context) error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := fn(ctx)
		if resp != nil {
			r.observe(resp.Response)
		}
		return classifyError(op, err)
	})
}

// observe slows the limiter when the remaining quota runs low, spreading
// what is left over the time until the window resets.
func (r *requester) observe(resp *http.Response) {
	q := QuotaFromResponse(resp)
	limit, ok := q.Pace(time.Now())
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if limit < r.limiter.Limit() {
		r.limiter.SetLimit(limit)
		if !r.throttled {
			r.throttled = true
			r.opts.Logger.Warn("github rate limit low, pacing requests",
				"remaining", q.Remaining, "reset_in", time.Until(q.Reset).Round(time.Second))
		}
	}
}

// partition applies the exclusion and depth rules to the listing of a
// directory at depth. It returns the eligible files and the subdirectories
// to visit next. Symlinks and submodules are ignored.
func (r *requester) partition(entries []*gogithub.RepositoryContent, depth int) (files []*gogithub.RepositoryContent, dirs []string) {
	for _, e := range entries {
		p := e.GetPath()
		if r.opts.Excluder.Excluded(p) {
			continue
		}
		switch e.GetType() {
		case "file":
			files = append(files, e)
		case "dir":
			if depth+1 <= r.opts.MaxDepth {
				dirs = append(dirs, p)
			} else {
				r.opts.Logger.Warn("skipping directory beyond max depth", "path", p, "max_depth", r.opts.MaxDepth)
			}
		}
	}
	return files, dirs
}

// listDir returns the entries of dir. The empty path is the repository root.
func (r *requester) listDir(ctx context.Context, client *gogithub.Client, ref RepoRef, dir string) ([]*gogithub.RepositoryContent, error) {
	var entries []*gogithub.RepositoryContent
	err := r.call(ctx, "listing "+ref.String()+"/"+dir, func(ctx context.Context) (*gogithub.Response, error) {
		file, list, resp, err := client.Repositories.GetContents(ctx, ref.Owner, ref.Name, dir, nil)
		if err != nil {
			return resp, err
		}
		if file != nil {
			list = []*gogithub.RepositoryContent{file}
		}
		entries = list
		return resp, nil
	})
	return entries, err
}

// fetchFile returns the decoded content of the file at p. Files too large
// for the contents API come back without inline content and are read
// through the download endpoint instead.
func (r *requester) fetchFile(ctx context.Context, client *gogithub.Client, ref RepoRef, p string) (string, error) {
	var content string
	op := "fetching " + ref.String() + "/" + p
	err := r.call(ctx, op, func(ctx context.Context) (*gogithub.Response, error) {
		file, _, resp, err := client.Repositories.GetContents(ctx, ref.Owner, ref.Name, p, nil)
		if err != nil {
			return resp, err
		}
		if file == nil {
			return resp, fmt.Errorf("%s is not a file", p)
		}

		switch {
		case file.GetEncoding() == "none" || (file.Content == nil && file.GetSize() > 0):
		case file.Content == nil:
			content = ""
			return resp, nil
		default:
			content, err = file.GetContent()
			if err != nil {
				return resp, fmt.Errorf("decoding %s: %w", p, err)
			}
			return resp, nil
		}

		rc, resp, err := client.Repositories.DownloadContents(ctx, ref.Owner, ref.Name, p, nil)
		if err != nil {
			return resp, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return resp, fmt.Errorf("reading %s: %w", p, err)
		}
		content = string(data)
		return resp, nil
	})
	if errors.Is(err, ErrRepositoryNotFound) {
		err = fmt.Errorf("%s: %w", op, ErrFileNotFound)
	}
	return content, err
}
