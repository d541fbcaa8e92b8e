package github

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	gogithub "github.com/google/go-github/v60/github"
)

var (
	// ErrRepositoryNotFound is returned when the address does not resolve to
	// a repository the caller can see.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrAuthRequired is returned when the repository needs a credential, or
	// the supplied credential was rejected.
	ErrAuthRequired = errors.New("github authentication required")

	// ErrFileNotFound is returned when a listed file is gone by the time it
	// is fetched.
	ErrFileNotFound = errors.New("file not found")

	// ErrRateLimited is returned when GitHub throttles the caller. It is
	// retryable.
	ErrRateLimited = errors.New("github rate limit exceeded")
)

// FileError is yielded by Walk when one file could not be fetched. The walk
// goes on after it.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return e.Err.Error() }
func (e *FileError) Unwrap() error { return e.Err }

// listingError adds ErrAuthRequired to a not-found anonymous root listing.
// GitHub answers 404, not 401, for private repositories.
func listingError(err error, dir, credential string) error {
	if dir == "" && credential == "" && errors.Is(err, ErrRepositoryNotFound) {
		return fmt.Errorf("%w (or %w: repository may be private)", err, ErrAuthRequired)
	}
	return err
}

// transientError marks a server or network failure worth retrying.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// classifyError translates a go-github error into one of the package
// sentinels. Context errors pass through unchanged.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rle *gogithub.RateLimitError
	if errors.As(err, &rle) {
		return fmt.Errorf("%s: %w (resets at %s)", op, ErrRateLimited, rle.Rate.Reset.Time.Format("15:04:05"))
	}
	var abuse *gogithub.AbuseRateLimitError
	if errors.As(err, &abuse) {
		return fmt.Errorf("%s: %w (secondary limit)", op, ErrRateLimited)
	}

	var er *gogithub.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		resp := er.Response
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, ErrRepositoryNotFound)
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%s: %w", op, ErrAuthRequired)
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w", op, ErrRateLimited)
		case resp.StatusCode == http.StatusForbidden:
			if QuotaFromResponse(resp).Exhausted() {
				return fmt.Errorf("%s: %w", op, ErrRateLimited)
			}
			return fmt.Errorf("%s: %w", op, ErrAuthRequired)
		case isServerError(resp):
			return &transientError{err: fmt.Errorf("%s: %w", op, err)}
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &transientError{err: fmt.Errorf("%s: %w", op, err)}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryable reports whether err, as returned by this package, is worth
// another attempt.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var te *transientError
	return errors.As(err, &te)
}
