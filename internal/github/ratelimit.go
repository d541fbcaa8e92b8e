package github

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// lowQuota is the remaining request count below which calls are paced
// until the window resets.
const lowQuota = 100

// Quota is the primary rate limit state reported on a GitHub response.
type Quota struct {
	Remaining int
	Reset     time.Time
}

// QuotaFromResponse reads the X-RateLimit headers of resp. It returns nil
// when neither header is present.
func QuotaFromResponse(resp *http.Response) *Quota {
	if resp == nil {
		return nil
	}
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	reset := resp.Header.Get("X-RateLimit-Reset")
	if remaining == "" && reset == "" {
		return nil
	}

	q := &Quota{}
	if n, err := strconv.Atoi(remaining); err == nil {
		q.Remaining = n
	}
	if sec, err := strconv.ParseInt(reset, 10, 64); err == nil {
		q.Reset = time.Unix(sec, 0)
	}
	return q
}

// Exhausted reports whether no requests remain before the reset.
func (q *Quota) Exhausted() bool {
	return q != nil && q.Remaining == 0 && !q.Reset.IsZero()
}

// Pace returns the request rate that spreads the remaining quota over the
// time left until now reaches the reset. ok is false while the quota is not
// low or the window has already reset.
func (q *Quota) Pace(now time.Time) (limit rate.Limit, ok bool) {
	if q == nil || q.Remaining >= lowQuota || q.Reset.IsZero() {
		return 0, false
	}
	left := q.Reset.Sub(now)
	if left <= 0 {
		return 0, false
	}
	return rate.Every(left / time.Duration(max(q.Remaining, 1))), true
}

func isServerError(resp *http.Response) bool {
	return resp != nil && resp.StatusCode >= 500 && resp.StatusCode < 600
}
