package github

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// quotaBuffer is the number of remaining requests below which the client
// suspends until the quota resets.
const quotaBuffer = 5

// QuotaState is the single authoritative view of the upstream rate-limit
// quota, shared by every pipeline using the same client. It is updated
// atomically on every response so concurrent pipelines pace against one
// budget.
type QuotaState struct {
	mu        sync.Mutex
	limit     int
	remaining int
	resetAt   time.Time
	retryAt   time.Time
}

// NewQuotaState creates quota state with no upstream signal observed yet
func NewQuotaState() *QuotaState {
	return &QuotaState{remaining: -1}
}

// UpdateFromResponse records the rate-limit headers of a response
func (q *QuotaState) UpdateFromResponse(resp *http.Response) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if limit := resp.Header.Get("X-RateLimit-Limit"); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil {
			q.limit = v
		}
	}
	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		if v, err := strconv.Atoi(remaining); err == nil {
			q.remaining = v
		}
	}
	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if v, err := strconv.ParseInt(reset, 10, 64); err == nil {
			q.resetAt = time.Unix(v, 0)
		}
	}
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if v, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
			q.retryAt = time.Now().Add(time.Duration(v) * time.Second)
		}
	}
}

// SetRetryAt records a secondary-limit resume time
func (q *QuotaState) SetRetryAt(t time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retryAt = t
}

// Remaining returns the last observed remaining quota, -1 if unknown
func (q *QuotaState) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.remaining
}

// ResetAt returns the last observed quota reset time
func (q *QuotaState) ResetAt() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.resetAt
}

// WaitTime returns how long a caller must suspend before its next request:
// until the secondary-limit resume time if one is active, until the quota
// reset if the remaining budget is exhausted, zero otherwise.
func (q *QuotaState) WaitTime(now time.Time) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.retryAt.After(now) {
		return q.retryAt.Sub(now)
	}
	if q.remaining >= 0 && q.remaining <= quotaBuffer && q.resetAt.After(now) {
		return q.resetAt.Sub(now)
	}
	return 0
}
