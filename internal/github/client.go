package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	apperrors "github.com/LukasIV/github-commit-collector/internal/errors"
)

const defaultBaseURL = "https://api.github.com"

// Client is a rate-limited GitHub API client. It owns request pacing,
// retry/backoff and rate-limit header bookkeeping; callers receive errors
// already classified as transient, rate-limited or fatal.
type Client struct {
	client  *http.Client
	baseURL string
	logger  *logrus.Logger
	quota   *QuotaState
	pacer   *rate.Limiter

	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	waitCeiling    time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// ClientOption allows configuring the client
type ClientOption func(*Client)

// WithRetryConfig configures retry behavior
func WithRetryConfig(maxRetries int, initialBackoff, maxBackoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialBackoff = initialBackoff
		c.maxBackoff = maxBackoff
	}
}

// WithBaseURL points the client at a different API host (used by tests)
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithQuotaState injects shared quota state so several clients, or tests,
// observe one authoritative view of the remaining budget
func WithQuotaState(q *QuotaState) ClientOption {
	return func(c *Client) {
		c.quota = q
	}
}

// WithWaitCeiling caps how long a single call suspends on a rate-limit wait
func WithWaitCeiling(d time.Duration) ClientOption {
	return func(c *Client) {
		c.waitCeiling = d
	}
}

// WithClock substitutes the time source and sleeper, making rate-limit
// behavior deterministic in tests
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) {
		c.now = now
		c.sleep = sleep
	}
}

// WithPacer overrides the request pacing token bucket
func WithPacer(p *rate.Limiter) ClientOption {
	return func(c *Client) {
		c.pacer = p
	}
}

// NewClient creates a rate-limited GitHub client with the given token
func NewClient(token string, logger *logrus.Logger, opts ...ClientOption) *Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = 120 * time.Second

	client := &Client{
		client:         httpClient,
		baseURL:        defaultBaseURL,
		logger:         logger,
		quota:          NewQuotaState(),
		pacer:          rate.NewLimiter(rate.Limit(8), 10),
		maxRetries:     3,
		initialBackoff: time.Second,
		maxBackoff:     time.Minute,
		waitCeiling:    15 * time.Minute,
		now:            time.Now,
		sleep:          sleepCtx,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Quota exposes the shared quota state
func (c *Client) Quota() *QuotaState {
	return c.quota
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// waitForQuota suspends until the shared quota allows another request,
// bounded by the configured ceiling
func (c *Client) waitForQuota(ctx context.Context) error {
	wait := c.quota.WaitTime(c.now())
	if wait <= 0 {
		return nil
	}
	if wait > c.waitCeiling {
		wait = c.waitCeiling
	}
	c.logger.WithField("wait", wait.String()).Warn("Rate limit quota low, suspending before next request")
	return c.sleep(ctx, wait)
}

// backoffDelay computes the exponential backoff for an attempt, with jitter
func (c *Client) backoffDelay(attempt int) time.Duration {
	d := c.initialBackoff << uint(attempt)
	if d > c.maxBackoff || d <= 0 {
		d = c.maxBackoff
	}
	// Up to 50% jitter so concurrent pipelines do not retry in lockstep.
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}

// do performs a GET with quota pacing, bounded retries and error
// classification. A nil return means result holds the decoded body.
func (c *Client) do(ctx context.Context, reqURL string, result interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.waitForQuota(ctx); err != nil {
			return err
		}
		if err := c.pacer.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return apperrors.NewFatal("failed to create request", err)
		}
		req.Header.Set("Accept", "application/vnd.github.v3+json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = apperrors.NewTransient("request failed", err)
			c.logger.WithError(err).Warnf("Request attempt %d failed", attempt+1)
			if err := c.sleep(ctx, c.backoffDelay(attempt)); err != nil {
				return err
			}
			continue
		}

		c.quota.UpdateFromResponse(resp)

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = apperrors.NewTransient("failed to read response body", readErr)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if result != nil {
				if err := json.Unmarshal(body, result); err != nil {
					return apperrors.NewFatal("failed to decode response", err)
				}
			}
			return nil

		case resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode == http.StatusForbidden && c.quota.Remaining() == 0:
			resetAt := c.rateLimitResetTime(resp)
			c.quota.SetRetryAt(resetAt)
			lastErr = apperrors.NewRateLimited(
				fmt.Sprintf("rate limit exceeded, resets at %v", resetAt), resetAt)
			wait := resetAt.Sub(c.now())
			if wait > c.waitCeiling {
				wait = c.waitCeiling
			}
			c.logger.WithField("wait", wait.String()).Warn("Rate limit exceeded, waiting before retry")
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
			continue

		case resp.StatusCode >= 500:
			lastErr = apperrors.NewTransient(
				fmt.Sprintf("server error (status %d)", resp.StatusCode), nil)
			if err := c.sleep(ctx, c.backoffDelay(attempt)); err != nil {
				return err
			}
			continue

		default:
			// Remaining 4xx are non-retryable: bad credentials, missing
			// resources, malformed requests.
			return apperrors.NewFatalStatus(resp.StatusCode,
				fmt.Sprintf("request rejected (status %d): %s", resp.StatusCode, truncate(string(body), 200)))
		}
	}

	return apperrors.NewTransient(fmt.Sprintf("max retries (%d) exceeded", c.maxRetries), lastErr)
}

// rateLimitResetTime picks the resume time for a 429/403 response,
// preferring an explicit Retry-After hint
func (c *Client) rateLimitResetTime(resp *http.Response) time.Time {
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if v, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
			return c.now().Add(time.Duration(v) * time.Second)
		}
	}
	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if v, err := strconv.ParseInt(reset, 10, 64); err == nil {
			return time.Unix(v, 0)
		}
	}
	return c.now().Add(time.Minute)
}

// GetRepository gets repository information
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*RawRepository, error) {
	if owner == "" || name == "" {
		return nil, apperrors.NewFatal("owner and name cannot be empty", nil)
	}

	var repo RawRepository
	reqURL := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, name)
	if err := c.do(ctx, reqURL, &repo); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewFatalStatus(http.StatusNotFound,
				fmt.Sprintf("repository not found: %s/%s", owner, name))
		}
		return nil, err
	}
	return &repo, nil
}

// ListCommits gets one page of the commit listing for a repository
func (c *Client) ListCommits(ctx context.Context, owner, name string, page, perPage int) ([]RawCommit, error) {
	if owner == "" || name == "" {
		return nil, apperrors.NewFatal("owner and name cannot be empty", nil)
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	var commits []RawCommit
	reqURL := fmt.Sprintf("%s/repos/%s/%s/commits?%s", c.baseURL, owner, name, query.Encode())
	if err := c.do(ctx, reqURL, &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

// GetCommit gets detailed commit information including file diffs
func (c *Client) GetCommit(ctx context.Context, owner, name, sha string) (*RawCommitDetail, error) {
	if sha == "" {
		return nil, apperrors.NewFatal("commit sha cannot be empty", nil)
	}

	var detail RawCommitDetail
	reqURL := fmt.Sprintf("%s/repos/%s/%s/commits/%s", c.baseURL, owner, name, sha)
	if err := c.do(ctx, reqURL, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetFileContent gets file content at a specific ref. Unavailable content
// yields (nil, nil): a missing file is a legitimate state for renames and
// deletes, and the contents endpoint rejects files over 1MB with a 403
// too_large that must not fail the whole commit. Only retryable errors
// surface to the caller.
func (c *Client) GetFileContent(ctx context.Context, owner, name, ref, path string) ([]byte, error) {
	query := url.Values{}
	query.Set("ref", ref)

	var content rawContent
	reqURL := fmt.Sprintf("%s/repos/%s/%s/contents/%s?%s", c.baseURL, owner, name, escapePathSegments(path), query.Encode())
	if err := c.do(ctx, reqURL, &content); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		if !apperrors.IsRetryable(err) {
			c.logger.WithFields(logrus.Fields{
				"path": path,
				"ref":  ref,
			}).WithError(err).Warn("File content unavailable, treating as absent")
			return nil, nil
		}
		return nil, err
	}

	if content.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(stripNewlines(content.Content))
		if err != nil {
			return nil, apperrors.NewFatal("failed to decode file content", err)
		}
		return decoded, nil
	}
	return []byte(content.Content), nil
}

func escapePathSegments(p string) string {
	u := url.URL{Path: p}
	return u.EscapedPath()
}

func stripNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\n' && s[i] != '\r' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
