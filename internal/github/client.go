// Package github fetches merged pull requests for program participants from
// the GitHub search API.
//
// RATE LIMITS ARE THE DESIGN CONSTRAINT HERE:
// This client is called inside large batch loops (one fetch per registered
// user), and GitHub's search API allows 30 authenticated requests per minute.
// Two consequences shape the code:
//
//  1. A cache sits in front of the network. A result younger than the TTL is
//     returned as-is — no request, no retry logic engaged.
//  2. A rate-limit response is not an error, it's a schedule. GitHub sends
//     the reset time in the X-RateLimit-Reset header; when the wait is short
//     enough we sleep until reset and retry the SAME attempt. Only when no
//     reset hint exists do we fall back to blind exponential backoff.
//
// And because one user's failure must never abort a whole batch, the public
// fetch method degrades to an empty result instead of propagating errors.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// PullRequest is one merged PR as reported by the search API, reduced to the
// fields the submission gateway needs.
type PullRequest struct {
	Number   int       `json:"number"`
	Title    string    `json:"title"`
	RepoURL  string    `json:"repoUrl"` // https://github.com/{owner}/{repo}
	MergedAt time.Time `json:"mergedAt"`
	AuthorID int64     `json:"authorId"` // GitHub's numeric user ID
}

// Config tunes the client. DefaultConfig covers production; tests shrink the
// delays and point BaseURL at an httptest server.
type Config struct {
	// BaseURL of the GitHub API, without trailing slash.
	BaseURL string
	// StartDate floors the search: only PRs created on/after this date count
	// toward the program.
	StartDate time.Time
	// PageSize caps results per query (GitHub's maximum is 100).
	PageSize int
	// CacheTTL is how long a fetch result is served from cache.
	CacheTTL time.Duration
	// MaxRetries bounds the blind-backoff path (rate limited, no reset hint).
	MaxRetries int
	// BaseDelay is the first backoff delay; it doubles per attempt.
	BaseDelay time.Duration
	// MaxResetWait caps how long we're willing to sleep for a reset hint.
	// A reset further away than this is treated like a missing hint.
	MaxResetWait time.Duration
	// ResetBuffer is added on top of the reset wait so we don't retry a
	// moment before the window actually rolls over.
	ResetBuffer time.Duration
}

// DefaultConfig returns production settings.
func DefaultConfig(startDate time.Time) Config {
	return Config{
		BaseURL:      "https://api.github.com",
		StartDate:    startDate,
		PageSize:     100,
		CacheTTL:     time.Hour,
		MaxRetries:   3,
		BaseDelay:    2 * time.Second,
		MaxResetWait: 15 * time.Minute,
		ResetBuffer:  2 * time.Second,
	}
}

// Client queries GitHub for merged pull requests.
type Client struct {
	httpClient *http.Client
	cache      Cache
	config     Config
	logger     *slog.Logger

	// sleep is context-aware and stubbed in tests so rate-limit waits don't
	// slow the suite down.
	sleep func(ctx context.Context, d time.Duration) error

	// now is stubbed in tests to control reset-header arithmetic.
	now func() time.Time
}

// NewClient creates a Client authenticated with the given token.
//
// oauth2.NewClient wraps the transport so every request carries
// "Authorization: Bearer <token>" — the same mechanism the OAuth login flow
// uses, just with a static token source instead of an exchanged one.
// An empty token yields an unauthenticated client (60 requests/hour —
// fine for local development, not for a real sync run).
func NewClient(token string, cache Cache, cfg Config, logger *slog.Logger) *Client {
	httpClient := http.DefaultClient
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), src)
	}

	return &Client{
		httpClient: httpClient,
		cache:      cache,
		config:     cfg,
		logger:     logger,
		sleep:      sleepCtx,
		now:        time.Now,
	}
}

// FetchMergedPullRequests returns the merged PRs authored by username since
// the program start date.
//
// DEGRADED, NOT FATAL:
// On any terminal failure (retries exhausted, network error, bad response)
// this logs and returns an empty slice with a nil error. Callers run this
// inside batch loops over many users; treating "no items" as a valid if
// degraded outcome is what keeps one user's failure from aborting the batch.
func (c *Client) FetchMergedPullRequests(ctx context.Context, username string) ([]PullRequest, error) {
	if prs, ok := c.cache.Get(username); ok {
		return prs, nil
	}

	prs, err := c.search(ctx, username)
	if err != nil {
		// Context cancellation is the caller's decision, not a degraded fetch.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("fetch failed, returning empty result",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return []PullRequest{}, nil
	}

	c.cache.Set(username, prs)
	return prs, nil
}

// search runs the query with rate-limit handling.
//
// RETRY BUDGET ACCOUNTING:
// Honouring a reset hint does NOT consume an attempt — we learned exactly
// when to come back, so coming back isn't a guess. Only blind backoff (rate
// limited with no usable hint) counts against MaxRetries.
func (c *Client) search(ctx context.Context, username string) ([]PullRequest, error) {
	attempt := 0
	for {
		prs, retryAfter, err := c.searchOnce(ctx, username)
		if err == nil {
			return prs, nil
		}

		var rle *rateLimitError
		if !errors.As(err, &rle) {
			return nil, err
		}

		if retryAfter > 0 && retryAfter <= c.config.MaxResetWait {
			c.logger.Info("rate limited, sleeping until reset",
				slog.String("username", username),
				slog.Duration("wait", retryAfter),
			)
			if err := c.sleep(ctx, retryAfter+c.config.ResetBuffer); err != nil {
				return nil, err
			}
			continue // same attempt — the reset hint told us when to return
		}

		attempt++
		if attempt >= c.config.MaxRetries {
			return nil, fmt.Errorf("github: rate limited after %d attempts: %w", attempt, err)
		}

		delay := c.config.BaseDelay << (attempt - 1)
		c.logger.Info("rate limited without reset hint, backing off",
			slog.String("username", username),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// rateLimitError marks a 403/429 response whose rate-limit quota was
// exhausted. retryAfter (returned separately by searchOnce) carries the
// reset hint when the server provided one.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("github: rate limited (status %d)", e.status)
}

// searchResponse mirrors the subset of GitHub's search result we consume.
type searchResponse struct {
	Items []struct {
		Number  int    `json:"number"`
		Title   string `json:"title"`
		HTMLURL string `json:"html_url"`
		User    struct {
			ID int64 `json:"id"`
		} `json:"user"`
		PullRequest struct {
			MergedAt *time.Time `json:"merged_at"`
		} `json:"pull_request"`
	} `json:"items"`
}

// searchOnce issues a single search request. On a rate-limit response it
// returns a *rateLimitError plus the reset wait parsed from the
// X-RateLimit-Reset header (zero when absent).
func (c *Client) searchOnce(ctx context.Context, username string) ([]PullRequest, time.Duration, error) {
	// Search qualifier syntax, e.g.:
	//   type:pr author:sakif is:merged created:>=2026-01-01
	q := fmt.Sprintf("type:pr author:%s is:merged created:>=%s",
		username, c.config.StartDate.Format("2006-01-02"))

	endpoint := fmt.Sprintf("%s/search/issues?q=%s&per_page=%d",
		c.config.BaseURL, url.QueryEscape(q), c.config.PageSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("github: building search request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("github: calling search API: %w", err)
	}
	defer resp.Body.Close()

	if isRateLimited(resp) {
		return nil, c.resetWait(resp), &rateLimitError{status: resp.StatusCode}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("github: search API returned status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, 0, fmt.Errorf("github: decoding search response: %w", err)
	}

	prs := make([]PullRequest, 0, len(sr.Items))
	for _, item := range sr.Items {
		// The search qualifier already filters on is:merged, but the merged
		// timestamp can still be null for freshly-indexed items. Skip those —
		// they'll appear properly on the next sync.
		if item.PullRequest.MergedAt == nil {
			continue
		}
		prs = append(prs, PullRequest{
			Number:   item.Number,
			Title:    item.Title,
			RepoURL:  repoURLFromPR(item.HTMLURL),
			MergedAt: *item.PullRequest.MergedAt,
			AuthorID: item.User.ID,
		})
	}

	return prs, 0, nil
}

// isRateLimited recognises GitHub's two rate-limit signals: a plain 429, or
// a 403 with the X-RateLimit-Remaining quota at zero.
func isRateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode == http.StatusForbidden &&
		resp.Header.Get("X-RateLimit-Remaining") == "0"
}

// resetWait converts the X-RateLimit-Reset header (Unix epoch seconds) into
// a wait duration. Returns 0 when the header is missing or malformed.
func (c *Client) resetWait(resp *http.Response) time.Duration {
	raw := resp.Header.Get("X-RateLimit-Reset")
	if raw == "" {
		return 0
	}
	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	wait := time.Unix(epoch, 0).Sub(c.now())
	if wait < 0 {
		return 0
	}
	return wait
}

// repoURLFromPR derives the canonical repository URL from a PR's html_url:
// https://github.com/owner/repo/pull/42 → https://github.com/owner/repo
func repoURLFromPR(prURL string) string {
	if i := strings.Index(prURL, "/pull/"); i >= 0 {
		return prURL[:i]
	}
	return prURL
}

// sleepCtx waits for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
