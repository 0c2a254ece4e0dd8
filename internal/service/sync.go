package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/sakif/contribtrack/internal/apperror"
	"github.com/sakif/contribtrack/internal/github"
	"github.com/sakif/contribtrack/internal/model"
	"github.com/sakif/contribtrack/internal/repository"
)

// PRFetcher is the slice of the GitHub client the sync job needs. An
// interface so tests can stub fetches without a network.
type PRFetcher interface {
	FetchMergedPullRequests(ctx context.Context, username string) ([]github.PullRequest, error)
}

// SyncResult summarises one sync run.
type SyncResult struct {
	UsersScanned int `json:"usersScanned"`
	PRsFound     int `json:"prsFound"`
	Submitted    int `json:"submitted"`
	Duplicates   int `json:"duplicates"`

	Errors []string `json:"errors"`
}

// SyncService walks all registered participants, fetches their merged PRs
// from GitHub, and feeds each one through the submission gateway.
//
// THROTTLING, NOT PARALLELISM FOR SPEED:
// Users are processed in small fixed-size batches with a pause between
// batches. The batch size (3) and pause exist purely to stay under GitHub's
// search rate limit — the fetches inside one batch run concurrently because
// they're independent, but the pacing is the point, not the speedup.
type SyncService struct {
	users   repository.UserRepository
	fetcher PRFetcher
	gateway *SubmissionGateway
	logger  *slog.Logger

	batchSize  int
	batchPause time.Duration
}

// NewSyncService creates a SyncService with the reference pacing: batches of
// 3 users, 5 seconds apart.
func NewSyncService(
	users repository.UserRepository,
	fetcher PRFetcher,
	gateway *SubmissionGateway,
	logger *slog.Logger,
) *SyncService {
	return &SyncService{
		users:      users,
		fetcher:    fetcher,
		gateway:    gateway,
		logger:     logger,
		batchSize:  3,
		batchPause: 5 * time.Second,
	}
}

// SyncAll fetches and submits merged PRs for every registered user.
//
// One user's fetch failing (or returning nothing — the client degrades to
// empty rather than erroring) never stops the batch; duplicate submissions
// are counted, not reported as failures, because re-observing a PR on every
// sync run is the normal case.
func (s *SyncService) SyncAll(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{Errors: []string{}}

	var all []model.User
	opts := repository.ListOptions{Limit: 100}
	for {
		page, err := s.users.ListUsers(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("listing users for sync: %w", err)
		}
		all = append(all, page...)
		if len(page) < opts.Limit {
			break
		}
		opts.Offset += opts.Limit
	}

	var mu sync.Mutex // guards result across a batch's goroutines

	for start := 0; start < len(all); start += s.batchSize {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		end := start + s.batchSize
		if end > len(all) {
			end = len(all)
		}

		var wg sync.WaitGroup
		for _, user := range all[start:end] {
			wg.Add(1)
			go func(u model.User) {
				defer wg.Done()
				found, submitted, duplicates, err := s.syncUser(ctx, &u)

				mu.Lock()
				defer mu.Unlock()
				result.UsersScanned++
				result.PRsFound += found
				result.Submitted += submitted
				result.Duplicates += duplicates
				if err != nil {
					result.Errors = append(result.Errors,
						fmt.Sprintf("%s: %v", u.Login, err))
				}
			}(user)
		}
		wg.Wait()

		// Deliberate pause between batches — rate-limit headroom, nothing
		// else. Skipped after the last batch.
		if end < len(all) {
			select {
			case <-time.After(s.batchPause):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	s.logger.Info("sync complete",
		slog.Int("usersScanned", result.UsersScanned),
		slog.Int("prsFound", result.PRsFound),
		slog.Int("submitted", result.Submitted),
		slog.Int("duplicates", result.Duplicates),
		slog.Int("errors", len(result.Errors)),
	)

	return result, nil
}

func (s *SyncService) syncUser(ctx context.Context, user *model.User) (found, submitted, duplicates int, err error) {
	prs, err := s.fetcher.FetchMergedPullRequests(ctx, user.Login)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("fetching PRs: %w", err)
	}

	for _, pr := range prs {
		_, err := s.gateway.Submit(ctx, Submission{
			UserKey:  strconv.FormatInt(user.GitHubID, 10),
			Username: user.Login,
			RepoURL:  pr.RepoURL,
			PRNumber: pr.Number,
			Title:    pr.Title,
			MergedAt: pr.MergedAt,
		})
		switch {
		case err == nil:
			submitted++
		case errors.Is(err, apperror.ErrDuplicate):
			duplicates++
		default:
			return len(prs), submitted, duplicates, fmt.Errorf("submitting %s#%d: %w", pr.RepoURL, pr.Number, err)
		}
	}

	return len(prs), submitted, duplicates, nil
}
