// Package repository declares the storage interfaces the rest of the app
// programs against. Concrete implementations live in subpackages (sqlite).
//
// Services receive these interfaces — never *sqlite.DB directly — so tests
// can inject in-memory mocks and the backing store can be swapped without
// touching business logic.
package repository

import (
	"context"

	"github.com/sakif/contribtrack/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// ContributionRepository stores pending-contribution claims.
//
// UNIQUENESS CONTRACT:
// Create must fail with apperror.ErrDuplicate (wrapped) when a row for the
// same (userKey, repoURL, prNumber) or (username, repoURL, prNumber) already
// exists. The sqlite implementation backs this with two compound UNIQUE
// indexes, so the guarantee holds even when two submitters race — an
// application-level pre-check alone would not survive that.
type ContributionRepository interface {
	Create(ctx context.Context, c *model.Contribution) error
	GetByID(ctx context.Context, id string) (*model.Contribution, error)

	// FindClaim looks up an existing claim under either identity key.
	// Returns apperror.ErrNotFound when no row matches.
	FindClaim(ctx context.Context, userKey, username, repoURL string, prNumber int) (*model.Contribution, error)

	ListByStatus(ctx context.Context, status model.ReviewStatus, opts ListOptions) ([]model.Contribution, error)

	// AllByStatus loads the complete set for one status — the reconciler's
	// bulk read (two calls, not one per user).
	AllByStatus(ctx context.Context, status model.ReviewStatus) ([]model.Contribution, error)

	// ApprovedForOwner returns every currently-approved row whose user_key is
	// one of keys OR whose username matches. This is the full-set re-query
	// behind points re-derivation; it must not be served from a cache.
	ApprovedForOwner(ctx context.Context, keys []string, username string) ([]model.Contribution, error)

	// UpdateReview records the reviewer's decision on a pending row.
	UpdateReview(ctx context.Context, c *model.Contribution) error

	CountByStatus(ctx context.Context, status model.ReviewStatus) (int, error)
	DistinctUserKeys(ctx context.Context) ([]string, error)

	// PurgeRejected deletes all rejected rows. The only delete path —
	// pending and approved rows are never removed.
	PurgeRejected(ctx context.Context) (int64, error)
}

// UserRepository stores participants and their ledgers.
type UserRepository interface {
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	ListUsers(ctx context.Context, opts ListOptions) ([]model.User, error)

	// UpdateLedger persists the reconciler-owned fields (points, badges,
	// merged and cancelled entries). Kept separate from Upsert so profile
	// sync can never clobber derived state and vice versa.
	UpdateLedger(ctx context.Context, user *model.User) error

	// TopByPoints returns up to limit users ordered by points descending.
	TopByPoints(ctx context.Context, limit int) ([]model.User, error)
}

// RepoCatalog stores the registered-repository point policies. The core
// pipeline only reads it; writes come from the admin surface.
type RepoCatalog interface {
	SaveRepo(ctx context.Context, repo *model.RegisteredRepo) error
	GetRepoByURL(ctx context.Context, url string) (*model.RegisteredRepo, error)
	ListApprovedRepos(ctx context.Context) ([]model.RegisteredRepo, error)
}
