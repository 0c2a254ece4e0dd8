// Package service contains the business logic layer of the application.
//
// The layering follows the usual split:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes the database
//
// Every service takes repository INTERFACES (never *sqlite.DB) so tests can
// inject in-memory mocks and storage can be swapped in one place, main.go.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/contribtrack/internal/apperror"
	"github.com/sakif/contribtrack/internal/model"
	"github.com/sakif/contribtrack/internal/repository"
)

// Submission is the raw merged-PR claim handed to the gateway, before any
// dedupe or point resolution.
type Submission struct {
	UserKey  string
	Username string
	RepoURL  string
	PRNumber int
	Title    string
	MergedAt time.Time
}

// SubmissionGateway turns raw merged-PR records into pending contributions,
// rejecting duplicates.
//
// IDEMPOTENCE OVER ERRORS:
// The same contribution is routinely observed more than once — the sync job
// re-fetches, admins re-submit, two sources race. Submitting an
// already-claimed PR is therefore NOT an error condition: the gateway
// returns the existing record wrapped in apperror.ErrDuplicate so the caller
// can tell "already counted" from "newly created", and nothing else.
type SubmissionGateway struct {
	contributions repository.ContributionRepository
	catalog       repository.RepoCatalog
	logger        *slog.Logger
}

// NewSubmissionGateway creates a SubmissionGateway.
func NewSubmissionGateway(
	contributions repository.ContributionRepository,
	catalog repository.RepoCatalog,
	logger *slog.Logger,
) *SubmissionGateway {
	return &SubmissionGateway{
		contributions: contributions,
		catalog:       catalog,
		logger:        logger,
	}
}

// Submit records a merged-PR claim as a pending contribution.
//
// Returns the created record, or — when the claim already exists under
// either identity key — the PRE-EXISTING record together with an error
// wrapping apperror.ErrDuplicate. Submission never touches any user ledger:
// it only feeds the review queue, and approval is a separate, human step.
//
// THE DOUBLE DUPLICATE CHECK:
// We look up first (cheap, catches almost everything), then STILL catch the
// storage layer's uniqueness violation on insert. The pre-check alone can't
// close the race where two submitters pass the lookup simultaneously; the
// UNIQUE index can, and when it fires we re-fetch and return the row the
// winner created.
func (g *SubmissionGateway) Submit(ctx context.Context, sub Submission) (*model.Contribution, error) {
	if err := validateSubmission(&sub); err != nil {
		return nil, err
	}

	existing, err := g.contributions.FindClaim(ctx, sub.UserKey, sub.Username, sub.RepoURL, sub.PRNumber)
	if err == nil {
		return existing, apperror.Duplicate("contribution",
			fmt.Sprintf("%s#%d", sub.RepoURL, sub.PRNumber))
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("checking for existing claim: %w", err)
	}

	contribution := &model.Contribution{
		UserKey:         sub.UserKey,
		Username:        sub.Username,
		RepoURL:         sub.RepoURL,
		PRNumber:        sub.PRNumber,
		Title:           sub.Title,
		MergedAt:        sub.MergedAt,
		SuggestedPoints: g.resolvePoints(ctx, sub.RepoURL),
		Status:          model.StatusPending,
		SubmittedAt:     time.Now(),
	}

	if err := g.contributions.Create(ctx, contribution); err != nil {
		if errors.Is(err, apperror.ErrDuplicate) {
			// Lost the race — another submitter inserted between our lookup
			// and our insert. Their row is the canonical one.
			winner, ferr := g.contributions.FindClaim(ctx, sub.UserKey, sub.Username, sub.RepoURL, sub.PRNumber)
			if ferr != nil {
				return nil, fmt.Errorf("refetching claim after unique violation: %w", ferr)
			}
			return winner, apperror.Duplicate("contribution",
				fmt.Sprintf("%s#%d", sub.RepoURL, sub.PRNumber))
		}
		g.logger.Error("failed to create contribution",
			slog.String("repo", sub.RepoURL),
			slog.Int("pr", sub.PRNumber),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating contribution: %w", err)
	}

	g.logger.Info("contribution submitted",
		slog.String("id", contribution.ID),
		slog.String("username", sub.Username),
		slog.String("repo", sub.RepoURL),
		slog.Int("pr", sub.PRNumber),
		slog.Int("suggestedPoints", contribution.SuggestedPoints),
	)

	return contribution, nil
}

// resolvePoints captures the claim's point value from the repository's
// CURRENT policy. Unregistered and unpriced repositories fall back to the
// global default. This is the ONE place the default is applied — the stored
// suggested_points is always a concrete number afterwards.
func (g *SubmissionGateway) resolvePoints(ctx context.Context, repoURL string) int {
	repo, err := g.catalog.GetRepoByURL(ctx, repoURL)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			g.logger.Warn("catalog lookup failed, using default points",
				slog.String("repo", repoURL),
				slog.String("error", err.Error()),
			)
		}
		return model.DefaultPointValue
	}
	if repo.PointValue <= 0 {
		return model.DefaultPointValue
	}
	return repo.PointValue
}

func validateSubmission(sub *Submission) error {
	sub.UserKey = strings.TrimSpace(sub.UserKey)
	sub.Username = strings.TrimSpace(sub.Username)
	sub.RepoURL = strings.TrimSuffix(strings.TrimSpace(sub.RepoURL), "/")

	if sub.UserKey == "" && sub.Username == "" {
		return apperror.ValidationFailed("userKey", "a user identity or username is required")
	}
	if sub.RepoURL == "" {
		return apperror.ValidationFailed("repositoryUrl", "repository URL is required")
	}
	if sub.PRNumber <= 0 {
		return apperror.ValidationFailed("prNumber", "PR number must be positive")
	}
	if sub.MergedAt.IsZero() {
		return apperror.ValidationFailed("mergedAt", "merge timestamp is required")
	}
	return nil
}
