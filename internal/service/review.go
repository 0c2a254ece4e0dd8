package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/contribtrack/internal/apperror"
	"github.com/sakif/contribtrack/internal/model"
	"github.com/sakif/contribtrack/internal/repository"
)

// ReviewService applies staff review decisions to pending contributions.
//
// The state machine is small and strict:
//
//	pending → approved
//	pending → rejected
//
// Both resolved states are terminal. A decision records WHO reviewed and
// WHEN; a rejection additionally requires a non-empty reason, because that
// reason is copied onto the user's ledger where they can read it.
//
// Note what ReviewService does NOT do: touch any user ledger. Resolved
// records sit in the queue until the next reconciliation run folds them in.
type ReviewService struct {
	contributions repository.ContributionRepository
	logger        *slog.Logger
}

// NewReviewService creates a ReviewService.
func NewReviewService(contributions repository.ContributionRepository, logger *slog.Logger) *ReviewService {
	return &ReviewService{contributions: contributions, logger: logger}
}

// Approve marks a pending contribution approved.
func (s *ReviewService) Approve(ctx context.Context, id, reviewer string) (*model.Contribution, error) {
	return s.resolve(ctx, id, reviewer, model.StatusApproved, "")
}

// Reject marks a pending contribution rejected with the given reason.
func (s *ReviewService) Reject(ctx context.Context, id, reviewer, reason string) (*model.Contribution, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.ValidationFailed("reason", "a rejection reason is required")
	}
	return s.resolve(ctx, id, reviewer, model.StatusRejected, reason)
}

func (s *ReviewService) resolve(ctx context.Context, id, reviewer string, status model.ReviewStatus, reason string) (*model.Contribution, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return nil, apperror.ValidationFailed("reviewer", "reviewer identity is required")
	}

	contribution, err := s.contributions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Terminal means terminal: a second decision on a resolved record is a
	// conflict, not an overwrite. (Re-opening a rejected claim is an
	// administrative feature outside this pipeline.)
	if contribution.Status != model.StatusPending {
		return nil, apperror.Conflict("contribution", id)
	}

	now := time.Now()
	contribution.Status = status
	contribution.ReviewedBy = reviewer
	contribution.ReviewedAt = &now
	contribution.RejectionReason = reason

	if err := s.contributions.UpdateReview(ctx, contribution); err != nil {
		return nil, fmt.Errorf("recording review decision: %w", err)
	}

	s.logger.Info("contribution reviewed",
		slog.String("id", id),
		slog.String("status", string(status)),
		slog.String("reviewer", reviewer),
	)

	return contribution, nil
}

// PurgeRejected deletes all rejected records — the explicit admin cleanup,
// and the only way contribution rows ever leave the table.
func (s *ReviewService) PurgeRejected(ctx context.Context) (int64, error) {
	n, err := s.contributions.PurgeRejected(ctx)
	if err != nil {
		return 0, fmt.Errorf("purging rejected contributions: %w", err)
	}
	s.logger.Info("rejected contributions purged", slog.Int64("deleted", n))
	return n, nil
}
