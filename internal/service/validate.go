package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sakif/contribtrack/internal/model"
	"github.com/sakif/contribtrack/internal/repository"
)

// ValidationReport is the integrity validator's output: aggregate counts
// across the pending queue and the ledgers, side by side, so an operator can
// spot drift at a glance.
//
// The queue counts and ledger totals won't match exactly in a healthy system
// (resolved records that haven't been reconciled yet, purged rejections),
// but they should track each other; a widening gap means the reconciler is
// failing somewhere it isn't reporting.
type ValidationReport struct {
	// Queue side.
	PendingCount  int `json:"pendingCount"`
	ApprovedCount int `json:"approvedCount"`
	RejectedCount int `json:"rejectedCount"`

	// Ledger side.
	LedgerMergedTotal    int `json:"ledgerMergedTotal"`
	LedgerCancelledTotal int `json:"ledgerCancelledTotal"`

	// Sanity counts.
	UsersTotal             int `json:"usersTotal"`
	UsersWithContributions int `json:"usersWithContributions"`
	UsersWithPoints        int `json:"usersWithPoints"`

	// Identity-key audit: how many distinct keys in the queue look like
	// numeric GitHub IDs vs arbitrary strings. Data migrated under
	// inconsistent key conventions shows up here before it shows up as
	// unresolvable keys in a reconcile run.
	NumericKeys   int `json:"numericKeys"`
	ArbitraryKeys int `json:"arbitraryKeys"`
}

// IntegrityValidator runs the read-only consistency audit. It takes no
// corrective action — it only reports, and can run at any time, including
// while a reconciliation is in flight.
type IntegrityValidator struct {
	contributions repository.ContributionRepository
	users         repository.UserRepository
}

// NewIntegrityValidator creates an IntegrityValidator.
func NewIntegrityValidator(
	contributions repository.ContributionRepository,
	users repository.UserRepository,
) *IntegrityValidator {
	return &IntegrityValidator{contributions: contributions, users: users}
}

// Validate produces a fresh report.
func (v *IntegrityValidator) Validate(ctx context.Context) (*ValidationReport, error) {
	report := &ValidationReport{}

	var err error
	if report.PendingCount, err = v.contributions.CountByStatus(ctx, model.StatusPending); err != nil {
		return nil, fmt.Errorf("counting pending contributions: %w", err)
	}
	if report.ApprovedCount, err = v.contributions.CountByStatus(ctx, model.StatusApproved); err != nil {
		return nil, fmt.Errorf("counting approved contributions: %w", err)
	}
	if report.RejectedCount, err = v.contributions.CountByStatus(ctx, model.StatusRejected); err != nil {
		return nil, fmt.Errorf("counting rejected contributions: %w", err)
	}

	keys, err := v.contributions.DistinctUserKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("auditing identity keys: %w", err)
	}
	for _, key := range keys {
		if _, perr := strconv.ParseInt(key, 10, 64); perr == nil {
			report.NumericKeys++
		} else {
			report.ArbitraryKeys++
		}
	}

	// Walk every ledger page by page and aggregate.
	opts := repository.ListOptions{Limit: 100}
	for {
		page, err := v.users.ListUsers(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("listing users: %w", err)
		}

		for _, u := range page {
			report.UsersTotal++
			report.LedgerMergedTotal += len(u.Merged)
			report.LedgerCancelledTotal += len(u.Cancelled)
			if len(u.Merged) > 0 || len(u.Cancelled) > 0 {
				report.UsersWithContributions++
			}
			if u.Points > 0 {
				report.UsersWithPoints++
			}
		}

		if len(page) < opts.Limit {
			break
		}
		opts.Offset += opts.Limit
	}

	return report, nil
}
