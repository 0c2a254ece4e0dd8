package service

import (
	"context"
	"testing"
	"time"

	"github.com/sakif/contribtrack/internal/model"
)

func TestValidate(t *testing.T) {
	contributions := newMockContributionRepo()
	users := newMockUserRepo()
	ctx := context.Background()

	// Queue: 2 pending, 1 approved, 1 rejected; keys are one numeric, one not.
	now := time.Now()
	seed := []*model.Contribution{
		{UserKey: "12345", Username: "a", RepoURL: "https://github.com/org/r", PRNumber: 1, MergedAt: now, Status: model.StatusPending},
		{UserKey: "12345", Username: "a", RepoURL: "https://github.com/org/r", PRNumber: 2, MergedAt: now, Status: model.StatusPending},
		{UserKey: "12345", Username: "a", RepoURL: "https://github.com/org/r", PRNumber: 3, MergedAt: now, Status: model.StatusApproved},
		{UserKey: "legacy-b", Username: "b", RepoURL: "https://github.com/org/r", PRNumber: 4, MergedAt: now, Status: model.StatusRejected},
	}
	for _, c := range seed {
		if err := contributions.Create(ctx, c); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}

	// Ledgers: one user with entries and points, one untouched.
	active := users.addUser(12345, "a")
	active.Points = 150
	active.Merged = []model.MergedEntry{{RepoURL: "https://github.com/org/r", PRNumber: 3}}
	active.Cancelled = []model.CancelledEntry{{RepoURL: "https://github.com/org/r", PRNumber: 4}}
	users.addUser(67890, "b")

	report, err := NewIntegrityValidator(contributions, users).Validate(ctx)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if report.PendingCount != 2 || report.ApprovedCount != 1 || report.RejectedCount != 1 {
		t.Errorf("queue counts = %d/%d/%d, want 2/1/1",
			report.PendingCount, report.ApprovedCount, report.RejectedCount)
	}
	if report.LedgerMergedTotal != 1 || report.LedgerCancelledTotal != 1 {
		t.Errorf("ledger totals = %d/%d, want 1/1",
			report.LedgerMergedTotal, report.LedgerCancelledTotal)
	}
	if report.UsersTotal != 2 {
		t.Errorf("usersTotal = %d, want 2", report.UsersTotal)
	}
	if report.UsersWithContributions != 1 {
		t.Errorf("usersWithContributions = %d, want 1", report.UsersWithContributions)
	}
	if report.UsersWithPoints != 1 {
		t.Errorf("usersWithPoints = %d, want 1", report.UsersWithPoints)
	}
	if report.NumericKeys != 1 || report.ArbitraryKeys != 1 {
		t.Errorf("key audit = %d numeric / %d arbitrary, want 1/1",
			report.NumericKeys, report.ArbitraryKeys)
	}
}

func TestValidate_EmptySystem(t *testing.T) {
	report, err := NewIntegrityValidator(newMockContributionRepo(), newMockUserRepo()).
		Validate(context.Background())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if report.UsersTotal != 0 || report.PendingCount != 0 {
		t.Errorf("empty system report = %+v, want all zeros", report)
	}
}
