package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/contribtrack/internal/apperror"
	"github.com/sakif/contribtrack/internal/model"
)

func newTestGateway() (*SubmissionGateway, *mockContributionRepo, *mockCatalog) {
	contributions := newMockContributionRepo()
	catalog := newMockCatalog()
	return NewSubmissionGateway(contributions, catalog, testLogger()), contributions, catalog
}

func validSubmission() Submission {
	return Submission{
		UserKey:  "12345",
		Username: "octocat",
		RepoURL:  "https://github.com/org/repo",
		PRNumber: 42,
		Title:    "Fix the thing",
		MergedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// =========================================================================
// HAPPY PATH
// =========================================================================

func TestSubmit_CreatesPendingContribution(t *testing.T) {
	gateway, _, catalog := newTestGateway()
	catalog.addRepo("https://github.com/org/repo", 80)

	c, err := gateway.Submit(context.Background(), validSubmission())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if c.Status != model.StatusPending {
		t.Errorf("status = %q, want pending", c.Status)
	}
	if c.SuggestedPoints != 80 {
		t.Errorf("suggestedPoints = %d, want the catalog value 80", c.SuggestedPoints)
	}
	if c.SubmittedAt.IsZero() {
		t.Error("SubmittedAt should be set")
	}
}

func TestSubmit_UnregisteredRepoGetsDefaultPoints(t *testing.T) {
	gateway, _, _ := newTestGateway()

	c, err := gateway.Submit(context.Background(), validSubmission())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if c.SuggestedPoints != model.DefaultPointValue {
		t.Errorf("suggestedPoints = %d, want default %d", c.SuggestedPoints, model.DefaultPointValue)
	}
}

func TestSubmit_TrimsTrailingSlashFromRepoURL(t *testing.T) {
	gateway, _, _ := newTestGateway()

	sub := validSubmission()
	sub.RepoURL = "https://github.com/org/repo/"

	c, err := gateway.Submit(context.Background(), sub)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if c.RepoURL != "https://github.com/org/repo" {
		t.Errorf("repoURL = %q, want trailing slash removed", c.RepoURL)
	}
}

// =========================================================================
// DUPLICATE HANDLING
// =========================================================================

func TestSubmit_DuplicateReturnsExistingRecord(t *testing.T) {
	gateway, _, _ := newTestGateway()
	ctx := context.Background()

	first, err := gateway.Submit(ctx, validSubmission())
	if err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	second, err := gateway.Submit(ctx, validSubmission())
	if !errors.Is(err, apperror.ErrDuplicate) {
		t.Fatalf("second Submit() error = %v, want ErrDuplicate", err)
	}
	if second == nil || second.ID != first.ID {
		t.Errorf("second Submit() should return the existing record %q, got %+v", first.ID, second)
	}
}

func TestSubmit_DuplicateAcrossIdentityConventions(t *testing.T) {
	gateway, _, _ := newTestGateway()
	ctx := context.Background()

	// First claim keyed by numeric GitHub ID
	if _, err := gateway.Submit(ctx, validSubmission()); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	// Same PR, submitted manually with only the username
	manual := validSubmission()
	manual.UserKey = ""

	_, err := gateway.Submit(ctx, manual)
	if !errors.Is(err, apperror.ErrDuplicate) {
		t.Errorf("Submit() under the other identity convention error = %v, want ErrDuplicate", err)
	}
}

func TestSubmit_LosingInsertRaceReturnsWinner(t *testing.T) {
	gateway, contributions, _ := newTestGateway()
	ctx := context.Background()

	// The winner's row is already in storage, but our pre-check runs as if
	// it landed a moment later: the first FindClaim misses, the insert hits
	// the unique index, and the re-fetch finds the winner.
	winner, err := gateway.Submit(ctx, validSubmission())
	if err != nil {
		t.Fatalf("seed Submit() error = %v", err)
	}

	contributions.findMisses = 1

	got, err := gateway.Submit(ctx, validSubmission())
	if !errors.Is(err, apperror.ErrDuplicate) {
		t.Fatalf("Submit() after lost race error = %v, want ErrDuplicate", err)
	}
	if got == nil || got.ID != winner.ID {
		t.Errorf("Submit() after lost race should return the winner's record")
	}
}

// =========================================================================
// VALIDATION
// =========================================================================

func TestSubmit_Validation(t *testing.T) {
	gateway, _, _ := newTestGateway()

	cases := []struct {
		name   string
		mutate func(*Submission)
	}{
		{"missing identity", func(s *Submission) { s.UserKey = ""; s.Username = "" }},
		{"missing repo URL", func(s *Submission) { s.RepoURL = "" }},
		{"zero PR number", func(s *Submission) { s.PRNumber = 0 }},
		{"negative PR number", func(s *Submission) { s.PRNumber = -3 }},
		{"zero merge time", func(s *Submission) { s.MergedAt = time.Time{} }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := validSubmission()
			tc.mutate(&sub)

			_, err := gateway.Submit(context.Background(), sub)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("Submit() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSubmit_UsernameOnlyIsAccepted(t *testing.T) {
	gateway, _, _ := newTestGateway()

	sub := validSubmission()
	sub.UserKey = ""

	if _, err := gateway.Submit(context.Background(), sub); err != nil {
		t.Errorf("Submit() with username only error = %v", err)
	}
}
