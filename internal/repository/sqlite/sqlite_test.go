package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/sakif/contribtrack/internal/model"
)

// newTestDB creates an in-memory SQLite database for testing.
//
// WHY ":memory:"?
// The in-memory database lives only for the duration of the test — no files
// to clean up, no state leaking between tests, and it's fast. Every test gets
// a fresh schema because New() runs the migrations.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// t.Cleanup registers a function to run when the test (and its subtests)
	// finish — like defer, but tied to the test lifecycle.
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})

	return db
}

// createTestContribution inserts a pending contribution and fails the test on
// error. Fields not worth varying per-test get stable defaults.
func createTestContribution(t *testing.T, db *DB, userKey, username, repoURL string, prNumber int) *model.Contribution {
	t.Helper()

	c := &model.Contribution{
		UserKey:         userKey,
		Username:        username,
		RepoURL:         repoURL,
		PRNumber:        prNumber,
		Title:           "test PR",
		MergedAt:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SuggestedPoints: 50,
		Status:          model.StatusPending,
	}
	if err := db.Create(context.Background(), c); err != nil {
		t.Fatalf("failed to create test contribution: %v", err)
	}
	return c
}

// createTestUser inserts a user and fails the test on error.
func createTestUser(t *testing.T, db *DB, githubID int64, login string) *model.User {
	t.Helper()

	user := &model.User{
		GitHubID:  githubID,
		Login:     login,
		Email:     login + "@example.com",
		AvatarURL: "https://avatars.githubusercontent.com/u/123",
	}
	if err := db.Upsert(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}
