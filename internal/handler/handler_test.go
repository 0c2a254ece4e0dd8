package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sakif/contribtrack/internal/auth"
	"github.com/sakif/contribtrack/internal/github"
	"github.com/sakif/contribtrack/internal/model"
	"github.com/sakif/contribtrack/internal/repository/sqlite"
	"github.com/sakif/contribtrack/internal/service"
)

// testEnv wires the full service stack over an in-memory database, the same
// way server.New does in production, so handler tests exercise real JSON
// translation against real semantics.
type testEnv struct {
	db         *sqlite.DB
	gateway    *service.SubmissionGateway
	reviews    *service.ReviewService
	reconciler *service.ReconcileService
	syncer     *service.SyncService
	validator  *service.IntegrityValidator
	fetcher    *stubFetcher
	tokens     *auth.TokenService
	logger     *slog.Logger
}

// stubFetcher stands in for the GitHub client on the sync path.
type stubFetcher struct {
	prs map[string][]github.PullRequest
}

func (s *stubFetcher) FetchMergedPullRequests(ctx context.Context, username string) ([]github.PullRequest, error) {
	return s.prs[username], nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-key!")
	if err != nil {
		t.Fatalf("creating token service: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fetcher := &stubFetcher{prs: map[string][]github.PullRequest{}}
	gateway := service.NewSubmissionGateway(db, db, logger)

	return &testEnv{
		db:         db,
		gateway:    gateway,
		reviews:    service.NewReviewService(db, logger),
		reconciler: service.NewReconcileService(db, db, db, t.TempDir(), logger),
		syncer:     service.NewSyncService(db, fetcher, gateway, logger),
		validator:  service.NewIntegrityValidator(db, db),
		fetcher:    fetcher,
		tokens:     tokens,
		logger:     logger,
	}
}

// wrapAdmin mounts h behind the auth middleware without attaching a session.
func (e *testEnv) wrapAdmin(h http.HandlerFunc) http.Handler {
	return auth.RequireAdmin(e.tokens)(h)
}

// asAdmin wraps h in the auth middleware and serves req with a valid admin
// cookie, the way the admin routes are mounted in production.
func (e *testEnv) asAdmin(t *testing.T, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	token, err := e.tokens.Generate("admin")
	if err != nil {
		t.Fatalf("generating admin token: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: "token", Value: token})

	rr := httptest.NewRecorder()
	auth.RequireAdmin(e.tokens)(h).ServeHTTP(rr, req)
	return rr
}

// submitPending pushes a claim through the gateway and returns the created
// pending record.
func (e *testEnv) submitPending(t *testing.T, userKey, username, repoURL string, prNumber int) *model.Contribution {
	t.Helper()

	c, err := e.gateway.Submit(context.Background(), service.Submission{
		UserKey:  userKey,
		Username: username,
		RepoURL:  repoURL,
		PRNumber: prNumber,
		Title:    "test change",
		MergedAt: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("seeding contribution: %v", err)
	}
	return c
}
