package service

// Hand-written in-memory mocks for the repository interfaces.
//
// WHY NOT A MOCKING LIBRARY?
// The interfaces are small and the behaviour under test is stateful (dedupe,
// re-derivation, idempotence), so a real in-memory implementation reads
// better than expectation-style stubs and exercises the same call sequences
// the sqlite layer would see.

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/sakif/contribtrack/internal/apperror"
	"github.com/sakif/contribtrack/internal/model"
	"github.com/sakif/contribtrack/internal/repository"
)

// testLogger returns a logger that swallows output — the services log on
// their happy paths and tests don't need that noise.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- contribution repository ---

type mockContributionRepo struct {
	rows []*model.Contribution
	seq  int

	// createErr, when set, is returned by the next Create call. Used to
	// simulate the lost-insert race.
	createErr error

	// findMisses makes the next N FindClaim calls report NotFound even when
	// a matching row exists — the "pre-check ran before the winner's insert
	// landed" half of the race.
	findMisses int
}

var _ repository.ContributionRepository = (*mockContributionRepo)(nil)

func newMockContributionRepo() *mockContributionRepo {
	return &mockContributionRepo{}
}

func (m *mockContributionRepo) Create(ctx context.Context, c *model.Contribution) error {
	if m.createErr != nil {
		err := m.createErr
		m.createErr = nil
		return err
	}
	for _, r := range m.rows {
		sameClaim := r.RepoURL == c.RepoURL && r.PRNumber == c.PRNumber
		if sameClaim && (r.UserKey == c.UserKey || r.Username == c.Username) {
			return apperror.Duplicate("contribution", fmt.Sprintf("%s#%d", c.RepoURL, c.PRNumber))
		}
	}
	m.seq++
	c.ID = fmt.Sprintf("contribution-%d", m.seq)
	cp := *c
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *mockContributionRepo) GetByID(ctx context.Context, id string) (*model.Contribution, error) {
	for _, r := range m.rows {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("contribution", id)
}

func (m *mockContributionRepo) FindClaim(ctx context.Context, userKey, username, repoURL string, prNumber int) (*model.Contribution, error) {
	if m.findMisses > 0 {
		m.findMisses--
		return nil, apperror.NotFound("contribution", fmt.Sprintf("%s#%d", repoURL, prNumber))
	}
	for _, r := range m.rows {
		if r.RepoURL != repoURL || r.PRNumber != prNumber {
			continue
		}
		if (userKey != "" && r.UserKey == userKey) || (username != "" && r.Username == username) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("contribution", fmt.Sprintf("%s#%d", repoURL, prNumber))
}

func (m *mockContributionRepo) ListByStatus(ctx context.Context, status model.ReviewStatus, opts repository.ListOptions) ([]model.Contribution, error) {
	all, _ := m.AllByStatus(ctx, status)
	if opts.Offset >= len(all) {
		return nil, nil
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (m *mockContributionRepo) AllByStatus(ctx context.Context, status model.ReviewStatus) ([]model.Contribution, error) {
	var out []model.Contribution
	for _, r := range m.rows {
		if r.Status == status {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockContributionRepo) ApprovedForOwner(ctx context.Context, keys []string, username string) ([]model.Contribution, error) {
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}
	var out []model.Contribution
	for _, r := range m.rows {
		if r.Status != model.StatusApproved {
			continue
		}
		if keySet[r.UserKey] || (username != "" && r.Username == username) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockContributionRepo) UpdateReview(ctx context.Context, c *model.Contribution) error {
	for _, r := range m.rows {
		if r.ID == c.ID {
			r.Status = c.Status
			r.ReviewedBy = c.ReviewedBy
			r.ReviewedAt = c.ReviewedAt
			r.RejectionReason = c.RejectionReason
			return nil
		}
	}
	return apperror.NotFound("contribution", c.ID)
}

func (m *mockContributionRepo) CountByStatus(ctx context.Context, status model.ReviewStatus) (int, error) {
	n := 0
	for _, r := range m.rows {
		if r.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *mockContributionRepo) DistinctUserKeys(ctx context.Context) ([]string, error) {
	set := make(map[string]bool)
	for _, r := range m.rows {
		set[r.UserKey] = true
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *mockContributionRepo) PurgeRejected(ctx context.Context) (int64, error) {
	var kept []*model.Contribution
	var deleted int64
	for _, r := range m.rows {
		if r.Status == model.StatusRejected {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return deleted, nil
}

// --- user repository ---

type mockUserRepo struct {
	users []*model.User
	seq   int

	// ledgerWrites counts UpdateLedger calls — the idempotence tests assert
	// that a no-change reconcile run performs zero writes.
	ledgerWrites int
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{}
}

func (m *mockUserRepo) addUser(githubID int64, login string) *model.User {
	m.seq++
	u := &model.User{
		ID:       fmt.Sprintf("user-%d", m.seq),
		GitHubID: githubID,
		Login:    login,
	}
	m.users = append(m.users, u)
	return u
}

func (m *mockUserRepo) Upsert(ctx context.Context, user *model.User) error {
	for _, u := range m.users {
		if u.GitHubID == user.GitHubID {
			user.ID = u.ID
			u.Login = user.Login
			u.Email = user.Email
			u.AvatarURL = user.AvatarURL
			return nil
		}
	}
	m.seq++
	user.ID = fmt.Sprintf("user-%d", m.seq)
	cp := *user
	m.users = append(m.users, &cp)
	return nil
}

func (m *mockUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", id)
}

func (m *mockUserRepo) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	for _, u := range m.users {
		if u.GitHubID == githubID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", fmt.Sprint(githubID))
}

func (m *mockUserRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	for _, u := range m.users {
		if u.Login == login {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", login)
}

func (m *mockUserRepo) ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	out := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *mockUserRepo) UpdateLedger(ctx context.Context, user *model.User) error {
	for _, u := range m.users {
		if u.ID == user.ID {
			u.Points = user.Points
			u.Badges = append([]string(nil), user.Badges...)
			u.Merged = append([]model.MergedEntry(nil), user.Merged...)
			u.Cancelled = append([]model.CancelledEntry(nil), user.Cancelled...)
			m.ledgerWrites++
			return nil
		}
	}
	return apperror.NotFound("user", user.ID)
}

func (m *mockUserRepo) TopByPoints(ctx context.Context, limit int) ([]model.User, error) {
	out := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].Login < out[j].Login
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// --- repo catalog ---

type mockCatalog struct {
	repos map[string]*model.RegisteredRepo // keyed by URL
}

var _ repository.RepoCatalog = (*mockCatalog)(nil)

func newMockCatalog() *mockCatalog {
	return &mockCatalog{repos: make(map[string]*model.RegisteredRepo)}
}

func (m *mockCatalog) addRepo(url string, pointValue int) {
	m.repos[url] = &model.RegisteredRepo{
		ID:         url,
		URL:        url,
		PointValue: pointValue,
		Approved:   true,
	}
}

func (m *mockCatalog) SaveRepo(ctx context.Context, repo *model.RegisteredRepo) error {
	cp := *repo
	m.repos[repo.URL] = &cp
	return nil
}

func (m *mockCatalog) GetRepoByURL(ctx context.Context, url string) (*model.RegisteredRepo, error) {
	if r, ok := m.repos[url]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, apperror.NotFound("repository", url)
}

func (m *mockCatalog) ListApprovedRepos(ctx context.Context) ([]model.RegisteredRepo, error) {
	urls := make([]string, 0, len(m.repos))
	for url := range m.repos {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	var out []model.RegisteredRepo
	for _, url := range urls {
		if m.repos[url].Approved {
			out = append(out, *m.repos[url])
		}
	}
	return out, nil
}
