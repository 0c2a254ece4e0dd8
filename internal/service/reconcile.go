package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sakif/contribtrack/internal/apperror"
	"github.com/sakif/contribtrack/internal/model"
	"github.com/sakif/contribtrack/internal/repository"
)

// ReconcileResult is the structured report returned by every run, including
// partially-failed ones. Only a failure to load the bulk sets aborts a run
// entirely; everything else lands in Errors.
type ReconcileResult struct {
	UsersProcessed int `json:"usersProcessed"`
	UsersUpdated   int `json:"usersUpdated"`
	ApprovedSeen   int `json:"pendingApprovedSeen"`
	RejectedSeen   int `json:"pendingRejectedSeen"`
	MergedAdded    int `json:"mergedEntriesAdded"`
	CancelledAdded int `json:"cancelledEntriesAdded"`

	Errors []ReconcileError `json:"errors"`
}

// ReconcileError records one identity key that could not be processed, with
// the reason. The rest of the batch is unaffected.
type ReconcileError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// ReconcileService folds resolved pending contributions into user ledgers.
//
// IDEMPOTENCE IS THE CENTRAL DESIGN PROPERTY:
// Running Reconcile twice in a row with no intervening approvals or
// rejections must leave every ledger byte-identical and perform zero writes
// on the second pass. Three mechanisms deliver that:
//
//   - ledger entries are matched by (repoURL, PR#) before insertion, so a
//     record that already made it onto the ledger is never appended again;
//   - points are RE-DERIVED from the full current set of approved rows, not
//     accumulated, so re-running recomputes the same total — and a point-
//     value edit made after approval is absorbed instead of double-counted;
//   - a user is persisted only when something actually changed, so repeat
//     runs are cheap no-ops rather than write amplification.
type ReconcileService struct {
	contributions repository.ContributionRepository
	users         repository.UserRepository
	catalog       repository.RepoCatalog
	logger        *slog.Logger
	backupDir     string

	// runLock makes overlapping runs mutually exclusive. The batch itself
	// tolerates concurrency (last write wins per user), but two runs doing
	// the same work at once is waste at best and entry-duplication risk at
	// worst, so a second trigger gets a conflict instead of a race.
	runLock sync.Mutex
}

// NewReconcileService creates a ReconcileService. backupDir is where ledger
// backups are written when a run is triggered with the backup flag.
func NewReconcileService(
	contributions repository.ContributionRepository,
	users repository.UserRepository,
	catalog repository.RepoCatalog,
	backupDir string,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		contributions: contributions,
		users:         users,
		catalog:       catalog,
		backupDir:     backupDir,
		logger:        logger,
	}
}

// Reconcile runs one full reconciliation pass.
//
// Algorithm:
//
//  1. Bulk-load ALL approved and ALL rejected contributions (two queries —
//     the only fatal failure point).
//  2. Group each set by the submitter's identity key.
//  3. For the union of keys, resolve the owning user (ordered strategies,
//     see IdentityResolver); unresolvable keys become per-key errors.
//  4. Append ledger entries the user doesn't already have.
//  5. Re-derive points from the full current approved set for that user.
//  6. Recompute badges from the updated ledger.
//  7. Persist only if something changed.
//
// Each user's update commits independently, so the run can be cancelled
// between users without corrupting state.
func (s *ReconcileService) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	if !s.runLock.TryLock() {
		return nil, apperror.Conflict("reconciliation", "run")
	}
	defer s.runLock.Unlock()

	approved, err := s.contributions.AllByStatus(ctx, model.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("loading approved contributions: %w", err)
	}
	rejected, err := s.contributions.AllByStatus(ctx, model.StatusRejected)
	if err != nil {
		return nil, fmt.Errorf("loading rejected contributions: %w", err)
	}

	registered, err := s.registeredURLSet(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading registered repositories: %w", err)
	}

	result := &ReconcileResult{
		ApprovedSeen: len(approved),
		RejectedSeen: len(rejected),
		Errors:       []ReconcileError{},
	}

	approvedByKey := groupByKey(approved)
	rejectedByKey := groupByKey(rejected)
	keys := keyUnion(approvedByKey, rejectedByKey)

	// One pricer per run: every user's points are derived against the same
	// catalog snapshot, and each repository is looked up at most once.
	pricer := newRepoPricer(s.catalog)

	// Phase one: resolve every identity key to its owning user, merging the
	// record groups of keys that turn out to name the same person (the sync
	// job keys rows by GitHub ID, manual submissions by login — both must
	// fold into ONE ledger). Unresolvable keys become errors, not aborts.
	resolver := NewIdentityResolver(s.users)
	workByUser := make(map[string]*userWork)
	var order []string // user IDs in first-seen (key-sorted) order

	for _, key := range keys {
		username := usernameForKey(approvedByKey[key], rejectedByKey[key])

		user, ok := resolver.Resolve(ctx, key, username)
		if !ok {
			result.Errors = append(result.Errors, ReconcileError{
				Key:     key,
				Message: "no user found for identity key",
			})
			continue
		}

		w := workByUser[user.ID]
		if w == nil {
			w = &userWork{user: user, key: key}
			workByUser[user.ID] = w
			order = append(order, user.ID)
		}
		w.approved = append(w.approved, approvedByKey[key]...)
		w.rejected = append(w.rejected, rejectedByKey[key]...)
	}

	// Phase two: fold each user's records in. Every user commits
	// independently, so the run is abortable between iterations without
	// corrupting state, and one user's failure never stops the rest.
	for _, userID := range order {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		w := workByUser[userID]
		result.UsersProcessed++

		updated, merged, cancelled, err := s.reconcileUser(ctx, w.user, w.approved, w.rejected, registered, pricer)
		if err != nil {
			s.logger.Error("failed to reconcile user",
				slog.String("key", w.key),
				slog.String("userID", userID),
				slog.String("error", err.Error()),
			)
			result.Errors = append(result.Errors, ReconcileError{Key: w.key, Message: err.Error()})
			continue
		}

		result.MergedAdded += merged
		result.CancelledAdded += cancelled
		if updated {
			result.UsersUpdated++
		}
	}

	s.logger.Info("reconciliation complete",
		slog.Int("usersProcessed", result.UsersProcessed),
		slog.Int("usersUpdated", result.UsersUpdated),
		slog.Int("mergedAdded", result.MergedAdded),
		slog.Int("cancelledAdded", result.CancelledAdded),
		slog.Int("errors", len(result.Errors)),
	)

	return result, nil
}

// userWork is one user's slice of the batch: their resolved record, the
// first key they were seen under (for error reporting), and the merged
// groups from every key that resolved to them.
type userWork struct {
	user     *model.User
	key      string
	approved []model.Contribution
	rejected []model.Contribution
}

// reconcileUser folds one user's resolved records into their ledger.
// Returns whether a write happened and how many entries of each kind were
// appended.
func (s *ReconcileService) reconcileUser(
	ctx context.Context,
	user *model.User,
	approved, rejected []model.Contribution,
	registered map[string]bool,
	pricer *repoPricer,
) (updated bool, mergedAdded, cancelledAdded int, err error) {
	for _, c := range approved {
		if user.HasMerged(c.RepoURL, c.PRNumber) {
			continue
		}
		user.Merged = append(user.Merged, model.MergedEntry{
			RepoURL:  c.RepoURL,
			PRNumber: c.PRNumber,
			Title:    c.Title,
			MergedAt: c.MergedAt,
		})
		mergedAdded++
	}

	for _, c := range rejected {
		if user.HasCancelled(c.RepoURL, c.PRNumber) {
			continue
		}
		resolvedAt := time.Now()
		if c.ReviewedAt != nil {
			resolvedAt = *c.ReviewedAt
		}
		user.Cancelled = append(user.Cancelled, model.CancelledEntry{
			RepoURL:    c.RepoURL,
			PRNumber:   c.PRNumber,
			Title:      c.Title,
			Reason:     c.RejectionReason,
			ResolvedAt: resolvedAt,
		})
		cancelledAdded++
	}

	// ALWAYS re-derive points from the full current approved set — not just
	// the rows synced above, and never from prior ledger state. Every row is
	// re-priced against the catalog as it stands NOW, which is what makes
	// point-value edits retroactive: the admin changes a repository's policy,
	// the next run re-prices every approved row, and the total moves without
	// any entry being double-added.
	points, err := s.derivePoints(ctx, user, pricer)
	if err != nil {
		return false, 0, 0, err
	}

	badges := CalculateBadges(user.Merged, points, registered)

	changed := mergedAdded > 0 || cancelledAdded > 0 ||
		points != user.Points || !equalStrings(badges, user.Badges)
	if !changed {
		return false, 0, 0, nil
	}

	user.Points = points
	user.Badges = badges
	if err := s.users.UpdateLedger(ctx, user); err != nil {
		return false, 0, 0, fmt.Errorf("persisting ledger: %w", err)
	}

	return true, mergedAdded, cancelledAdded, nil
}

// derivePoints re-queries every approved row belonging to this user (across
// all identity keys they're known under) and sums their CURRENT value: the
// catalog's point policy where one exists, the captured suggested points
// where the repository is no longer priced.
func (s *ReconcileService) derivePoints(ctx context.Context, user *model.User, pricer *repoPricer) (int, error) {
	keys := []string{
		strconv.FormatInt(user.GitHubID, 10),
		user.ID,
		user.Login,
	}
	rows, err := s.contributions.ApprovedForOwner(ctx, keys, user.Login)
	if err != nil {
		return 0, fmt.Errorf("re-querying approved contributions: %w", err)
	}

	total := 0
	for _, c := range rows {
		total += pricer.price(ctx, &c)
	}
	return total, nil
}

// repoPricer maps an approved row to its point value under the CURRENT
// catalog, memoising one lookup per repository for the duration of a run.
//
// The submission-time suggested_points is only a fallback here: it is the
// captured value for repositories that have no priced catalog entry anymore
// (or never had one). For everything else the catalog wins, so an admin's
// point-value edit reaches every past approval on the next run.
type repoPricer struct {
	catalog repository.RepoCatalog
	cache   map[string]int // URL → current value; 0 = no current policy
}

func newRepoPricer(catalog repository.RepoCatalog) *repoPricer {
	return &repoPricer{catalog: catalog, cache: make(map[string]int)}
}

func (p *repoPricer) price(ctx context.Context, c *model.Contribution) int {
	current, seen := p.cache[c.RepoURL]
	if !seen {
		if repo, err := p.catalog.GetRepoByURL(ctx, c.RepoURL); err == nil && repo.PointValue > 0 {
			current = repo.PointValue
		}
		p.cache[c.RepoURL] = current
	}
	if current == 0 {
		return c.SuggestedPoints
	}
	return current
}

func (s *ReconcileService) registeredURLSet(ctx context.Context) (map[string]bool, error) {
	repos, err := s.catalog.ListApprovedRepos(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(repos))
	for _, r := range repos {
		set[r.URL] = true
	}
	return set, nil
}

// CreateBackup writes every user ledger to a timestamped JSON file under the
// configured backup directory and returns the file path. Triggered by the
// reconcile endpoint's backup flag before the run itself starts.
func (s *ReconcileService) CreateBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	var all []model.User
	opts := repository.ListOptions{Limit: 100}
	for {
		page, err := s.users.ListUsers(ctx, opts)
		if err != nil {
			return "", fmt.Errorf("listing users for backup: %w", err)
		}
		all = append(all, page...)
		if len(page) < opts.Limit {
			break
		}
		opts.Offset += opts.Limit
	}

	path := filepath.Join(s.backupDir,
		fmt.Sprintf("ledgers-%s.json", time.Now().Format("20060102-150405")))

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshalling backup: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing backup file: %w", err)
	}

	s.logger.Info("ledger backup written",
		slog.String("path", path),
		slog.Int("users", len(all)),
	)

	return path, nil
}

// groupByKey buckets contributions by submitter identity key.
func groupByKey(contributions []model.Contribution) map[string][]model.Contribution {
	groups := make(map[string][]model.Contribution)
	for _, c := range contributions {
		key := c.UserKey
		if key == "" {
			key = c.Username
		}
		groups[key] = append(groups[key], c)
	}
	return groups
}

// keyUnion returns the sorted union of keys across both groupings. Sorted so
// runs are deterministic and error lists are stable across re-runs.
func keyUnion(a, b map[string][]model.Contribution) []string {
	set := make(map[string]bool, len(a)+len(b))
	for k := range a {
		set[k] = true
	}
	for k := range b {
		set[k] = true
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// usernameForKey picks the display username recorded on any of the key's
// contributions, for the resolver's login fallback.
func usernameForKey(groups ...[]model.Contribution) string {
	for _, group := range groups {
		for _, c := range group {
			if c.Username != "" {
				return c.Username
			}
		}
	}
	return ""
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
