package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/contribtrack/internal/apperror"
	"github.com/sakif/contribtrack/internal/model"
	"github.com/sakif/contribtrack/internal/repository"
)

// Compile-time check that *DB implements repository.ContributionRepository.
// If a method goes missing the compiler complains here, not at some distant
// call site.
var _ repository.ContributionRepository = (*DB)(nil)

// contributionColumns is the SELECT list shared by every read in this file.
// Keeping it in one place means scan order can't drift between queries.
const contributionColumns = `id, user_key, username, repo_url, pr_number, title,
	merged_at, suggested_points, status, reviewed_by, reviewed_at,
	rejection_reason, submitted_at`

// Create inserts a new contribution claim.
//
// The claim-uniqueness invariant is enforced by the two compound UNIQUE
// indexes created in migrate(). When either index rejects the insert we
// translate the driver error into apperror.ErrDuplicate so the submission
// gateway can treat the race as an idempotent no-op instead of a failure.
func (db *DB) Create(ctx context.Context, c *model.Contribution) error {
	c.ID = xid.New().String()
	if c.SubmittedAt.IsZero() {
		c.SubmittedAt = time.Now()
	}
	if c.Status == "" {
		c.Status = model.StatusPending
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO contributions
			(id, user_key, username, repo_url, pr_number, title, merged_at,
			 suggested_points, status, reviewed_by, rejection_reason, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.UserKey,
		c.Username,
		c.RepoURL,
		c.PRNumber,
		c.Title,
		c.MergedAt,
		c.SuggestedPoints,
		string(c.Status),
		c.ReviewedBy,
		c.RejectionReason,
		c.SubmittedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Duplicate("contribution",
				fmt.Sprintf("%s#%d", c.RepoURL, c.PRNumber))
		}
		return fmt.Errorf("sqlite: creating contribution: %w", err)
	}

	return nil
}

// GetByID retrieves a single contribution by its ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Contribution, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+contributionColumns+` FROM contributions WHERE id = ?`, id)

	c, err := scanContribution(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("contribution", id)
		}
		return nil, fmt.Errorf("sqlite: getting contribution %s: %w", id, err)
	}
	return c, nil
}

// FindClaim looks up an existing claim for the given PR under either identity
// convention: by external user key or by display username. Sync jobs and
// manual submissions don't always carry the same key for the same person, so
// a single-key lookup would miss half the duplicates.
func (db *DB) FindClaim(ctx context.Context, userKey, username, repoURL string, prNumber int) (*model.Contribution, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+contributionColumns+`
		 FROM contributions
		 WHERE (user_key = ? OR username = ?) AND repo_url = ? AND pr_number = ?`,
		userKey, username, repoURL, prNumber)

	c, err := scanContribution(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("contribution",
				fmt.Sprintf("%s#%d", repoURL, prNumber))
		}
		return nil, fmt.Errorf("sqlite: finding claim %s#%d: %w", repoURL, prNumber, err)
	}
	return c, nil
}

// ListByStatus returns a page of contributions with the given status, newest
// submissions first.
func (db *DB) ListByStatus(ctx context.Context, status model.ReviewStatus, opts repository.ListOptions) ([]model.Contribution, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+contributionColumns+`
		 FROM contributions
		 WHERE status = ?
		 ORDER BY submitted_at DESC
		 LIMIT ? OFFSET ?`,
		string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing contributions: %w", err)
	}
	defer rows.Close()

	return collectContributions(rows)
}

// AllByStatus loads the complete set of contributions in one status — the
// reconciler's bulk read. Unpaged on purpose: the engine needs the whole set
// to group by identity key, and two bulk queries beat one query per user.
func (db *DB) AllByStatus(ctx context.Context, status model.ReviewStatus) ([]model.Contribution, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+contributionColumns+`
		 FROM contributions
		 WHERE status = ?
		 ORDER BY submitted_at`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading %s contributions: %w", status, err)
	}
	defer rows.Close()

	return collectContributions(rows)
}

// ApprovedForOwner returns every currently-approved contribution belonging to
// one user, matched by any of their known identity keys or by username.
//
// This query backs points re-derivation: the reconciler re-prices each
// returned row against the current repository catalog, falling back to the
// stored suggested_points only when the repository carries no price anymore.
func (db *DB) ApprovedForOwner(ctx context.Context, keys []string, username string) ([]model.Contribution, error) {
	// Build "user_key IN (?, ?, ...)" for however many keys we were given.
	placeholders := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+2)
	for _, k := range keys {
		placeholders = append(placeholders, "?")
		args = append(args, k)
	}
	args = append(args, username, string(model.StatusApproved))

	keyClause := "0" // no keys → match on username only
	if len(placeholders) > 0 {
		keyClause = "user_key IN (" + strings.Join(placeholders, ", ") + ")"
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+contributionColumns+`
		 FROM contributions
		 WHERE (`+keyClause+` OR username = ?) AND status = ?`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading approved contributions for %s: %w", username, err)
	}
	defer rows.Close()

	return collectContributions(rows)
}

// UpdateReview records a review decision. Only the review fields change —
// the claim itself (user, repo, PR number, points) is immutable once created.
func (db *DB) UpdateReview(ctx context.Context, c *model.Contribution) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE contributions
		 SET status = ?, reviewed_by = ?, reviewed_at = ?, rejection_reason = ?
		 WHERE id = ?`,
		string(c.Status),
		c.ReviewedBy,
		c.ReviewedAt,
		c.RejectionReason,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating review on contribution %s: %w", c.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("contribution", c.ID)
	}

	return nil
}

// CountByStatus counts contributions in one status. Used by the integrity
// validator.
func (db *DB) CountByStatus(ctx context.Context, status model.ReviewStatus) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contributions WHERE status = ?`,
		string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting %s contributions: %w", status, err)
	}
	return n, nil
}

// DistinctUserKeys returns every distinct user_key present in the queue.
// The validator uses this to audit how consistently identity keys were
// recorded (numeric GitHub IDs vs arbitrary strings).
func (db *DB) DistinctUserKeys(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT user_key FROM contributions`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing distinct user keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user keys: %w", err)
	}

	return keys, nil
}

// PurgeRejected deletes all rejected contributions and reports how many rows
// went. The only delete path in this table.
func (db *DB) PurgeRejected(ctx context.Context) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM contributions WHERE status = ?`,
		string(model.StatusRejected))
	if err != nil {
		return 0, fmt.Errorf("sqlite: purging rejected contributions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

// scanner covers both *sql.Row and *sql.Rows so the two scan helpers below
// can share one column list.
type scanner interface {
	Scan(dest ...any) error
}

func scanContribution(s scanner) (*model.Contribution, error) {
	var (
		c          model.Contribution
		status     string
		reviewedAt sql.NullTime
	)
	err := s.Scan(
		&c.ID,
		&c.UserKey,
		&c.Username,
		&c.RepoURL,
		&c.PRNumber,
		&c.Title,
		&c.MergedAt,
		&c.SuggestedPoints,
		&status,
		&c.ReviewedBy,
		&reviewedAt,
		&c.RejectionReason,
		&c.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = model.ReviewStatus(status)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		c.ReviewedAt = &t
	}
	return &c, nil
}

func collectContributions(rows *sql.Rows) ([]model.Contribution, error) {
	var out []model.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning contribution row: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating contributions: %w", err)
	}
	return out, nil
}
