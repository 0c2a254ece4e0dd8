// Package model defines the data structures used throughout the application.
package model

import "time"

// ReviewStatus is the lifecycle state of a claimed contribution.
//
// A contribution starts as StatusPending and is moved exactly once to
// StatusApproved or StatusRejected by a staff reviewer. Both resolved states
// are terminal — there is no transition back to pending.
type ReviewStatus string

const (
	StatusPending  ReviewStatus = "pending"
	StatusApproved ReviewStatus = "approved"
	StatusRejected ReviewStatus = "rejected"
)

// Valid reports whether s is one of the three known statuses.
// Used when parsing status filters from query strings.
func (s ReviewStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Contribution is a claimed merged pull request awaiting or having received
// review. One row per (contributor, repository, PR number) — that triple is
// enforced UNIQUE at the database level, because two submitters can race.
//
// WHY BOTH UserKey AND Username?
// Records arrive from two sources: the GitHub sync job (which knows the
// numeric GitHub ID) and manual admin submissions (which sometimes only know
// the login). UserKey holds whatever identity the submitter had — a numeric
// GitHub ID rendered as a string, an internal xid, or occasionally just the
// login again. The reconciler resolves it with an ordered strategy list
// (see service.IdentityResolver) rather than trusting its shape.
//
// WHY SuggestedPoints IS CAPTURED AT SUBMISSION TIME?
// The matching registered repository's point value is copied here when the
// record is created, so the review UI can show what the claim is worth.
// It is NOT the final word: reconciliation re-prices every approved row
// against the catalog as it stands at run time (this captured value is only
// the fallback for repositories without a current price), so later edits to
// a repository's point policy reach totals retroactively.
type Contribution struct {
	ID              string       `json:"id"              db:"id"`
	UserKey         string       `json:"userKey"         db:"user_key"`
	Username        string       `json:"username"        db:"username"`
	RepoURL         string       `json:"repoUrl"         db:"repo_url"`
	PRNumber        int          `json:"prNumber"        db:"pr_number"`
	Title           string       `json:"title"           db:"title"`
	MergedAt        time.Time    `json:"mergedAt"        db:"merged_at"`
	SuggestedPoints int          `json:"suggestedPoints" db:"suggested_points"`
	Status          ReviewStatus `json:"status"          db:"status"`
	ReviewedBy      string       `json:"reviewedBy"      db:"reviewed_by"`
	ReviewedAt      *time.Time   `json:"reviewedAt"      db:"reviewed_at"` // nil until reviewed
	RejectionReason string       `json:"rejectionReason" db:"rejection_reason"`
	SubmittedAt     time.Time    `json:"submittedAt"     db:"submitted_at"`
}

// MergedEntry is one approved contribution recorded on a user's ledger.
// Matched against new approvals by (RepoURL, PRNumber) so a re-run of the
// reconciler never appends the same PR twice.
type MergedEntry struct {
	RepoURL  string    `json:"repoUrl"`
	PRNumber int       `json:"prNumber"`
	Title    string    `json:"title"`
	MergedAt time.Time `json:"mergedAt"`
}

// CancelledEntry is one rejected contribution recorded on a user's ledger,
// kept so the user can see why a claim didn't count.
type CancelledEntry struct {
	RepoURL    string    `json:"repoUrl"`
	PRNumber   int       `json:"prNumber"`
	Title      string    `json:"title"`
	Reason     string    `json:"reason"`
	ResolvedAt time.Time `json:"resolvedAt"`
}
