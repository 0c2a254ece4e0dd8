// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered program participant plus their contribution
// ledger.
//
// We use GitHub as the identity provider, so the primary external identifier
// is the GitHub user ID (an integer). We still generate our own internal
// string ID (xid) so our primary keys aren't tied to a third party's
// numbering scheme.
//
// WHY GitHubID int64?
// GitHub user IDs are integers (e.g. 1234567). int64 avoids overflow for
// large account numbers. The UNIQUE constraint on github_id in the DB ensures
// one GitHub account maps to exactly one participant.
//
// LEDGER FIELDS (Points, Badges, Merged, Cancelled):
// These are derived state — they are written ONLY by the reconciliation
// engine, which re-derives points from the full current set of approved
// contributions on every run. No other code path mutates them, which is what
// makes reconciliation idempotent and safely re-runnable.
type User struct {
	ID        string `json:"id"        db:"id"`
	GitHubID  int64  `json:"githubId"  db:"github_id"` // GitHub's numeric user ID
	Login     string `json:"login"     db:"login"`     // GitHub username, e.g. "sakif"
	Email     string `json:"email"     db:"email"`     // Primary public email (may be empty)
	AvatarURL string `json:"avatarUrl" db:"avatar_url"`

	Points    int              `json:"points"    db:"points"`
	Badges    []string         `json:"badges"    db:"badges"`
	Merged    []MergedEntry    `json:"merged"    db:"merged_prs"`
	Cancelled []CancelledEntry `json:"cancelled" db:"cancelled_prs"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// HasMerged reports whether the ledger already records the given PR.
// The match key is (repoURL, prNumber) — titles and timestamps may drift
// between submissions, the repository+number pair is the stable identity.
func (u *User) HasMerged(repoURL string, prNumber int) bool {
	for _, e := range u.Merged {
		if e.RepoURL == repoURL && e.PRNumber == prNumber {
			return true
		}
	}
	return false
}

// HasCancelled reports whether the ledger already records the given PR as
// rejected.
func (u *User) HasCancelled(repoURL string, prNumber int) bool {
	for _, e := range u.Cancelled {
		if e.RepoURL == repoURL && e.PRNumber == prNumber {
			return true
		}
	}
	return false
}
