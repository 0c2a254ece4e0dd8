package model

import "time"

// DefaultPointValue is awarded for a merged PR against a registered
// repository that has no explicit point value of its own, and for
// contributions to repositories that were never registered at all.
//
// Resolved ONCE at submission time (see service.SubmissionGateway) — read
// sites never re-apply the default.
const DefaultPointValue = 50

// RegisteredRepo is a repository approved to earn points, with its own point
// policy. Owned by the administrative catalog; the core pipeline only reads
// these rows.
type RegisteredRepo struct {
	ID         string    `json:"id"         db:"id"`
	URL        string    `json:"url"        db:"url"` // canonical https URL, no trailing slash
	PointValue int       `json:"pointValue" db:"point_value"`
	Approved   bool      `json:"approved"   db:"approved"`
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt"  db:"updated_at"`
}
