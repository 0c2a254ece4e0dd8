package service

import (
	"context"
	"strconv"

	"github.com/sakif/contribtrack/internal/model"
	"github.com/sakif/contribtrack/internal/repository"
)

// IdentityResolver maps a loosely-typed identity key from the contribution
// queue to the canonical user record that owns the ledger.
//
// WHY AN EXPLICIT STRATEGY LIST?
// Identity keys in the queue are not uniform: the sync job writes numeric
// GitHub IDs, older manual submissions carry internal record IDs, and some
// imported rows only ever had a login. Rather than chaining nil-checked
// lookups inline in the reconciler, the ordering lives here, visible and
// testable:
//
//	1. numeric key         → look up by GitHub ID
//	2. any key             → look up by internal record ID
//	3. recorded username   → look up by login
//	4. the key as a login  → look up by login (last resort)
//
// Resolve returns a typed (user, ok) result. An unresolved key is a normal
// outcome the caller reports, not an error that propagates.
type IdentityResolver struct {
	users repository.UserRepository
}

// NewIdentityResolver creates an IdentityResolver over the given user store.
func NewIdentityResolver(users repository.UserRepository) *IdentityResolver {
	return &IdentityResolver{users: users}
}

// Resolve finds the user owning the given identity key. username is the
// display name recorded alongside the key; the login fallback tries it
// first, then the key itself when the two differ.
func (r *IdentityResolver) Resolve(ctx context.Context, key, username string) (*model.User, bool) {
	for _, lookup := range r.strategies(key, username) {
		if user, err := lookup(ctx); err == nil {
			return user, true
		}
		// NotFound and lookup failures both mean "try the next strategy":
		// a transient read error on one path shouldn't mask a user the next
		// path can still find, and a fully failed resolution is reported by
		// the caller either way.
	}
	return nil, false
}

type lookupFunc func(ctx context.Context) (*model.User, error)

func (r *IdentityResolver) strategies(key, username string) []lookupFunc {
	var out []lookupFunc

	if githubID, err := strconv.ParseInt(key, 10, 64); err == nil {
		out = append(out, func(ctx context.Context) (*model.User, error) {
			return r.users.GetUserByGitHubID(ctx, githubID)
		})
	}

	out = append(out, func(ctx context.Context) (*model.User, error) {
		return r.users.GetUserByID(ctx, key)
	})

	if username != "" {
		out = append(out, func(ctx context.Context) (*model.User, error) {
			return r.users.GetUserByLogin(ctx, username)
		})
	}
	if key != username {
		out = append(out, func(ctx context.Context) (*model.User, error) {
			return r.users.GetUserByLogin(ctx, key)
		})
	}

	return out
}
