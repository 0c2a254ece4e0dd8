package auth

import (
	"context"
	"net/http"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. If you use a plain string like
// context.WithValue(ctx, "reviewer", name), ANY package that knows the string
// "reviewer" can read or shadow your value. Using a package-private type
// prevents collisions: only THIS package can create a key of type contextKey,
// so only this package can read or write reviewer values in the context.
type contextKey string

const reviewerKey contextKey = "reviewer"

// RequireAdmin is a middleware that enforces authentication on the admin
// routes (review, reconcile, sync, validate).
//
// It reads the JWT from the "token" HttpOnly cookie, validates it, and
// stores the reviewer identity in the request context. If the token is
// missing or invalid, it returns 401 Unauthorized and stops the request
// chain.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware is a function that takes an http.Handler and returns a new
// http.Handler. The new handler "wraps" the original:
//
//	func Middleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // ... do stuff before the handler ...
//	        next.ServeHTTP(w, r)
//	        // ... do stuff after the handler ...
//	    })
//	}
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
//
// COOKIE-BASED TOKEN STORAGE:
// We store the JWT in an HttpOnly cookie rather than localStorage or a
// header. HttpOnly means JavaScript cannot read it, which prevents
// XSS (Cross-Site Scripting) attacks from stealing the token.
func RequireAdmin(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reviewer, err := extractReviewer(r, tokens)
			if err != nil {
				http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}

			// Store the reviewer in context so handlers can read it
			ctx := context.WithValue(r.Context(), reviewerKey, reviewer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ReviewerFromContext retrieves the authenticated reviewer's name from the
// request context.
//
// Returns ("", false) if the request is anonymous (no valid token was
// present). Returns (name, true) if the reviewer is authenticated.
//
// Usage in handlers:
//
//	reviewer, ok := auth.ReviewerFromContext(r.Context())
//	if !ok {
//	    // unauthenticated — should not happen behind RequireAdmin
//	}
func ReviewerFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(reviewerKey).(string)
	return name, ok && name != ""
}

// extractReviewer reads the JWT cookie and validates it.
//
// COOKIE FLOW:
// 1. Set-Cookie: token=<jwt>; HttpOnly; Secure; SameSite=Lax (set on login)
// 2. Browser automatically sends Cookie: token=<jwt> on subsequent requests
// 3. We read r.Cookie("token") and validate it
func extractReviewer(r *http.Request, tokens *TokenService) (string, error) {
	cookie, err := r.Cookie("token")
	if err != nil {
		// http.ErrNoCookie means the cookie isn't present — not an error, just anonymous
		return "", err
	}

	return tokens.Validate(cookie.Value)
}
