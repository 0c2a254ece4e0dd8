package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// =============================================================================
// RequireAdmin
// =============================================================================

func protectedHandler(t *testing.T, wantReviewer string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reviewer, ok := ReviewerFromContext(r.Context())
		if !ok {
			t.Error("ReviewerFromContext() reported anonymous behind RequireAdmin")
		}
		if reviewer != wantReviewer {
			t.Errorf("reviewer = %q, want %q", reviewer, wantReviewer)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAdmin_ValidCookiePassesThrough(t *testing.T) {
	tokens, err := NewTokenService("test-secret-key-minimum-16")
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	token, err := tokens.Generate("admin")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	rec := httptest.NewRecorder()

	RequireAdmin(tokens)(protectedHandler(t, "admin")).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequireAdmin_MissingCookieIsRejected(t *testing.T) {
	tokens, _ := NewTokenService("test-secret-key-minimum-16")

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	rec := httptest.NewRecorder()

	RequireAdmin(tokens)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if called {
		t.Error("handler was called despite missing token")
	}
}

func TestRequireAdmin_GarbageTokenIsRejected(t *testing.T) {
	tokens, _ := NewTokenService("test-secret-key-minimum-16")

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "not-a-jwt"})
	rec := httptest.NewRecorder()

	RequireAdmin(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler was called with a garbage token")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAdmin_TokenFromDifferentSecretIsRejected(t *testing.T) {
	issuer, _ := NewTokenService("secret-one-at-least-16ch")
	verifier, _ := NewTokenService("secret-two-at-least-16ch")

	token, err := issuer.Generate("admin")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	rec := httptest.NewRecorder()

	RequireAdmin(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler was called with a foreign-signed token")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestReviewerFromContext_AnonymousContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	if _, ok := ReviewerFromContext(req.Context()); ok {
		t.Error("ReviewerFromContext() reported authenticated on a bare context")
	}
}
