package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/contribtrack/internal/service"
)

// AuthHandler manages admin login and logout.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLogin  → verify credentials, issue JWT in an HttpOnly cookie
//   - HandleLogout → clear the JWT cookie
//
// The cookie lifetime matches the token lifetime so the browser drops the
// cookie around the time the token stops validating anyway.
type AuthHandler struct {
	admins *service.AdminAuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(admins *service.AdminAuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{admins: admins, logger: logger}
}

// loginRequest is the JSON body for POST /api/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin verifies admin credentials and issues a JWT session cookie.
//
// HTTP: POST /api/auth/login
// REQUEST BODY: {"username": "admin", "password": "..."}
//
// On success the JWT goes into an HttpOnly cookie:
//   - HttpOnly: JavaScript cannot read it (XSS protection)
//   - SameSite=Lax: not sent on cross-site POSTs (CSRF protection)
//   - Secure should be true in production (HTTPS only); false for local dev
//
// On failure the response is a uniform 403 — it never says whether the
// username or the password was wrong.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	token, err := h.admins.Login(req.Username, req.Password)
	if err != nil {
		h.logger.Warn("failed login attempt", slog.String("username", req.Username))
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		MaxAge:   int((12 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		// Secure: true, // Uncomment in production (requires HTTPS)
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged in"})
}

// HandleLogout clears the JWT cookie, effectively logging the admin out.
//
// HTTP: POST /api/auth/logout
//
// WHY POST AND NOT GET?
// Logout is a state-changing operation. Using GET would be vulnerable to
// CSRF and to browsers pre-fetching the URL. POST ensures intentional action.
//
// Since we're stateless (JWT), "logout" just means deleting the client-side
// cookie. The token remains technically valid until it expires, but without
// the cookie the browser can't send it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // tells the browser to delete the cookie immediately
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}
