package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/contribtrack/internal/repository"
)

// UserHandler serves user ledgers and the leaderboard.
type UserHandler struct {
	users  repository.UserRepository
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users repository.UserRepository, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// HandleGet returns one user's profile and ledger.
//
// HTTP: GET /api/users/{id}
//
// The path parameter accepts an internal ID first, then falls back to a
// GitHub login — profile pages link by login, internal tools link by ID,
// and both should land on the same ledger.
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "user ID is required",
		})
		return
	}

	user, err := h.users.GetUserByID(r.Context(), id)
	if err != nil {
		user, err = h.users.GetUserByLogin(r.Context(), id)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleLeaderboard returns users ranked by points.
//
// HTTP: GET /api/leaderboard?limit=25
//
// Limit defaults to 25 and is clamped to [1,100].
func (h *UserHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 25)
	if limit < 1 || limit > 100 {
		limit = 25
	}

	users, err := h.users.TopByPoints(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to load leaderboard", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}
