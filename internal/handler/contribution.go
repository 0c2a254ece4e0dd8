package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/contribtrack/internal/apperror"
	"github.com/sakif/contribtrack/internal/model"
	"github.com/sakif/contribtrack/internal/repository"
	"github.com/sakif/contribtrack/internal/service"
)

// ContributionHandler exposes the public submission and queue endpoints.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSubmit → accept a merged-PR claim, create a pending contribution
//   - HandleList   → page through the review queue by status
//
// The handler owns nothing but translation: JSON in, service call, JSON out.
// All dedup and validation rules live in service.SubmissionGateway.
type ContributionHandler struct {
	gateway       *service.SubmissionGateway
	contributions repository.ContributionRepository
	logger        *slog.Logger
}

// NewContributionHandler creates a ContributionHandler.
func NewContributionHandler(
	gateway *service.SubmissionGateway,
	contributions repository.ContributionRepository,
	logger *slog.Logger,
) *ContributionHandler {
	return &ContributionHandler{
		gateway:       gateway,
		contributions: contributions,
		logger:        logger,
	}
}

// submitRequest is the JSON body for POST /api/contributions.
type submitRequest struct {
	UserKey  string    `json:"userKey"`
	Username string    `json:"username"`
	RepoURL  string    `json:"repositoryUrl"`
	PRNumber int       `json:"prNumber"`
	Title    string    `json:"title"`
	MergedAt time.Time `json:"mergedAt"`
}

// duplicateResponse is the 409 body: the standard error envelope plus the
// record that already holds this claim, so the caller can show it.
type duplicateResponse struct {
	Error    string              `json:"error"`
	Message  string              `json:"message"`
	Existing *model.Contribution `json:"existing"`
}

// HandleSubmit records a merged-PR claim as a pending contribution.
//
// HTTP: POST /api/contributions
// REQUEST BODY:
//
//	{"userKey":"12345","username":"octocat","repositoryUrl":"https://github.com/org/repo",
//	 "prNumber":42,"title":"Fix the thing","mergedAt":"2026-08-01T12:00:00Z"}
//
// RESPONSES:
//   - 201 with the created record
//   - 409 with the EXISTING record when the claim is already in the queue —
//     submitting twice is routine (the sync job re-fetches), so the response
//     tells the caller which row already counts instead of just saying no
//   - 400 on validation failure
func (h *ContributionHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid submission JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	contribution, err := h.gateway.Submit(r.Context(), service.Submission{
		UserKey:  req.UserKey,
		Username: req.Username,
		RepoURL:  req.RepoURL,
		PRNumber: req.PRNumber,
		Title:    req.Title,
		MergedAt: req.MergedAt,
	})
	if err != nil {
		// Duplicate is the one error that comes with a payload: the gateway
		// hands back the row that already claimed this PR.
		if errors.Is(err, apperror.ErrDuplicate) && contribution != nil {
			var appErr *apperror.AppError
			message := "contribution already submitted"
			if errors.As(err, &appErr) {
				message = appErr.Message
			}
			writeJSON(w, http.StatusConflict, duplicateResponse{
				Error:    "duplicate",
				Message:  message,
				Existing: contribution,
			})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, contribution)
}

// HandleList returns a page of the contribution queue.
//
// HTTP: GET /api/contributions?status=pending&limit=50&offset=0
//
// The status defaults to pending — the review queue is what callers almost
// always want. Limit is clamped to [1,100].
func (h *ContributionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	status := model.ReviewStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.StatusPending
	}
	if !status.Valid() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "status must be pending, approved or rejected",
		})
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 100 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	contributions, err := h.contributions.ListByStatus(r.Context(), status, repository.ListOptions{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.logger.Error("failed to list contributions",
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, contributions)
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
