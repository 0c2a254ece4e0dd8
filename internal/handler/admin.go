package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/contribtrack/internal/auth"
	"github.com/sakif/contribtrack/internal/model"
	"github.com/sakif/contribtrack/internal/repository"
	"github.com/sakif/contribtrack/internal/service"
)

// AdminHandler groups the JWT-protected staff operations.
//
// HANDLER RESPONSIBILITIES:
//   - HandleApprove / HandleReject → review decisions on pending contributions
//   - HandleReconcile              → trigger a ledger reconciliation run
//   - HandleSync                   → trigger the GitHub batch sync job
//   - HandleValidate               → read-only integrity report
//   - HandlePurgeRejected          → delete all rejected records
//   - HandleSaveRepo               → register a repository / edit its points
//   - HandleRegisterUser           → enroll a participant / refresh their profile
//
// Every route here sits behind auth.RequireAdmin, so the reviewer identity is
// always available from the request context.
type AdminHandler struct {
	reviews    *service.ReviewService
	reconciler *service.ReconcileService
	syncer     *service.SyncService
	validator  *service.IntegrityValidator
	catalog    repository.RepoCatalog
	users      repository.UserRepository
	logger     *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	reviews *service.ReviewService,
	reconciler *service.ReconcileService,
	syncer *service.SyncService,
	validator *service.IntegrityValidator,
	catalog repository.RepoCatalog,
	users repository.UserRepository,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		reviews:    reviews,
		reconciler: reconciler,
		syncer:     syncer,
		validator:  validator,
		catalog:    catalog,
		users:      users,
		logger:     logger,
	}
}

// HandleApprove approves a pending contribution.
//
// HTTP: POST /api/admin/contributions/{id}/approve
//
// The reviewer identity comes from the JWT subject, not the request body —
// decisions are attributed to whoever is actually logged in.
func (h *AdminHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	reviewer, _ := auth.ReviewerFromContext(r.Context())

	contribution, err := h.reviews.Approve(r.Context(), r.PathValue("id"), reviewer)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, contribution)
}

// rejectRequest is the JSON body for a rejection. The reason is mandatory —
// it ends up on the contributor's ledger where they can read it.
type rejectRequest struct {
	Reason string `json:"reason"`
}

// HandleReject rejects a pending contribution with a reason.
//
// HTTP: POST /api/admin/contributions/{id}/reject
// REQUEST BODY: {"reason": "PR was reverted"}
func (h *AdminHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	reviewer, _ := auth.ReviewerFromContext(r.Context())

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	contribution, err := h.reviews.Reject(r.Context(), r.PathValue("id"), reviewer, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, contribution)
}

// reconcileRequest is the JSON body for POST /api/admin/reconcile.
// The body is optional; an empty body means no backup.
type reconcileRequest struct {
	CreateBackup bool `json:"createBackup"`
}

// reconcileResponse is the full run report: what happened, how long it took,
// and an integrity snapshot taken right after the run.
type reconcileResponse struct {
	Success    bool                      `json:"success"`
	Results    *service.ReconcileResult  `json:"results"`
	Validation *service.ValidationReport `json:"validation,omitempty"`
	BackupFile string                    `json:"backupFile,omitempty"`
	Duration   string                    `json:"duration"`
}

// HandleReconcile triggers a reconciliation run.
//
// HTTP: POST /api/admin/reconcile
// REQUEST BODY (optional): {"createBackup": true}
//
// A concurrent run returns 409 — the reconciler holds a run lock, and a
// second trigger while one is in flight is a conflict, not a queue.
func (h *AdminHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	reviewer, _ := auth.ReviewerFromContext(r.Context())
	h.logger.Info("reconciliation triggered",
		slog.String("reviewer", reviewer),
		slog.Bool("createBackup", req.CreateBackup),
	)

	var backupFile string
	if req.CreateBackup {
		path, err := h.reconciler.CreateBackup(r.Context())
		if err != nil {
			// A failed backup aborts the run — the whole point of asking for
			// one is having it before anything changes.
			writeError(w, err)
			return
		}
		backupFile = path
	}

	start := time.Now()
	result, err := h.reconciler.Reconcile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	duration := time.Since(start)

	// Post-run integrity snapshot. Failure here doesn't fail the run —
	// the reconciliation already committed.
	report, err := h.validator.Validate(r.Context())
	if err != nil {
		h.logger.Warn("post-reconcile validation failed", slog.String("error", err.Error()))
		report = nil
	}

	writeJSON(w, http.StatusOK, reconcileResponse{
		Success:    len(result.Errors) == 0,
		Results:    result,
		Validation: report,
		BackupFile: backupFile,
		Duration:   duration.Round(time.Millisecond).String(),
	})
}

// HandleSync triggers the GitHub batch sync job.
//
// HTTP: POST /api/admin/sync
//
// This walks every known user, fetches their merged PRs, and feeds each one
// through the submission gateway. It can take a while with many users (the
// job pauses between batches to be polite to the API), so the request should
// be made with a generous client timeout.
func (h *AdminHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	reviewer, _ := auth.ReviewerFromContext(r.Context())
	h.logger.Info("sync triggered", slog.String("reviewer", reviewer))

	result, err := h.syncer.SyncAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleValidate returns the read-only integrity report.
//
// HTTP: GET /api/admin/validate
func (h *AdminHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	report, err := h.validator.Validate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// HandlePurgeRejected deletes all rejected contribution records.
//
// HTTP: DELETE /api/admin/contributions/rejected
func (h *AdminHandler) HandlePurgeRejected(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.reviews.PurgeRejected(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// saveRepoRequest is the JSON body for registering or editing a repository.
type saveRepoRequest struct {
	URL        string `json:"url"`
	PointValue int    `json:"pointValue"`
	Approved   bool   `json:"approved"`
}

// HandleSaveRepo registers a repository in the catalog or edits its point
// value. Edits take effect on the NEXT reconciliation run — points are always
// re-derived from the current catalog, never frozen into ledgers.
//
// HTTP: POST /api/admin/repos
// REQUEST BODY: {"url":"https://github.com/org/repo","pointValue":80,"approved":true}
func (h *AdminHandler) HandleSaveRepo(w http.ResponseWriter, r *http.Request) {
	var req saveRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	req.URL = strings.TrimSuffix(strings.TrimSpace(req.URL), "/")
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "repository URL is required",
		})
		return
	}

	repo := &model.RegisteredRepo{
		URL:        req.URL,
		PointValue: req.PointValue,
		Approved:   req.Approved,
	}
	if err := h.catalog.SaveRepo(r.Context(), repo); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, repo)
}

// registerUserRequest is the JSON body for enrolling a participant.
type registerUserRequest struct {
	GitHubID  int64  `json:"githubId"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl"`
}

// HandleRegisterUser enrolls a participant or refreshes their profile.
//
// HTTP: POST /api/admin/users
// REQUEST BODY: {"githubId":583231,"login":"octocat","email":"","avatarUrl":""}
//
// This is how participants enter the system: once enrolled, the batch sync job
// pulls their merged PRs and their submissions pass identity resolution.
// Re-posting an existing githubId refreshes the profile fields and keeps the
// internal ID and ledger intact.
func (h *AdminHandler) HandleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	req.Login = strings.TrimSpace(req.Login)
	if req.GitHubID <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "githubId must be a positive GitHub user ID",
		})
		return
	}
	if req.Login == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "login is required",
		})
		return
	}

	user := &model.User{
		GitHubID:  req.GitHubID,
		Login:     req.Login,
		Email:     req.Email,
		AvatarURL: req.AvatarURL,
	}
	if err := h.users.Upsert(r.Context(), user); err != nil {
		writeError(w, err)
		return
	}

	// Upsert only writes profile fields; read the row back so the response
	// carries the participant's ledger too.
	user, err := h.users.GetUserByID(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	reviewer, _ := auth.ReviewerFromContext(r.Context())
	h.logger.Info("participant registered",
		slog.String("reviewer", reviewer),
		slog.String("login", user.Login),
		slog.Int64("githubId", user.GitHubID),
	)

	writeJSON(w, http.StatusOK, user)
}
