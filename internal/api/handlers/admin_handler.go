package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/reviewgate/backend/internal/api/middleware"
	"github.com/zatekoja/reviewgate/backend/internal/application/services"
	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
	"github.com/zatekoja/reviewgate/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/reviewgate/backend/pkg/errors"
)

// AdminSessionManager opens and closes admin sessions.
type AdminSessionManager interface {
	Login(ctx context.Context, candidate string) (*services.AdminConsole, error)
	Logout(token string)
}

// AdminHandler serves the admin console. Every route except Login runs
// behind middleware.RequireAdmin.
type AdminHandler struct {
	sessions AdminSessionManager
	rules    RulesText
}

// RulesText is the remediation shown when the store denies access.
type RulesText struct {
	Statement string `json:"statement"`
	Guidance  string `json:"guidance"`
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(sessions AdminSessionManager, rules RulesText) *AdminHandler {
	return &AdminHandler{sessions: sessions, rules: rules}
}

type loginRequest struct {
	Password string `json:"password"`
}

type bulkDeleteRequest struct {
	Confirm bool `json:"confirm"`
}

type permissionErrorRequest struct {
	Visible bool `json:"visible"`
}

// Login handles POST /api/admin/login
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		respondWithAppError(w, err)
		return
	}

	console, err := h.sessions.Login(r.Context(), payload.Password)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"token": console.Token})
}

// Logout handles POST /api/admin/logout
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(middleware.BearerToken(r))
	w.WriteHeader(http.StatusNoContent)
}

// ListFeedback handles GET /api/admin/feedback?q=
func (h *AdminHandler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	console, ok := consoleOrReject(w, r)
	if !ok {
		return
	}
	applyFilter(console, r)
	respondWithJSON(w, http.StatusOK, console.Panel.View())
}

// DeleteFeedback handles POST /api/admin/feedback/{id}/delete. The first
// press arms the item, a second press inside the window deletes it.
func (h *AdminHandler) DeleteFeedback(w http.ResponseWriter, r *http.Request) {
	console, ok := consoleOrReject(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "feedback ID is required")
		return
	}

	outcome, err := console.Confirmation.Activate(r.Context(), id)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	status := http.StatusOK
	if outcome == entities.ConfirmBusy {
		status = http.StatusConflict
	}
	respondWithJSON(w, status, map[string]interface{}{
		"outcome": outcome,
		"view":    console.Panel.View(),
	})
}

// DeleteAllFeedback handles DELETE /api/admin/feedback
func (h *AdminHandler) DeleteAllFeedback(w http.ResponseWriter, r *http.Request) {
	console, ok := consoleOrReject(w, r)
	if !ok {
		return
	}

	var payload bulkDeleteRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		respondWithAppError(w, err)
		return
	}

	deleted, err := console.Confirmation.DeleteAll(r.Context(), payload.Confirm)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	observability.LoggerFromContext(r.Context()).Info().Int("deleted", deleted).Msg("Bulk delete completed")
	respondWithJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// RunDiagnostics handles POST /api/admin/diagnostics
func (h *AdminHandler) RunDiagnostics(w http.ResponseWriter, r *http.Request) {
	console, ok := consoleOrReject(w, r)
	if !ok {
		return
	}

	result, err := console.Probe.Run(r.Context(), r.UserAgent())
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// GetRules handles GET /api/admin/rules
func (h *AdminHandler) GetRules(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.rules)
}

// SetPermissionError handles PUT /api/admin/permission-error. It lets the
// operator dismiss or reopen the access-denied overlay.
func (h *AdminHandler) SetPermissionError(w http.ResponseWriter, r *http.Request) {
	console, ok := consoleOrReject(w, r)
	if !ok {
		return
	}

	var payload permissionErrorRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		respondWithAppError(w, err)
		return
	}

	console.Panel.SetPermissionError(payload.Visible)
	respondWithJSON(w, http.StatusOK, console.Panel.View())
}

func consoleOrReject(w http.ResponseWriter, r *http.Request) (*services.AdminConsole, bool) {
	console, ok := middleware.AdminConsoleFromContext(r.Context())
	if !ok {
		respondWithAppError(w, apperrors.NewUnauthorizedError("admin session required"))
		return nil, false
	}
	return console, true
}

// applyFilter updates the console's filter when the request carries q. An
// absent q keeps the current filter; an empty one clears it.
func applyFilter(console *services.AdminConsole, r *http.Request) {
	if values, ok := r.URL.Query()["q"]; ok {
		term := ""
		if len(values) > 0 {
			term = values[0]
		}
		console.Panel.SetFilter(term)
	}
}
