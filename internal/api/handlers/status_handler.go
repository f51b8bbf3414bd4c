package handlers

import (
	"net/http"

	"github.com/zatekoja/reviewgate/backend/internal/application/services"
)

// StoreStatus reports whether the document store is usable
type StoreStatus interface {
	Configured() bool
}

// NoticeFeed exposes recent operator-facing notices
type NoticeFeed interface {
	Recent() []services.Notice
}

// StatusHandler serves the widget's status banner data.
type StatusHandler struct {
	store   StoreStatus
	notices NoticeFeed
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(store StoreStatus, notices NoticeFeed) *StatusHandler {
	return &StatusHandler{store: store, notices: notices}
}

type statusResponse struct {
	StoreConfigured bool              `json:"store_configured"`
	Notices         []services.Notice `json:"notices"`
}

// GetStatus handles GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	notices := h.notices.Recent()
	if notices == nil {
		notices = []services.Notice{}
	}
	respondWithJSON(w, http.StatusOK, statusResponse{
		StoreConfigured: h.store.Configured(),
		Notices:         notices,
	})
}
