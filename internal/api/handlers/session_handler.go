package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/reviewgate/backend/internal/application/services"
	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
	"github.com/zatekoja/reviewgate/backend/internal/domain/providers"
)

// ComplaintFingerprintPrefix marks the duplicate-suppression keys. Losing one
// only lets a repeat complaint through, so caches may evict them freely.
const ComplaintFingerprintPrefix = "complaint:dup:"

// SuppressedHeader names the reason a complaint was accepted without being stored.
const SuppressedHeader = "X-Feedback-Suppressed"

const (
	complaintRateLimit   = 5
	complaintRateWindow  = time.Hour
	complaintDedupWindow = 24 * time.Hour
)

// SubmissionService defines the visitor flow operations used by the handler.
type SubmissionService interface {
	Start(ctx context.Context) (entities.Session, error)
	Get(ctx context.Context, id string) (*entities.Session, error)
	SelectRating(ctx context.Context, id string, rating int) (entities.Session, error)
	SubmitComplaint(ctx context.Context, id string, complaint entities.Complaint, admit services.WriteAdmission) (entities.Session, error)
	TriggerRedirect(ctx context.Context, id string) (entities.Session, string, error)
}

// SessionHandler serves the visitor side of the widget.
type SessionHandler struct {
	service SubmissionService
	cache   providers.CacheProvider
}

// NewSessionHandler creates a new session handler. cache backs the complaint
// rate limit and duplicate suppression.
func NewSessionHandler(service SubmissionService, cache providers.CacheProvider) *SessionHandler {
	return &SessionHandler{service: service, cache: cache}
}

type ratingRequest struct {
	Rating int `json:"rating"`
}

type complaintRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// StartSession handles POST /api/sessions
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Start(r.Context())
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, session)
}

// GetSession handles GET /api/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, session)
}

// SelectRating handles POST /api/sessions/{id}/rating
func (h *SessionHandler) SelectRating(w http.ResponseWriter, r *http.Request) {
	var payload ratingRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		respondWithAppError(w, err)
		return
	}

	session, err := h.service.SelectRating(r.Context(), r.PathValue("id"), payload.Rating)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, session)
}

// SubmitComplaint handles POST /api/sessions/{id}/complaint. The rate limit
// and duplicate suppression only decide whether the record is written; the
// visitor always moves on to SUCCESS.
func (h *SessionHandler) SubmitComplaint(w http.ResponseWriter, r *http.Request) {
	var payload complaintRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		respondWithAppError(w, err)
		return
	}

	complaint := entities.Complaint{Name: payload.Name, Phone: payload.Phone, Message: payload.Message}.Normalize()
	if err := complaint.Validate(); err != nil {
		respondWithAppError(w, err)
		return
	}

	ip := clientIP(r)
	var suppressed string
	admit := func(ctx context.Context, _ entities.FeedbackRecord) bool {
		if !h.allowRequest(ctx, "complaint:rate:"+ip) {
			suppressed = "rate_limited"
			return false
		}
		dupKey := ComplaintFingerprintPrefix + complaintFingerprint(complaint, ip)
		if h.isDuplicate(ctx, dupKey) {
			suppressed = "duplicate"
			return false
		}
		h.remember(ctx, dupKey)
		return true
	}

	session, err := h.service.SubmitComplaint(r.Context(), r.PathValue("id"), complaint, admit)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	if suppressed != "" {
		w.Header().Set(SuppressedHeader, suppressed)
	}
	respondWithJSON(w, http.StatusOK, session)
}

// TriggerRedirect handles POST /api/sessions/{id}/redirect
func (h *SessionHandler) TriggerRedirect(w http.ResponseWriter, r *http.Request) {
	session, url, err := h.service.TriggerRedirect(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"session":      session,
		"redirect_url": url,
	})
}

func (h *SessionHandler) allowRequest(ctx context.Context, key string) bool {
	count, err := h.cache.Incr(ctx, key, int(complaintRateWindow.Seconds()))
	if err != nil {
		log.Warn().Err(err).Msg("Complaint rate limiter unavailable")
		return true
	}
	return count <= complaintRateLimit
}

func (h *SessionHandler) isDuplicate(ctx context.Context, key string) bool {
	exists, err := h.cache.Exists(ctx, key)
	return err == nil && exists
}

func (h *SessionHandler) remember(ctx context.Context, key string) {
	if err := h.cache.Set(ctx, key, []byte("1"), int(complaintDedupWindow.Seconds())); err != nil {
		log.Warn().Err(err).Msg("Failed to remember complaint fingerprint")
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func complaintFingerprint(c entities.Complaint, ip string) string {
	normalized := []string{
		normalizeText(c.Name),
		strings.Join(strings.Fields(c.Phone), ""),
		normalizeText(c.Message),
		ip,
	}

	hash := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(hash[:])
}

func normalizeText(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return ""
	}
	return strings.Join(strings.Fields(trimmed), " ")
}
