package routes

import (
	"net/http"

	"github.com/zatekoja/reviewgate/backend/internal/api/handlers"
	"github.com/zatekoja/reviewgate/backend/internal/api/middleware"
	"github.com/zatekoja/reviewgate/backend/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	sessionHandler *handlers.SessionHandler
	statusHandler  *handlers.StatusHandler
	adminHandler   *handlers.AdminHandler
	streamHandler  *handlers.StreamHandler

	adminSessions  middleware.AdminSessions
	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router. adminHandler may be nil when no admin
// secret is configured; the admin routes are then not mounted.
func NewRouter(
	sessionHandler *handlers.SessionHandler,
	statusHandler *handlers.StatusHandler,
	adminHandler *handlers.AdminHandler,
	streamHandler *handlers.StreamHandler,
	adminSessions middleware.AdminSessions,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:            http.NewServeMux(),
		sessionHandler: sessionHandler,
		statusHandler:  statusHandler,
		adminHandler:   adminHandler,
		streamHandler:  streamHandler,
		adminSessions:  adminSessions,
		allowedOrigins: allowedOrigins,
		metrics:        metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Visitor flow
	r.mux.HandleFunc("POST /api/sessions", r.sessionHandler.StartSession)
	r.mux.HandleFunc("GET /api/sessions/{id}", r.sessionHandler.GetSession)
	r.mux.HandleFunc("POST /api/sessions/{id}/rating", r.sessionHandler.SelectRating)
	r.mux.HandleFunc("POST /api/sessions/{id}/complaint", r.sessionHandler.SubmitComplaint)
	r.mux.HandleFunc("POST /api/sessions/{id}/redirect", r.sessionHandler.TriggerRedirect)
	r.mux.HandleFunc("GET /api/status", r.statusHandler.GetStatus)

	// Admin console
	if r.adminHandler != nil && r.adminSessions != nil {
		admin := middleware.RequireAdmin(r.adminSessions)

		r.mux.HandleFunc("POST /api/admin/login", r.adminHandler.Login)
		r.mux.Handle("POST /api/admin/logout", admin(http.HandlerFunc(r.adminHandler.Logout)))
		r.mux.Handle("GET /api/admin/feedback", admin(http.HandlerFunc(r.adminHandler.ListFeedback)))
		r.mux.Handle("DELETE /api/admin/feedback", admin(http.HandlerFunc(r.adminHandler.DeleteAllFeedback)))
		r.mux.Handle("POST /api/admin/feedback/{id}/delete", admin(http.HandlerFunc(r.adminHandler.DeleteFeedback)))
		r.mux.Handle("POST /api/admin/diagnostics", admin(http.HandlerFunc(r.adminHandler.RunDiagnostics)))
		r.mux.Handle("GET /api/admin/rules", admin(http.HandlerFunc(r.adminHandler.GetRules)))
		r.mux.Handle("PUT /api/admin/permission-error", admin(http.HandlerFunc(r.adminHandler.SetPermissionError)))
		if r.streamHandler != nil {
			r.mux.Handle("GET /api/admin/stream", admin(http.HandlerFunc(r.streamHandler.StreamFeedback)))
		}
	}

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.ResponseOptimization(handler)

	// CORS wraps everything so preflights never reach the mux
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
