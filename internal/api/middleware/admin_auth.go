package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/zatekoja/reviewgate/backend/internal/application/services"
)

// AdminSessions resolves admin bearer tokens.
type AdminSessions interface {
	Get(token string) (*services.AdminConsole, error)
}

type adminConsoleKey struct{}

// RequireAdmin rejects requests without a live admin session and makes the
// session's console available through AdminConsoleFromContext. Browsers'
// EventSource cannot send headers, so the token may also arrive as the
// access_token query parameter.
func RequireAdmin(sessions AdminSessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				unauthorized(w, "admin session required")
				return
			}

			console, err := sessions.Get(token)
			if err != nil {
				unauthorized(w, "admin session expired or unknown")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAdminConsole(r.Context(), console)))
		})
	}
}

// BearerToken extracts the admin token from the request
func BearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// WithAdminConsole stores console in ctx
func WithAdminConsole(ctx context.Context, console *services.AdminConsole) context.Context {
	return context.WithValue(ctx, adminConsoleKey{}, console)
}

// AdminConsoleFromContext returns the console stored by RequireAdmin
func AdminConsoleFromContext(ctx context.Context) (*services.AdminConsole, bool) {
	console, ok := ctx.Value(adminConsoleKey{}).(*services.AdminConsole)
	return console, ok && console != nil
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": "UNAUTHORIZED"})
}
