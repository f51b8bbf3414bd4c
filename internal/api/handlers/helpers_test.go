package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zatekoja/reviewgate/backend/internal/adapters/cache"
	"github.com/zatekoja/reviewgate/backend/internal/adapters/sessions"
	"github.com/zatekoja/reviewgate/backend/internal/adapters/store"
	"github.com/zatekoja/reviewgate/backend/internal/api/handlers"
	"github.com/zatekoja/reviewgate/backend/internal/api/middleware"
	"github.com/zatekoja/reviewgate/backend/internal/application/services"
	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
	"github.com/zatekoja/reviewgate/backend/internal/domain/repositories"
)

const (
	testReviewURL   = "https://g.page/r/reviewgate/review"
	testAdminSecret = "s3cret"
)

// fixture wires the real services over the in-memory store and cache.
type fixture struct {
	store       *store.MemoryStore
	cache       *cache.MemoryAdapter
	notices     *services.NoticeBoard
	gateway     *services.PersistenceGateway
	submission  *services.SubmissionService
	sessionRepo repositories.SessionRepository
	manager     *services.AdminSessionManager

	sessions *handlers.SessionHandler
	admin    *handlers.AdminHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	memCache, err := cache.NewMemoryAdapter(1<<20, handlers.ComplaintFingerprintPrefix)
	require.NoError(t, err)
	t.Cleanup(memCache.Close)

	st := store.NewMemoryStore()
	notices := services.NewNoticeBoard(0)
	gateway := services.NewPersistenceGateway(st, true, notices, nil)
	sessionRepo := sessions.NewCacheSessionStore(memCache, time.Hour)
	submission := services.NewSubmissionService(sessionRepo, gateway, testReviewURL)
	manager := services.NewAdminSessionManager(services.NewAdminGate(testAdminSecret), gateway, nil, time.Minute, time.Hour)
	t.Cleanup(manager.Close)
	t.Cleanup(submission.Wait)

	rules := handlers.RulesText{
		Statement: store.GrantStatement("reviewgate"),
		Guidance:  services.GuidancePermissionDenied,
	}

	return &fixture{
		store:       st,
		cache:       memCache,
		notices:     notices,
		gateway:     gateway,
		submission:  submission,
		sessionRepo: sessionRepo,
		manager:     manager,
		sessions:    handlers.NewSessionHandler(submission, memCache),
		admin:       handlers.NewAdminHandler(manager, rules),
	}
}

// login opens an admin session and waits for its mirror to finish loading.
func (f *fixture) login(t *testing.T) *services.AdminConsole {
	t.Helper()
	console, err := f.manager.Login(context.Background(), testAdminSecret)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !console.Panel.View().Loading }, 2*time.Second, 5*time.Millisecond)
	return console
}

func (f *fixture) seed(t *testing.T, name string, at time.Time) string {
	t.Helper()
	record := entities.NewNegativeRecord(2, entities.Complaint{Name: name, Phone: "0700000000", Message: "cold food"}, at)
	id, err := f.gateway.Append(context.Background(), record)
	require.NoError(t, err)
	return id
}

func jsonRequest(t *testing.T, method, target string, payload interface{}) *http.Request {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.1:1234"
	return req
}

// asAdmin runs the request through RequireAdmin the way the router does.
func (f *fixture) asAdmin(console *services.AdminConsole, handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set("Authorization", "Bearer "+console.Token)
	w := httptest.NewRecorder()
	middleware.RequireAdmin(f.manager)(handler).ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}
