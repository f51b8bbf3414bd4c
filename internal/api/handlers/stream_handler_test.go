package handlers_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/reviewgate/backend/internal/api/handlers"
	"github.com/zatekoja/reviewgate/backend/internal/api/middleware"
	"github.com/zatekoja/reviewgate/backend/internal/application/services"
	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
)

type sseEvent struct {
	name string
	data string
}

// openStream connects to the admin stream and returns its parsed events.
func openStream(t *testing.T, f *fixture, heartbeat time.Duration, token, query string) <-chan sseEvent {
	t.Helper()

	mux := http.NewServeMux()
	mux.Handle("GET /api/admin/stream", middleware.RequireAdmin(f.manager)(
		http.HandlerFunc(handlers.NewStreamHandler(heartbeat).StreamFeedback)))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/admin/stream"+query, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan sseEvent, 64)
	go func() {
		defer resp.Body.Close()
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		var current sseEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				current.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				current.data = strings.TrimPrefix(line, "data: ")
			case line == "":
				events <- current
				current = sseEvent{}
			}
		}
	}()
	return events
}

// waitForSnapshot reads events until a snapshot satisfies match.
func waitForSnapshot(t *testing.T, events <-chan sseEvent, match func(entities.AdminView) bool) entities.AdminView {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed")
			if ev.name != "snapshot" {
				continue
			}
			var view entities.AdminView
			require.NoError(t, json.Unmarshal([]byte(ev.data), &view))
			if match(view) {
				return view
			}
		case <-timeout:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestStreamHandler_PushesChanges(t *testing.T) {
	f := newFixture(t)
	console := f.login(t)

	events := openStream(t, f, time.Minute, console.Token, "")
	waitForSnapshot(t, events, func(v entities.AdminView) bool { return !v.Loading && v.Total == 0 })

	f.seed(t, "Ada", baseTime)
	view := waitForSnapshot(t, events, func(v entities.AdminView) bool { return v.Total == 1 })
	assert.Equal(t, "Ada", view.Records[0].CustomerName)
}

func TestStreamHandler_AppliesFilter(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Ada", baseTime)
	f.seed(t, "Grace", baseTime.Add(time.Minute))
	console := f.login(t)

	events := openStream(t, f, time.Minute, console.Token, "?q=grace")
	view := waitForSnapshot(t, events, func(v entities.AdminView) bool { return v.Total == 2 })

	require.Len(t, view.Records, 1)
	assert.Equal(t, "Grace", view.Records[0].CustomerName)
	assert.Equal(t, "grace", view.Filter)
}

func TestStreamHandler_Heartbeat(t *testing.T) {
	f := newFixture(t)
	console := f.login(t)

	events := openStream(t, f, 20*time.Millisecond, console.Token, "")

	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed")
			if ev.name == "heartbeat" {
				assert.Contains(t, ev.data, "timestamp")
				return
			}
		case <-timeout:
			t.Fatal("no heartbeat received")
		}
	}
}

func TestStreamHandler_RequiresSession(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	middleware.RequireAdmin(f.manager)(http.HandlerFunc(handlers.NewStreamHandler(0).StreamFeedback)).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/stream?access_token=bogus", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// withSessionTTL swaps the fixture's admin sessions for ones that expire after ttl.
func withSessionTTL(t *testing.T, f *fixture, ttl time.Duration) {
	t.Helper()
	f.manager = services.NewAdminSessionManager(services.NewAdminGate(testAdminSecret), f.gateway, nil, time.Minute, ttl)
	t.Cleanup(f.manager.Close)
}

func waitForClose(t *testing.T, events <-chan sseEvent) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("stream still open")
		}
	}
}

func TestStreamHandler_EndsWhenSessionReaped(t *testing.T) {
	f := newFixture(t)
	withSessionTTL(t, f, 250*time.Millisecond)
	console := f.login(t)

	events := openStream(t, f, time.Minute, console.Token, "")
	waitForSnapshot(t, events, func(v entities.AdminView) bool { return !v.Loading })

	require.Eventually(t, func() bool { return f.manager.Reap() == 1 }, 2*time.Second, 20*time.Millisecond)
	waitForClose(t, events)

	_, err := f.manager.Get(console.Token)
	assert.Error(t, err)
}

func TestStreamHandler_EndsOnLogout(t *testing.T) {
	f := newFixture(t)
	console := f.login(t)

	events := openStream(t, f, time.Minute, console.Token, "")
	waitForSnapshot(t, events, func(v entities.AdminView) bool { return !v.Loading })

	f.manager.Logout(console.Token)
	waitForClose(t, events)
}

func TestStreamHandler_HeartbeatsKeepSessionAlive(t *testing.T) {
	f := newFixture(t)
	withSessionTTL(t, f, 250*time.Millisecond)
	console := f.login(t)

	events := openStream(t, f, 20*time.Millisecond, console.Token, "")
	waitForSnapshot(t, events, func(v entities.AdminView) bool { return !v.Loading })

	time.Sleep(600 * time.Millisecond)
	assert.Zero(t, f.manager.Reap())

	f.seed(t, "Ada", baseTime)
	view := waitForSnapshot(t, events, func(v entities.AdminView) bool { return v.Total == 1 })
	assert.Equal(t, "Ada", view.Records[0].CustomerName)
}
