package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zatekoja/reviewgate/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/reviewgate/backend/pkg/errors"
)

// AdminConsole is everything one unlocked admin session owns.
type AdminConsole struct {
	Token        string
	Panel        *AdminPanel
	Synchronizer *CollectionSynchronizer
	Confirmation *DeleteConfirmation
	Probe        *DiagnosticProbe

	lastSeen  atomic.Int64
	now       func() time.Time
	done      chan struct{}
	closeOnce sync.Once
}

// Done is closed once the session has been logged out or reaped. Streams
// following the console end on it.
func (c *AdminConsole) Done() <-chan struct{} {
	return c.done
}

// Touch marks the session as in use. Open streams call it on every heartbeat
// so a watched console does not expire.
func (c *AdminConsole) Touch() {
	if c.now == nil {
		return
	}
	c.lastSeen.Store(c.now().UnixNano())
}

func (c *AdminConsole) close() {
	c.closeOnce.Do(func() {
		c.Synchronizer.Stop()
		c.Confirmation.Close()
		close(c.done)
	})
}

// AdminSessionManager hands out admin tokens after the gate accepts the
// secret. Sessions live in memory and expire after ttl without use.
type AdminSessionManager struct {
	gate     *AdminGate
	gateway  *PersistenceGateway
	metrics  *observability.Metrics
	window   time.Duration
	schedule Scheduler
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*AdminConsole
}

// NewAdminSessionManager creates the admin session registry.
func NewAdminSessionManager(gate *AdminGate, gateway *PersistenceGateway, metrics *observability.Metrics, confirmWindow, ttl time.Duration) *AdminSessionManager {
	return &AdminSessionManager{
		gate:     gate,
		gateway:  gateway,
		metrics:  metrics,
		window:   confirmWindow,
		schedule: AfterFunc,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*AdminConsole),
	}
}

// Login checks the candidate secret and opens a console with its live
// subscription already started. Subscription failures show up in the panel
// state; they do not fail the login.
func (m *AdminSessionManager) Login(ctx context.Context, candidate string) (*AdminConsole, error) {
	if err := m.gate.Authenticate(candidate); err != nil {
		log.Warn().Msg("Admin login rejected")
		return nil, err
	}

	panel := NewAdminPanel()
	console := &AdminConsole{
		Token:        uuid.New().String(),
		Panel:        panel,
		Synchronizer: NewCollectionSynchronizer(m.gateway, panel),
		Confirmation: NewDeleteConfirmation(m.gateway, panel, m.window, m.schedule),
		Probe:        NewDiagnosticProbe(m.gateway, panel, m.metrics),
		now:          func() time.Time { return m.now() },
		done:         make(chan struct{}),
	}

	if err := console.Synchronizer.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("Admin feed subscription failed to start")
	}

	console.Touch()
	m.mu.Lock()
	m.sessions[console.Token] = console
	m.mu.Unlock()

	log.Info().Msg("Admin session opened")
	return console, nil
}

// Get returns the console for token and refreshes its expiry.
func (m *AdminSessionManager) Get(token string) (*AdminConsole, error) {
	m.mu.Lock()
	console, ok := m.sessions[token]
	if ok && m.expiredLocked(console) {
		delete(m.sessions, token)
		m.mu.Unlock()
		console.close()
		return nil, apperrors.NewUnauthorizedError("admin session expired")
	}
	if !ok {
		m.mu.Unlock()
		return nil, apperrors.NewUnauthorizedError("admin session required")
	}
	m.mu.Unlock()
	console.Touch()
	return console, nil
}

// Logout ends the session and cancels its subscription
func (m *AdminSessionManager) Logout(token string) {
	m.mu.Lock()
	console, ok := m.sessions[token]
	delete(m.sessions, token)
	m.mu.Unlock()

	if ok {
		console.close()
		log.Info().Msg("Admin session closed")
	}
}

// Reap closes every expired session and returns how many it closed.
func (m *AdminSessionManager) Reap() int {
	m.mu.Lock()
	var expired []*AdminConsole
	for token, console := range m.sessions {
		if m.expiredLocked(console) {
			expired = append(expired, console)
			delete(m.sessions, token)
		}
	}
	m.mu.Unlock()

	for _, console := range expired {
		console.close()
	}
	if len(expired) > 0 {
		log.Info().Int("count", len(expired)).Msg("Expired admin sessions closed")
	}
	return len(expired)
}

// RunJanitor reaps expired sessions every interval until ctx is done.
func (m *AdminSessionManager) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap()
		}
	}
}

// Close ends every session
func (m *AdminSessionManager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*AdminConsole)
	m.mu.Unlock()

	for _, console := range sessions {
		console.close()
	}
}

func (m *AdminSessionManager) expiredLocked(c *AdminConsole) bool {
	return m.ttl > 0 && m.now().Sub(time.Unix(0, c.lastSeen.Load())) > m.ttl
}
