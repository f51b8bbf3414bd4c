package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zatekoja/reviewgate/backend/internal/adapters/store"
	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
	"github.com/zatekoja/reviewgate/backend/internal/domain/repositories"
)

var testNow = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

var (
	errDenied      = repositories.NewStoreError(repositories.StoreCodePermissionDenied, "missing or insufficient permissions", nil)
	errUnavailable = repositories.NewStoreError(repositories.StoreCodeUnavailable, "offline", nil)
	errOther       = repositories.NewStoreError(repositories.StoreCodeOther, "quota exceeded", nil)
)

// fakeScheduler records timers so tests decide when they fire.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (s *fakeScheduler) Schedule(d time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t.stopped {
			return false
		}
		t.stopped = true
		return true
	}
}

// Fire runs timer i even if it was stopped, as a timer racing its Stop would.
func (s *fakeScheduler) Fire(i int) {
	s.mu.Lock()
	t := s.timers[i]
	s.mu.Unlock()
	t.f()
}

func (s *fakeScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) Stopped(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[i].stopped
}

func seedFeedback(t *testing.T, s *store.MemoryStore, records ...entities.FeedbackRecord) []string {
	t.Helper()
	ids := make([]string, 0, len(records))
	for _, r := range records {
		doc, err := repositories.NewDocument("", r.Timestamp, r)
		require.NoError(t, err)
		id, err := s.Add(context.Background(), FeedbackCollection, doc)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func negativeAt(offset time.Duration, name string) entities.FeedbackRecord {
	return entities.NewNegativeRecord(2, entities.Complaint{Name: name, Phone: "0700000000", Message: "slow service"}, testNow.Add(offset))
}

// startedPanel wires a panel to a live synchronizer over s and waits for the first snapshot.
func startedPanel(t *testing.T, s *store.MemoryStore) (*AdminPanel, *PersistenceGateway) {
	t.Helper()
	gateway := NewPersistenceGateway(s, true, NewNoticeBoard(0), nil)
	panel := NewAdminPanel()
	syncer := NewCollectionSynchronizer(gateway, panel)
	require.NoError(t, syncer.Start(context.Background()))
	t.Cleanup(syncer.Stop)

	require.Eventually(t, func() bool { return !panel.View().Loading }, 2*time.Second, 5*time.Millisecond)
	return panel, gateway
}

func viewTotal(p *AdminPanel, want int) func() bool {
	return func() bool { return p.View().Total == want }
}
