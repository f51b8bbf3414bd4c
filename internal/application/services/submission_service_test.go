package services

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/reviewgate/backend/internal/adapters/cache"
	"github.com/zatekoja/reviewgate/backend/internal/adapters/sessions"
	"github.com/zatekoja/reviewgate/backend/internal/adapters/store"
	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/reviewgate/backend/pkg/errors"
)

const testReviewURL = "https://search.google.com/local/writereview?placeid=test"

func newTestSubmissionService(t *testing.T, gateway *PersistenceGateway) *SubmissionService {
	t.Helper()
	memory, err := cache.NewMemoryAdapter(1 << 20)
	require.NoError(t, err)
	t.Cleanup(memory.Close)

	svc := NewSubmissionService(sessions.NewCacheSessionStore(memory, 30*time.Minute), gateway, testReviewURL)
	svc.now = func() time.Time { return testNow }
	return svc
}

func storedFeedback(t *testing.T, s *store.MemoryStore) []map[string]any {
	t.Helper()
	docs, err := s.List(context.Background(), FeedbackCollection)
	require.NoError(t, err)
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		var fields map[string]any
		require.NoError(t, json.Unmarshal(d.Data, &fields))
		out = append(out, fields)
	}
	return out
}

func TestSubmissionService_RatingBranches(t *testing.T) {
	ctx := context.Background()
	svc := newTestSubmissionService(t, NewPersistenceGateway(store.NewMemoryStore(), true, nil, nil))

	tests := []struct {
		rating int
		want   entities.FlowStep
	}{
		{1, entities.StepNegativeFeedback},
		{3, entities.StepNegativeFeedback},
		{4, entities.StepPositiveRedirect},
		{5, entities.StepPositiveRedirect},
	}
	for _, tt := range tests {
		session, err := svc.Start(ctx)
		require.NoError(t, err)

		next, err := svc.SelectRating(ctx, session.ID, tt.rating)
		require.NoError(t, err)
		assert.Equal(t, tt.want, next.Step, "rating %d", tt.rating)
	}

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.SelectRating(ctx, session.ID, 0)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestSubmissionService_NegativeFlowPersistsComplaint(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	svc := newTestSubmissionService(t, NewPersistenceGateway(s, true, nil, nil))

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.SelectRating(ctx, session.ID, 2)
	require.NoError(t, err)

	next, err := svc.SubmitComplaint(ctx, session.ID, entities.Complaint{Name: "Ion", Phone: "0700000000", Message: "slow service"}, nil)
	require.NoError(t, err)
	assert.Equal(t, entities.StepSuccess, next.Step)

	svc.Wait()
	records := storedFeedback(t, s)
	require.Len(t, records, 1)
	assert.Equal(t, map[string]any{
		"rating":                  float64(2),
		"sentiment":               "negative",
		"googleRedirectTriggered": false,
		"customerName":            "Ion",
		"customerPhone":           "0700000000",
		"customerMessage":         "slow service",
		"timestamp":               "2026-10-16T09:30:00Z",
	}, records[0])
}

func TestSubmissionService_SuccessEvenWhenWriteFails(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	s.FailWith(store.OpAdd, errUnavailable)
	notices := NewNoticeBoard(0)
	svc := newTestSubmissionService(t, NewPersistenceGateway(s, true, notices, nil))

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.SelectRating(ctx, session.ID, 1)
	require.NoError(t, err)

	next, err := svc.SubmitComplaint(ctx, session.ID, entities.Complaint{Name: "Ion", Phone: "07", Message: "bad"}, nil)
	require.NoError(t, err)
	assert.Equal(t, entities.StepSuccess, next.Step)

	svc.Wait()
	assert.Equal(t, 0, s.Count(FeedbackCollection))
	require.Len(t, notices.Recent(), 1)
	assert.Equal(t, NoticeWarn, notices.Recent()[0].Level)
}

func TestSubmissionService_SuppressedWriteStillReachesSuccess(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	svc := newTestSubmissionService(t, NewPersistenceGateway(s, true, nil, nil))

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.SelectRating(ctx, session.ID, 2)
	require.NoError(t, err)

	var admitted []entities.FeedbackRecord
	deny := func(_ context.Context, record entities.FeedbackRecord) bool {
		admitted = append(admitted, record)
		return false
	}
	next, err := svc.SubmitComplaint(ctx, session.ID, entities.Complaint{Name: "Ion", Phone: "07", Message: "bad"}, deny)
	require.NoError(t, err)
	assert.Equal(t, entities.StepSuccess, next.Step)
	require.Len(t, admitted, 1)
	assert.Equal(t, entities.SentimentNegative, admitted[0].Sentiment)

	stored, err := svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StepSuccess, stored.Step)

	svc.Wait()
	assert.Equal(t, 0, s.Count(FeedbackCollection))
}

func TestSubmissionService_AdmissionSkippedForWrongStep(t *testing.T) {
	ctx := context.Background()
	svc := newTestSubmissionService(t, NewPersistenceGateway(store.NewMemoryStore(), true, nil, nil))

	session, err := svc.Start(ctx)
	require.NoError(t, err)

	calls := 0
	admit := func(context.Context, entities.FeedbackRecord) bool {
		calls++
		return true
	}
	_, err = svc.SubmitComplaint(ctx, session.ID, entities.Complaint{Name: "Ion", Phone: "07", Message: "bad"}, admit)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	assert.Zero(t, calls)
}

func TestSubmissionService_UnconfiguredStoreNeverWrites(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	notices := NewNoticeBoard(0)
	svc := newTestSubmissionService(t, NewPersistenceGateway(s, false, notices, nil))

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.SelectRating(ctx, session.ID, 5)
	require.NoError(t, err)

	_, url, err := svc.TriggerRedirect(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, testReviewURL, url)

	svc.Wait()
	assert.Equal(t, 0, s.Count(FeedbackCollection))
	require.Len(t, notices.Recent(), 1)
	assert.Equal(t, NoticeError, notices.Recent()[0].Level)
}

func TestSubmissionService_PositiveFlowRedirectsOnce(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	svc := newTestSubmissionService(t, NewPersistenceGateway(s, true, nil, nil))

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.SelectRating(ctx, session.ID, 5)
	require.NoError(t, err)

	next, url, err := svc.TriggerRedirect(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, testReviewURL, url)
	assert.True(t, next.Recorded)

	_, _, err = svc.TriggerRedirect(ctx, session.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))

	svc.Wait()
	records := storedFeedback(t, s)
	require.Len(t, records, 1)
	assert.Equal(t, "positive", records[0]["sentiment"])
	assert.Equal(t, true, records[0]["googleRedirectTriggered"])
	assert.Equal(t, float64(5), records[0]["rating"])
	assert.NotContains(t, records[0], "customerName")
}

func TestSubmissionService_ConcurrentSubmitsRecordOnce(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	svc := newTestSubmissionService(t, NewPersistenceGateway(s, true, nil, nil))

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.SelectRating(ctx, session.ID, 3)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.SubmitComplaint(ctx, session.ID, entities.Complaint{Name: "Ion", Phone: "07", Message: "bad"}, nil); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()
	svc.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, 1, s.Count(FeedbackCollection))
}

func TestSubmissionService_SuccessIsTerminal(t *testing.T) {
	ctx := context.Background()
	svc := newTestSubmissionService(t, NewPersistenceGateway(store.NewMemoryStore(), true, nil, nil))

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.SelectRating(ctx, session.ID, 2)
	require.NoError(t, err)
	_, err = svc.SubmitComplaint(ctx, session.ID, entities.Complaint{Name: "Ion", Phone: "07", Message: "bad"}, nil)
	require.NoError(t, err)

	_, err = svc.SelectRating(ctx, session.ID, 5)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	_, _, err = svc.TriggerRedirect(ctx, session.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	svc.Wait()
}

func TestSubmissionService_UnknownSession(t *testing.T) {
	svc := newTestSubmissionService(t, NewPersistenceGateway(store.NewMemoryStore(), true, nil, nil))
	_, err := svc.SelectRating(context.Background(), "missing", 4)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}
