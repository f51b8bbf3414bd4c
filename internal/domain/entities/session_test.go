package entities_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/reviewgate/backend/pkg/errors"
)

var submittedAt = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

func TestClassifyRating(t *testing.T) {
	tests := []struct {
		rating int
		want   entities.Sentiment
	}{
		{1, entities.SentimentNegative},
		{2, entities.SentimentNegative},
		{3, entities.SentimentNegative},
		{4, entities.SentimentPositive},
		{5, entities.SentimentPositive},
	}

	for _, tt := range tests {
		got, err := entities.ClassifyRating(tt.rating)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "rating %d", tt.rating)
	}

	for _, invalid := range []int{0, -1, 6} {
		_, err := entities.ClassifyRating(invalid)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation), "rating %d", invalid)
	}
}

func TestSession_SelectRating_Branches(t *testing.T) {
	for rating := 1; rating <= 5; rating++ {
		start := entities.NewSession("s-1", submittedAt)
		next, err := start.SelectRating(rating)
		require.NoError(t, err)

		want := entities.StepNegativeFeedback
		if rating >= 4 {
			want = entities.StepPositiveRedirect
		}
		assert.Equal(t, want, next.Step, "rating %d", rating)
		assert.Equal(t, rating, next.Rating)
		assert.Equal(t, entities.StepRating, start.Step, "receiver must not change")
	}
}

func TestSession_SelectRating_OnlyFromRatingStep(t *testing.T) {
	s, err := entities.NewSession("s-1", submittedAt).SelectRating(2)
	require.NoError(t, err)

	_, err = s.SelectRating(5)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
}

func TestSession_SubmitComplaint(t *testing.T) {
	s, err := entities.NewSession("s-1", submittedAt).SelectRating(2)
	require.NoError(t, err)

	next, record, err := s.SubmitComplaint(entities.Complaint{
		Name:    "Ion",
		Phone:   "0700000000",
		Message: "slow service",
	}, submittedAt)
	require.NoError(t, err)

	assert.Equal(t, entities.StepSuccess, next.Step)
	assert.True(t, next.Recorded)
	assert.Equal(t, entities.FeedbackRecord{
		Rating:                  2,
		Sentiment:               entities.SentimentNegative,
		GoogleRedirectTriggered: false,
		CustomerName:            "Ion",
		CustomerPhone:           "0700000000",
		CustomerMessage:         "slow service",
		Timestamp:               submittedAt,
	}, record)
	assert.NoError(t, record.Validate())

	_, _, err = next.SubmitComplaint(entities.Complaint{Name: "Ion", Phone: "1", Message: "again"}, submittedAt)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict), "SUCCESS is terminal")
}

func TestSession_SubmitComplaint_RequiresAllFields(t *testing.T) {
	s, err := entities.NewSession("s-1", submittedAt).SelectRating(1)
	require.NoError(t, err)

	next, _, err := s.SubmitComplaint(entities.Complaint{Name: "Ion", Phone: "   ", Message: "slow"}, submittedAt)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	assert.Equal(t, entities.StepNegativeFeedback, next.Step)
}

func TestSession_TriggerRedirect_Once(t *testing.T) {
	s, err := entities.NewSession("s-1", submittedAt).SelectRating(5)
	require.NoError(t, err)

	next, record, err := s.TriggerRedirect(submittedAt)
	require.NoError(t, err)

	assert.Equal(t, entities.StepPositiveRedirect, next.Step)
	assert.True(t, next.Recorded)
	assert.Equal(t, entities.FeedbackRecord{
		Rating:                  5,
		Sentiment:               entities.SentimentPositive,
		GoogleRedirectTriggered: true,
		Timestamp:               submittedAt,
	}, record)

	_, _, err = next.TriggerRedirect(submittedAt)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
}

func TestSession_TriggerRedirect_NotFromNegativeBranch(t *testing.T) {
	s, err := entities.NewSession("s-1", submittedAt).SelectRating(3)
	require.NoError(t, err)

	_, _, err = s.TriggerRedirect(submittedAt)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
}
