package entities

import (
	"fmt"
	"time"

	apperrors "github.com/zatekoja/reviewgate/backend/pkg/errors"
)

// FlowStep is the visitor's position in the feedback flow.
type FlowStep string

const (
	StepRating           FlowStep = "RATING"
	StepNegativeFeedback FlowStep = "NEGATIVE_FEEDBACK"
	StepPositiveRedirect FlowStep = "POSITIVE_REDIRECT"
	StepSuccess          FlowStep = "SUCCESS"
)

// Session is the state of one visitor interaction. It is a value: every
// transition returns the next Session and leaves the receiver untouched.
//
//	RATING --r>=4--> POSITIVE_REDIRECT --redirect--> (visitor leaves)
//	RATING --r<4---> NEGATIVE_FEEDBACK --complaint--> SUCCESS
//
// Recorded is set once the session has produced its single record.
type Session struct {
	ID        string    `json:"id"`
	Step      FlowStep  `json:"step"`
	Rating    int       `json:"rating"`
	Recorded  bool      `json:"recorded"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSession starts a session at the rating step.
func NewSession(id string, now time.Time) Session {
	return Session{
		ID:        id,
		Step:      StepRating,
		CreatedAt: now.UTC(),
	}
}

// SelectRating records the visitor's rating and branches on it.
func (s Session) SelectRating(rating int) (Session, error) {
	if s.Step != StepRating {
		return s, invalidTransition(s.Step, "select a rating")
	}
	sentiment, err := ClassifyRating(rating)
	if err != nil {
		return s, err
	}

	next := s
	next.Rating = rating
	if sentiment == SentimentPositive {
		next.Step = StepPositiveRedirect
	} else {
		next.Step = StepNegativeFeedback
	}
	return next, nil
}

// SubmitComplaint completes the negative branch. It returns the record to
// persist; the session moves to SUCCESS whatever happens to that record.
func (s Session) SubmitComplaint(complaint Complaint, now time.Time) (Session, FeedbackRecord, error) {
	if s.Step != StepNegativeFeedback || s.Recorded {
		return s, FeedbackRecord{}, invalidTransition(s.Step, "submit a complaint")
	}
	complaint = complaint.Normalize()
	if err := complaint.Validate(); err != nil {
		return s, FeedbackRecord{}, err
	}

	next := s
	next.Step = StepSuccess
	next.Recorded = true
	return next, NewNegativeRecord(s.Rating, complaint, now), nil
}

// TriggerRedirect completes the positive branch. The step stays at
// POSITIVE_REDIRECT because the visitor leaves for the review site; Recorded
// blocks a second record and a second redirect.
func (s Session) TriggerRedirect(now time.Time) (Session, FeedbackRecord, error) {
	if s.Step != StepPositiveRedirect || s.Recorded {
		return s, FeedbackRecord{}, invalidTransition(s.Step, "trigger the review redirect")
	}

	next := s
	next.Recorded = true
	return next, NewPositiveRecord(s.Rating, now), nil
}

func invalidTransition(step FlowStep, action string) error {
	return apperrors.NewConflictError(fmt.Sprintf("cannot %s from step %s", action, step))
}
