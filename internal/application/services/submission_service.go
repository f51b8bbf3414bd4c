package services

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
	"github.com/zatekoja/reviewgate/backend/internal/domain/repositories"
)

const (
	defaultWriteTimeout = 15 * time.Second
	sessionLockStripes  = 64
)

// FeedbackAppender persists a finished record.
type FeedbackAppender interface {
	Append(ctx context.Context, record entities.FeedbackRecord) (string, error)
}

// SubmissionService drives visitor sessions through the rating flow. Each
// completed session dispatches exactly one record write in the background;
// callers never wait for it.
type SubmissionService struct {
	sessions     repositories.SessionRepository
	appender     FeedbackAppender
	reviewURL    string
	writeTimeout time.Duration
	now          func() time.Time

	locks    [sessionLockStripes]sync.Mutex
	inflight sync.WaitGroup
}

// NewSubmissionService creates a submission service.
func NewSubmissionService(sessions repositories.SessionRepository, appender FeedbackAppender, reviewURL string) *SubmissionService {
	return &SubmissionService{
		sessions:     sessions,
		appender:     appender,
		reviewURL:    reviewURL,
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
	}
}

// Start opens a new session at the rating step. A page reload is a new session.
func (s *SubmissionService) Start(ctx context.Context) (entities.Session, error) {
	session := entities.NewSession(uuid.New().String(), s.now())
	if err := s.sessions.Save(ctx, session); err != nil {
		return entities.Session{}, err
	}
	return session, nil
}

// Get returns a session
func (s *SubmissionService) Get(ctx context.Context, id string) (*entities.Session, error) {
	return s.sessions.Get(ctx, id)
}

// SelectRating applies the visitor's rating
func (s *SubmissionService) SelectRating(ctx context.Context, id string, rating int) (entities.Session, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return entities.Session{}, err
	}
	next, err := session.SelectRating(rating)
	if err != nil {
		return *session, err
	}
	if err := s.sessions.Save(ctx, next); err != nil {
		return *session, err
	}
	return next, nil
}

// WriteAdmission decides whether a finished record is written. It runs after
// the transition has been saved, so it never holds the visitor back.
type WriteAdmission func(ctx context.Context, record entities.FeedbackRecord) bool

// SubmitComplaint finishes the negative branch. The session reaches SUCCESS
// whether or not the record is written: admit may suppress the write, and a
// dispatched write may still fail. A nil admit writes every record.
func (s *SubmissionService) SubmitComplaint(ctx context.Context, id string, complaint entities.Complaint, admit WriteAdmission) (entities.Session, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return entities.Session{}, err
	}
	next, record, err := session.SubmitComplaint(complaint, s.now())
	if err != nil {
		return *session, err
	}
	if err := s.sessions.Save(ctx, next); err != nil {
		return *session, err
	}

	if admit != nil && !admit(ctx, record) {
		log.Info().Str("session_id", id).Msg("Feedback write suppressed")
		return next, nil
	}
	s.dispatch(ctx, id, record)
	return next, nil
}

// TriggerRedirect finishes the positive branch and returns where to send the visitor.
func (s *SubmissionService) TriggerRedirect(ctx context.Context, id string) (entities.Session, string, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return entities.Session{}, "", err
	}
	next, record, err := session.TriggerRedirect(s.now())
	if err != nil {
		return *session, "", err
	}
	if err := s.sessions.Save(ctx, next); err != nil {
		return *session, "", err
	}

	s.dispatch(ctx, id, record)
	return next, s.reviewURL, nil
}

// Wait blocks until every dispatched write has finished.
func (s *SubmissionService) Wait() {
	s.inflight.Wait()
}

// dispatch writes record on a goroutine detached from the request. The only
// link back to the session is its id in the log line.
func (s *SubmissionService) dispatch(ctx context.Context, sessionID string, record entities.FeedbackRecord) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
		defer cancel()

		id, err := s.appender.Append(writeCtx, record)
		if err != nil {
			log.Warn().Err(err).
				Str("session_id", sessionID).
				Str("sentiment", string(record.Sentiment)).
				Msg("Feedback write failed")
			return
		}
		log.Info().
			Str("session_id", sessionID).
			Str("feedback_id", id).
			Str("sentiment", string(record.Sentiment)).
			Int("rating", record.Rating).
			Msg("Feedback recorded")
	}()
}

func (s *SubmissionService) lock(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	m := &s.locks[h.Sum32()%sessionLockStripes]
	m.Lock()
	return m.Unlock
}
