package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
	"github.com/zatekoja/reviewgate/backend/internal/domain/providers"
	"github.com/zatekoja/reviewgate/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/reviewgate/backend/pkg/errors"
)

// CacheSessionStore keeps visitor sessions in a CacheProvider with a sliding TTL.
type CacheSessionStore struct {
	cache providers.CacheProvider
	ttl   time.Duration
}

// NewCacheSessionStore creates a session repository on top of cache.
func NewCacheSessionStore(cache providers.CacheProvider, ttl time.Duration) repositories.SessionRepository {
	if ttl < time.Second {
		ttl = time.Second
	}
	return &CacheSessionStore{cache: cache, ttl: ttl}
}

func sessionCacheKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// Get returns the session or NOT_FOUND
func (s *CacheSessionStore) Get(ctx context.Context, id string) (*entities.Session, error) {
	data, err := s.cache.Get(ctx, sessionCacheKey(id))
	if errors.Is(err, providers.ErrCacheMiss) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("session %s not found or expired", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load session", err)
	}

	var session entities.Session
	if err := json.Unmarshal(data, &session); err != nil {
		log.Warn().Err(err).Str("session_id", id).Msg("Discarding unreadable session")
		_ = s.cache.Delete(ctx, sessionCacheKey(id))
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("session %s not found or expired", id))
	}
	return &session, nil
}

// Save stores the session and refreshes its expiry
func (s *CacheSessionStore) Save(ctx context.Context, session entities.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return apperrors.NewInternalError("failed to encode session", err)
	}
	if err := s.cache.Set(ctx, sessionCacheKey(session.ID), data, int(s.ttl/time.Second)); err != nil {
		return apperrors.NewInternalError("failed to save session", err)
	}
	return nil
}

// Delete forgets the session
func (s *CacheSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.cache.Delete(ctx, sessionCacheKey(id)); err != nil {
		return apperrors.NewInternalError("failed to delete session", err)
	}
	return nil
}
