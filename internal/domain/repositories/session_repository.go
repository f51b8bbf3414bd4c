package repositories

import (
	"context"

	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
)

// SessionRepository keeps visitor sessions for the length of one interaction.
// Sessions are ephemeral and never reach the document store.
type SessionRepository interface {
	// Get returns the session or a NOT_FOUND error when it is unknown or expired.
	Get(ctx context.Context, id string) (*entities.Session, error)

	// Save stores the session, refreshing its expiry.
	Save(ctx context.Context, session entities.Session) error

	// Delete forgets the session.
	Delete(ctx context.Context, id string) error
}
