package services

import (
	"crypto/subtle"

	apperrors "github.com/zatekoja/reviewgate/backend/pkg/errors"
)

// InvalidCredentialMessage is the only message a rejected candidate ever sees.
const InvalidCredentialMessage = "incorrect password, access denied"

// AdminGate checks candidates against the shared admin secret. There is no
// attempt counting and no lockout.
type AdminGate struct {
	secret []byte
}

// NewAdminGate creates a gate. An empty secret rejects every candidate.
func NewAdminGate(secret string) *AdminGate {
	return &AdminGate{secret: []byte(secret)}
}

// Enabled reports whether an admin secret is configured
func (g *AdminGate) Enabled() bool {
	return len(g.secret) > 0
}

// Authenticate succeeds iff candidate equals the secret exactly.
func (g *AdminGate) Authenticate(candidate string) error {
	if !g.Enabled() || subtle.ConstantTimeCompare([]byte(candidate), g.secret) != 1 {
		return apperrors.NewInvalidCredentialError(InvalidCredentialMessage)
	}
	return nil
}
