package contracts

import (
	"context"
	"time"

	"pulse/internal/core/domain"
)

// PresenceMirror publishes the in-process presence state to a shared store so
// that other services can read it. It is best-effort and never authoritative.
type PresenceMirror interface {
	// SetOnline records the principal's status and refreshes its TTL.
	SetOnline(ctx context.Context, id domain.PrincipalID, status domain.Status, ttl time.Duration) error
	// SetOffline removes the principal from the online set and keeps its last-seen time.
	SetOffline(ctx context.Context, id domain.PrincipalID, lastSeen time.Time) error
	// Online returns principals refreshed within the given window.
	Online(ctx context.Context, within time.Duration) ([]domain.PrincipalID, error)
}
