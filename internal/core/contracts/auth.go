package contracts

import (
	"context"

	"pulse/internal/core/domain"
)

// Authenticator verifies a credential token presented at connect time.
// Invalid, expired or unknown credentials fail with domain.ErrAuthentication.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.PrincipalID, error)
}
