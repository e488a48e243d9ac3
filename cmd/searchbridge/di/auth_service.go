package di

import (
	"fmt"
	"time"

	"github.com/samber/do/v2"

	"github.com/searchbridge/searchbridge/internal/auth"
)

// authCacheTTL bounds how long a verified token skips the store lookup
// and hash comparison.
const authCacheTTL = time.Minute

// AuthService holds the client token authenticator.
type AuthService struct {
	Authenticator *auth.Authenticator
}

// NewAuthService builds the authenticator over the seeded token store.
func NewAuthService(i do.Injector) (*AuthService, error) {
	storeSvc := do.MustInvoke[*StoreService](i)

	authenticator, err := auth.NewAuthenticator(storeSvc.Store, authCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("authenticator: %w", err)
	}
	return &AuthService{Authenticator: authenticator}, nil
}
