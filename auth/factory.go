package auth

import (
	"fmt"

	"github.com/nephrolytics/practice-api/config"
)

// New builds the Authenticator selected by cfg.Mode.
func New(cfg *config.AuthConfig, store PrincipalStore) (Authenticator, error) {
	switch cfg.Mode {
	case config.AuthModeJWT:
		return NewJWTAuthenticator(cfg.JWT, store), nil
	case config.AuthModeHeader:
		return NewHeaderAuthenticator(cfg.Header, store), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}
