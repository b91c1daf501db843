package auth

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nephrolytics/practice-api/multitenant"
)

// HeaderAuthenticator trusts a user id header set by an upstream proxy.
// Config validation forbids it in production.
type HeaderAuthenticator struct {
	header string
	store  PrincipalStore
}

var _ Authenticator = (*HeaderAuthenticator)(nil)

// NewHeaderAuthenticator creates a HeaderAuthenticator reading header.
func NewHeaderAuthenticator(header string, store PrincipalStore) *HeaderAuthenticator {
	return &HeaderAuthenticator{header: header, store: store}
}

// Authenticate implements Authenticator.
func (a *HeaderAuthenticator) Authenticate(ctx context.Context, r *http.Request) (multitenant.Principal, error) {
	raw := r.Header.Get(a.header)
	if raw == "" {
		return multitenant.Principal{}, ErrUnauthenticated
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return multitenant.Principal{}, ErrUnauthenticated
	}
	return loadPrincipal(ctx, a.store, userID)
}
