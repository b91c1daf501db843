// Package auth turns incoming requests into multitenant principals.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nephrolytics/practice-api/multitenant"
)

// ErrUnauthenticated is returned when a request carries no valid credentials.
var ErrUnauthenticated = errors.New("unauthenticated")

// PrincipalStore loads principals by user id. Unknown ids must return an error
// matching database.ErrNotFound.
type PrincipalStore interface {
	PrincipalByID(ctx context.Context, id int64) (multitenant.Principal, error)
}

// Authenticator identifies the caller of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (multitenant.Principal, error)
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p multitenant.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (multitenant.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(multitenant.Principal)
	return p, ok
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	const prefix = "bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
