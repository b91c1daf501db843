package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nephrolytics/practice-api/config"
	"github.com/nephrolytics/practice-api/database"
	"github.com/nephrolytics/practice-api/multitenant"
)

// JWTAuthenticator validates HS256 bearer tokens whose subject is the user id.
type JWTAuthenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	store  PrincipalStore
	now    func() time.Time
}

// TokenIssuer signs bearer tokens for authenticated users.
type TokenIssuer interface {
	IssueToken(userID int64) (token string, expiresAt time.Time, err error)
}

var (
	_ Authenticator = (*JWTAuthenticator)(nil)
	_ TokenIssuer   = (*JWTAuthenticator)(nil)
)

// NewJWTAuthenticator creates a JWTAuthenticator from cfg.
func NewJWTAuthenticator(cfg config.JWTConfig, store PrincipalStore) *JWTAuthenticator {
	return &JWTAuthenticator{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		store:  store,
		now:    time.Now,
	}
}

// IssueToken signs a token for userID.
func (a *JWTAuthenticator) IssueToken(userID int64) (string, time.Time, error) {
	now := a.now()
	expiresAt := now.Add(a.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Authenticate implements Authenticator.
func (a *JWTAuthenticator) Authenticate(ctx context.Context, r *http.Request) (multitenant.Principal, error) {
	tokenStr, ok := BearerToken(r)
	if !ok {
		return multitenant.Principal{}, ErrUnauthenticated
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims jwt.RegisteredClaims
	if _, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return multitenant.Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return multitenant.Principal{}, fmt.Errorf("%w: invalid subject", ErrUnauthenticated)
	}
	return loadPrincipal(ctx, a.store, userID)
}

func loadPrincipal(ctx context.Context, store PrincipalStore, userID int64) (multitenant.Principal, error) {
	p, err := store.PrincipalByID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return multitenant.Principal{}, ErrUnauthenticated
	}
	if err != nil {
		return multitenant.Principal{}, fmt.Errorf("load principal %d: %w", userID, err)
	}
	return p, nil
}
