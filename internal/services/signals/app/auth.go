package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/louisbranch/signals.agent/internal/platform/clock"
	"github.com/louisbranch/signals.agent/internal/platform/requestctx"
	"github.com/modelcontextprotocol/go-sdk/auth"
)

// PrincipalVerifier validates HS256 bearer tokens whose subject names a
// principal.
type PrincipalVerifier struct {
	secret []byte
	clock  clock.Clock
}

// NewPrincipalVerifier returns a verifier for tokens signed with secret.
// Expiry is checked against wall-clock time.
func NewPrincipalVerifier(secret string) (*PrincipalVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &PrincipalVerifier{secret: []byte(secret), clock: clock.Real()}, nil
}

// Verify returns the principal and expiry carried by token. Tokens must be
// signed with HS256 and carry an expiry.
func (v *PrincipalVerifier) Verify(token string) (string, time.Time, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock.Now),
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", time.Time{}, auth.ErrInvalidToken
	}
	principal := strings.TrimSpace(claims.Subject)
	if principal == "" {
		return "", time.Time{}, fmt.Errorf("%w: token has no subject", auth.ErrInvalidToken)
	}
	return principal, claims.ExpiresAt.Time, nil
}

// TokenVerifier adapts Verify to the MCP bearer middleware.
func (v *PrincipalVerifier) TokenVerifier(_ context.Context, token string, _ *http.Request) (*auth.TokenInfo, error) {
	principal, expires, err := v.Verify(token)
	if err != nil {
		return nil, err
	}
	return &auth.TokenInfo{UserID: principal, Expiration: expires}, nil
}

// Sign issues a token for principalID valid for ttl.
func (v *PrincipalVerifier) Sign(principalID string, ttl time.Duration) (string, error) {
	now := v.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   principalID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Middleware authenticates requests that carry an Authorization header and
// stores the token's principal in the request context. A present but
// invalid token is rejected with 401; requests without the header pass
// through anonymously.
func (v *PrincipalVerifier) Middleware(next http.Handler) http.Handler {
	authenticated := auth.RequireBearerToken(v.TokenVerifier, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info := auth.TokenInfoFromContext(r.Context()); info != nil {
			r = r.WithContext(requestctx.WithPrincipalID(r.Context(), info.UserID))
		}
		next.ServeHTTP(w, r)
	}))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
			next.ServeHTTP(w, r)
			return
		}
		authenticated.ServeHTTP(w, r)
	})
}
