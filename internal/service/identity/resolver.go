package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	drepo "SignalDesk/internal/domain/repository"

	"github.com/golang-jwt/jwt/v5"
)

// Resolver verifies HS256 access tokens issued by the identity provider.
type Resolver struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewResolver creates a token resolver. Issuer and audience are checked only
// when set.
func NewResolver(secret, issuer, audience string) *Resolver {
	return &Resolver{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
}

// Resolve returns the token subject. Any verification failure is reported as
// models.ErrUnauthenticated.
func (r *Resolver) Resolve(_ context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(r.secret) == 0 {
		return "", models.ErrUnauthenticated
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(r.now),
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}
	if r.audience != "" {
		opts = append(opts, jwt.WithAudience(r.audience))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrUnauthenticated, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: token has no subject", models.ErrUnauthenticated)
	}
	return sub, nil
}

// Sign issues a token for subject. Used by tooling and tests.
func (r *Resolver) Sign(subject string, ttl time.Duration) (string, error) {
	if len(r.secret) == 0 {
		return "", errors.New("signing secret is empty")
	}
	now := r.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if r.issuer != "" {
		claims.Issuer = r.issuer
	}
	if r.audience != "" {
		claims.Audience = jwt.ClaimStrings{r.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

var _ drepo.SessionResolver = (*Resolver)(nil)
