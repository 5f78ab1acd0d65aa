package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRoundTrip(t *testing.T) {
	r := NewResolver("secret", "auth.local", "authenticated")
	tok, err := r.Sign("user-123", time.Hour)
	require.NoError(t, err)

	sub, err := r.Resolve(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "user-123", sub)
}

func TestResolveRejects(t *testing.T) {
	r := NewResolver("secret", "auth.local", "")
	expired, err := r.Sign("u", -time.Minute)
	require.NoError(t, err)

	other, err := NewResolver("other", "auth.local", "").Sign("u", time.Hour)
	require.NoError(t, err)

	wrongIssuer, err := NewResolver("secret", "elsewhere", "").Sign("u", time.Hour)
	require.NoError(t, err)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "auth.local",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"expired":      expired,
		"bad-sig":      other,
		"wrong-issuer": wrongIssuer,
		"no-subject":   noSub,
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), tok)
			assert.True(t, errors.Is(err, models.ErrUnauthenticated), "got %v", err)
		})
	}
}

func TestResolveRejectsNoneAlg(t *testing.T) {
	r := NewResolver("secret", "", "")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), tok)
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}
