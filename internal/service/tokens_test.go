package service

import (
	"testing"
	"time"

	"storefront-service/internal/models"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour)

	token, expiresAt, err := issuer.Issue(&models.Customer{ID: 42, Email: "a@b.com"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	customerID, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), customerID)
}

func TestTokenIssuer_Rejects(t *testing.T) {
	issuer := NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	other := NewTokenIssuer("fedcba9876543210fedcba9876543210", time.Hour)

	forged, _, err := other.Issue(&models.Customer{ID: 42})
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":    "not.a.token",
		"forged":     forged,
		"expired":    expired,
		"no subject": noSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.Parse(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestTokenIssuer_DefaultTTL(t *testing.T) {
	issuer := NewTokenIssuer("secret", 0)
	assert.Equal(t, 24*time.Hour, issuer.ttl)
}
