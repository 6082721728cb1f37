package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken is returned for malformed, forged or expired access tokens
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the payload of a customer access token
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 customer access tokens
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates a token issuer
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue returns a signed token for customer and its expiry
func (t *TokenIssuer) Issue(customer *models.Customer) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(t.ttl)

	claims := Claims{
		Email: customer.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(customer.ID, 10),
			Issuer:    util.ServiceName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies a token and returns the customer id it was issued for
func (t *TokenIssuer) Parse(tokenStr string) (int64, error) {
	if len(t.secret) == 0 {
		return 0, fmt.Errorf("JWT secret not configured")
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	customerID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || customerID <= 0 {
		return 0, ErrInvalidToken
	}
	return customerID, nil
}
