package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "driftwatch"

// Claims is the access token payload. Client duplicates the subject
// under a short key so handlers can read it without touching the
// registered claims.
type Claims struct {
	jwt.RegisteredClaims
	Client string `json:"cli"`
}

// TokenService mints and checks HMAC-signed access tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret []byte, ttl time.Duration) *TokenService {
	return &TokenService{secret: secret, ttl: ttl}
}

// IssueToken signs a fresh access token for client, valid for the
// configured TTL.
func (s *TokenService) IssueToken(client string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   client,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Client: client,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies the signature and expiry of raw and returns
// its claims. Only HS256 tokens are accepted.
func (s *TokenService) ValidateToken(raw string) (*Claims, error) {
	keyFn := func(*jwt.Token) (any, error) { return s.secret, nil }
	token, err := jwt.ParseWithClaims(raw, &Claims{}, keyFn,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// TTL reports the access token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}
