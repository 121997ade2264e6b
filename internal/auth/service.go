package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidKey indicates the presented API key did not match any configured key.
var ErrInvalidKey = errors.New("auth: invalid API key")

// APIKey is a named, bcrypt-hashed credential that can be exchanged for an
// access token.
type APIKey struct {
	Name string
	Hash string
}

// Service verifies API keys and issues access tokens for them.
type Service struct {
	keys   []APIKey
	tokens *TokenService
}

// NewService creates an auth Service from the configured API keys.
// Every key hash must be a valid bcrypt hash.
func NewService(keys []APIKey, tokens *TokenService) (*Service, error) {
	for _, k := range keys {
		if k.Name == "" {
			return nil, fmt.Errorf("auth: API key with empty name")
		}
		if _, err := bcrypt.Cost([]byte(k.Hash)); err != nil {
			return nil, fmt.Errorf("auth: key %q: invalid bcrypt hash: %w", k.Name, err)
		}
	}
	return &Service{keys: keys, tokens: tokens}, nil
}

// Authenticate checks a raw API key against the configured hashes and returns
// the matching key's name. All hashes are tried so timing does not reveal
// which entry matched.
func (s *Service) Authenticate(rawKey string) (string, error) {
	name := ""
	for _, k := range s.keys {
		if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(rawKey)) == nil {
			name = k.Name
		}
	}
	if name == "" {
		return "", ErrInvalidKey
	}
	return name, nil
}

// Tokens returns the underlying token service.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// HashKey bcrypt-hashes a raw API key for storage in configuration.
func HashKey(rawKey string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash API key: %w", err)
	}
	return string(h), nil
}
