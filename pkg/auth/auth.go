// Package auth provides request authentication for the HTTP transport:
// API keys (plain or bcrypt-hashed) and HS256 bearer tokens. The stdio
// transport is trusted and never authenticates.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthenticated is returned when no authenticator accepts the
// presented credentials.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity describes an authenticated caller.
type Identity struct {
	Name   string // key name or token subject
	Method string // "apikey" or "bearer"
}

// Authenticator validates a credential extracted from a request.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

// APIKey is one configured key. Either Value or Hash is set; Hash is a
// bcrypt digest of the key.
type APIKey struct {
	Value string
	Hash  string
	Name  string
}

// APIKeyAuthenticator matches presented keys against a configured set
// using constant-time comparison.
type APIKeyAuthenticator struct {
	keys []APIKey
}

// NewAPIKeyAuthenticator creates an authenticator over the given keys.
func NewAPIKeyAuthenticator(keys []APIKey) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{keys: keys}
}

// Authenticate validates the presented key.
func (a *APIKeyAuthenticator) Authenticate(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	for i := range a.keys {
		if a.keys[i].matches(token) {
			return &Identity{Name: a.keys[i].Name, Method: "apikey"}, nil
		}
	}
	return nil, fmt.Errorf("invalid api key: %w", ErrUnauthenticated)
}

func (k *APIKey) matches(token string) bool {
	if k.Hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(k.Value), []byte(token)) == 1
}

// BearerAuthenticator validates HS256-signed bearer tokens against a
// shared secret.
type BearerAuthenticator struct {
	secret []byte
}

// NewBearerAuthenticator creates an authenticator for the given HMAC
// secret.
func NewBearerAuthenticator(secret []byte) *BearerAuthenticator {
	return &BearerAuthenticator{secret: secret}
}

// Authenticate parses and validates the token, returning an identity
// carrying its subject claim.
func (a *BearerAuthenticator) Authenticate(_ context.Context, token string) (*Identity, error) {
	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("invalid bearer token: %w", err)
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		sub = "anonymous"
	}
	return &Identity{Name: sub, Method: "bearer"}, nil
}

// Chain tries each authenticator in order; the first success wins.
type Chain []Authenticator

// Authenticate implements Authenticator.
func (c Chain) Authenticate(ctx context.Context, token string) (*Identity, error) {
	for _, a := range c {
		if id, err := a.Authenticate(ctx, token); err == nil {
			return id, nil
		}
	}
	return nil, ErrUnauthenticated
}

// Verify interface compliance.
var (
	_ Authenticator = (*APIKeyAuthenticator)(nil)
	_ Authenticator = (*BearerAuthenticator)(nil)
	_ Authenticator = (Chain)(nil)
)
