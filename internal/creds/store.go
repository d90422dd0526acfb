// ABOUTME: Credential store interface, sentinel errors, and permission grants.
// ABOUTME: Implementations must encrypt payloads and enforce type-scoped access.

package creds

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Credential store errors.
var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrTokenExpired       = errors.New("token expired")
)

// DefaultTokenTTL is the access token lifetime when none is configured.
const DefaultTokenTTL = 15 * time.Minute

// Store is the credential manager contract. Implementations own all
// credential and token state and are the only components permitted to
// decrypt a payload.
type Store interface {
	// Store encrypts and saves a secret under a declared type, returning
	// the credential id.
	Store(ctx context.Context, credType, rawSecret string) (string, error)

	// IssueToken mints a short-lived token referencing one credential.
	IssueToken(ctx context.Context, credentialID string) (string, error)

	// Revoke invalidates a previously issued token.
	Revoke(ctx context.Context, token string) error

	// Resolve exchanges a token for the raw secret on behalf of a
	// connection. Fails with ErrAccessDenied when the connection lacks a
	// grant for the credential's type.
	Resolve(ctx context.Context, token, requestingConnection string) (string, error)

	// Grant allows a connection to resolve credentials of the given types.
	Grant(connection string, credTypes ...string)

	// Delete removes a credential. Outstanding tokens for it stop resolving.
	Delete(ctx context.Context, credentialID string) error

	// Close releases any underlying resources. Safe to call multiple times.
	Close() error
}

// grantTable tracks which credential types each connection may resolve.
// Grants scope types, never specific credentials.
type grantTable struct {
	mu     sync.RWMutex
	grants map[string]map[string]struct{}
}

func newGrantTable() *grantTable {
	return &grantTable{grants: make(map[string]map[string]struct{})}
}

func (g *grantTable) grant(connection string, credTypes ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	set, ok := g.grants[connection]
	if !ok {
		set = make(map[string]struct{})
		g.grants[connection] = set
	}
	for _, t := range credTypes {
		set[t] = struct{}{}
	}
}

func (g *grantTable) allowed(connection, credType string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.grants[connection][credType]
	return ok
}
