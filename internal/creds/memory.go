// ABOUTME: In-memory credential store with AEAD-sealed payloads.
// ABOUTME: The reference Store implementation; SQLiteStore persists the same contract.

package creds

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memCredential is one stored credential. The payload is sealed; the raw
// secret never sits in the map.
type memCredential struct {
	id        string
	credType  string
	sealed    []byte
	createdAt time.Time
}

// MemoryStore keeps sealed credentials in process memory.
type MemoryStore struct {
	cipher *cipher
	issuer *tokenIssuer
	grants *grantTable
	logger *slog.Logger

	mu    sync.RWMutex
	creds map[string]*memCredential
}

// MemoryStoreConfig configures a MemoryStore.
type MemoryStoreConfig struct {
	// Key is the 32-byte encryption key. Nil generates a per-process key
	// (with an explicit unrecoverability warning).
	Key []byte
	// TokenTTL is the access token lifetime; zero uses DefaultTokenTTL.
	TokenTTL time.Duration
	Logger   *slog.Logger
}

// NewMemoryStore creates an in-memory credential store.
func NewMemoryStore(cfg MemoryStoreConfig) (*MemoryStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c, err := newCipher(cfg.Key, logger)
	if err != nil {
		return nil, err
	}

	return &MemoryStore{
		cipher: c,
		issuer: newTokenIssuer(c.key, cfg.TokenTTL),
		grants: newGrantTable(),
		logger: logger,
		creds:  make(map[string]*memCredential),
	}, nil
}

// Store implements Store.
func (s *MemoryStore) Store(_ context.Context, credType, rawSecret string) (string, error) {
	sealed, err := s.cipher.seal([]byte(rawSecret))
	if err != nil {
		return "", fmt.Errorf("sealing credential: %w", err)
	}

	cred := &memCredential{
		id:        uuid.New().String(),
		credType:  credType,
		sealed:    sealed,
		createdAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.creds[cred.id] = cred
	s.mu.Unlock()

	s.logger.Debug("stored credential", "id", cred.id, "type", credType)
	return cred.id, nil
}

// IssueToken implements Store.
func (s *MemoryStore) IssueToken(_ context.Context, credentialID string) (string, error) {
	s.mu.RLock()
	_, exists := s.creds[credentialID]
	s.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrCredentialNotFound, credentialID)
	}

	return s.issuer.issue(credentialID)
}

// Revoke implements Store.
func (s *MemoryStore) Revoke(_ context.Context, token string) error {
	return s.issuer.revoke(token)
}

// Resolve implements Store. The permission grant is checked against the
// credential's declared type, not the specific credential.
func (s *MemoryStore) Resolve(_ context.Context, token, requestingConnection string) (string, error) {
	credentialID, err := s.issuer.verify(token)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	cred, exists := s.creds[credentialID]
	s.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrCredentialNotFound, credentialID)
	}

	if !s.grants.allowed(requestingConnection, cred.credType) {
		s.logger.Warn("credential resolve denied",
			"connection", requestingConnection,
			"credential_type", cred.credType,
		)
		return "", fmt.Errorf("%w: connection %q lacks grant for type %q",
			ErrAccessDenied, requestingConnection, cred.credType)
	}

	plaintext, err := s.cipher.open(cred.sealed)
	if err != nil {
		return "", fmt.Errorf("opening credential: %w", err)
	}
	return string(plaintext), nil
}

// Grant implements Store.
func (s *MemoryStore) Grant(connection string, credTypes ...string) {
	s.grants.grant(connection, credTypes...)
	s.logger.Debug("granted credential types", "connection", connection, "types", credTypes)
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, credentialID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.creds[credentialID]; !exists {
		return fmt.Errorf("%w: %s", ErrCredentialNotFound, credentialID)
	}
	delete(s.creds, credentialID)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
