// ABOUTME: SQLite-backed credential store using modernc.org/sqlite.
// ABOUTME: Persists sealed payloads only; the encryption key never touches disk.

package creds

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists sealed credentials in a SQLite database. Token state
// and permission grants remain in memory: grants come from connection
// descriptors at startup, and tokens are deliberately short-lived.
type SQLiteStore struct {
	db     *sql.DB
	cipher *cipher
	issuer *tokenIssuer
	grants *grantTable
	logger *slog.Logger
}

// SQLiteStoreConfig configures a SQLiteStore.
type SQLiteStoreConfig struct {
	Path string
	// Key is the 32-byte encryption key. Nil generates a per-process key,
	// which makes previously persisted secrets unrecoverable; the warning
	// logged by the cipher applies doubly here.
	Key      []byte
	TokenTTL time.Duration
	Logger   *slog.Logger
}

// NewSQLiteStore opens (or creates) a credential database at the given path.
// The schema is created automatically, as are parent directories.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "creds")
	}

	c, err := newCipher(cfg.Key, logger)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			sealed BLOB NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_credentials_type
			ON credentials(type);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		cipher: c,
		issuer: newTokenIssuer(c.key, cfg.TokenTTL),
		grants: newGrantTable(),
		logger: logger,
	}

	logger.Info("credential store initialized", "path", cfg.Path)
	return s, nil
}

// Store implements Store.
func (s *SQLiteStore) Store(ctx context.Context, credType, rawSecret string) (string, error) {
	sealed, err := s.cipher.seal([]byte(rawSecret))
	if err != nil {
		return "", fmt.Errorf("sealing credential: %w", err)
	}

	id := uuid.New().String()
	query := `INSERT INTO credentials (id, type, sealed, created_at) VALUES (?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query, id, credType, sealed, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("inserting credential: %w", err)
	}

	s.logger.Debug("stored credential", "id", id, "type", credType)
	return id, nil
}

// IssueToken implements Store.
func (s *SQLiteStore) IssueToken(ctx context.Context, credentialID string) (string, error) {
	if _, err := s.lookup(ctx, credentialID); err != nil {
		return "", err
	}
	return s.issuer.issue(credentialID)
}

// Revoke implements Store.
func (s *SQLiteStore) Revoke(_ context.Context, token string) error {
	return s.issuer.revoke(token)
}

// Resolve implements Store.
func (s *SQLiteStore) Resolve(ctx context.Context, token, requestingConnection string) (string, error) {
	credentialID, err := s.issuer.verify(token)
	if err != nil {
		return "", err
	}

	credType, sealed, err := s.lookupSealed(ctx, credentialID)
	if err != nil {
		return "", err
	}

	if !s.grants.allowed(requestingConnection, credType) {
		s.logger.Warn("credential resolve denied",
			"connection", requestingConnection,
			"credential_type", credType,
		)
		return "", fmt.Errorf("%w: connection %q lacks grant for type %q",
			ErrAccessDenied, requestingConnection, credType)
	}

	plaintext, err := s.cipher.open(sealed)
	if err != nil {
		return "", fmt.Errorf("opening credential: %w", err)
	}
	return string(plaintext), nil
}

// Grant implements Store.
func (s *SQLiteStore) Grant(connection string, credTypes ...string) {
	s.grants.grant(connection, credTypes...)
	s.logger.Debug("granted credential types", "connection", connection, "types", credTypes)
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, credentialID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, credentialID)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrCredentialNotFound, credentialID)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// lookup returns the credential's type, or ErrCredentialNotFound.
func (s *SQLiteStore) lookup(ctx context.Context, credentialID string) (string, error) {
	var credType string
	err := s.db.QueryRowContext(ctx,
		`SELECT type FROM credentials WHERE id = ?`, credentialID).Scan(&credType)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrCredentialNotFound, credentialID)
	}
	if err != nil {
		return "", fmt.Errorf("querying credential: %w", err)
	}
	return credType, nil
}

// lookupSealed returns the credential's type and sealed payload.
func (s *SQLiteStore) lookupSealed(ctx context.Context, credentialID string) (string, []byte, error) {
	var credType string
	var sealed []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT type, sealed FROM credentials WHERE id = ?`, credentialID).Scan(&credType, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, credentialID)
	}
	if err != nil {
		return "", nil, fmt.Errorf("querying credential: %w", err)
	}
	return credType, sealed, nil
}

var _ Store = (*SQLiteStore)(nil)
