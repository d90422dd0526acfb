// ABOUTME: Access token issuing, verification, and revocation.
// ABOUTME: HS256 JWTs carrying the credential id, revocable server-side by jti.

package creds

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenIssuer mints and verifies access tokens. Tokens are HS256 JWTs whose
// "sub" claim is the credential id. The token never contains the secret;
// revocation is tracked server-side by the "jti" claim.
type tokenIssuer struct {
	secret []byte
	ttl    time.Duration

	mu      sync.RWMutex
	revoked map[string]struct{}
}

func newTokenIssuer(secret []byte, ttl time.Duration) *tokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &tokenIssuer{
		secret:  secret,
		ttl:     ttl,
		revoked: make(map[string]struct{}),
	}
}

// issue mints a token referencing the given credential id.
func (i *tokenIssuer) issue(credentialID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": credentialID,
		"jti": uuid.New().String(),
		"iat": now.Unix(),
		"exp": now.Add(i.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// verify validates a token and returns the credential id it references.
func (i *tokenIssuer) verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	jti, ok := claims["jti"].(string)
	if !ok || jti == "" {
		return "", ErrInvalidToken
	}
	if i.isRevoked(jti) {
		return "", ErrTokenRevoked
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// revoke invalidates a token. Verification is required first so a malformed
// token cannot pollute the revocation set.
func (i *tokenIssuer) revoke(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if token == nil {
		return ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ErrInvalidToken
	}
	jti, ok := claims["jti"].(string)
	if !ok || jti == "" {
		return ErrInvalidToken
	}

	i.mu.Lock()
	i.revoked[jti] = struct{}{}
	i.mu.Unlock()
	return nil
}

func (i *tokenIssuer) isRevoked(jti string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()

	_, revoked := i.revoked[jti]
	return revoked
}
