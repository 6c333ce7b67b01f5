// Package recovery issues and redeems single-use password reset tokens.
//
// Purpose:
//
//	Forgot-password requests produce an opaque token bound to a username.
//	Redeeming the token with a new password resets the credential through the
//	accounts manager. The flow never reveals whether the username exists.
//
// Dependencies:
//   - github.com/redis/go-redis/v9: shared token store for multi-instance deployments
//   - internal/accounts: credential reset and new-password rules
//
// Key Responsibilities:
//   - TokenStore contract with in-memory and Redis implementations
//   - Sweeper: periodic removal of expired tokens from the memory store
//   - Service: forgot / verify / reset operations used by the HTTP layer
//
// Thread Safety:
//
//	Every type in this package is safe for concurrent use.
package recovery

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidToken is returned when a token is unknown, expired or already used.
var ErrInvalidToken = errors.New("recovery: invalid or expired token")

// TokenStore keeps reset tokens until they are consumed or expire.
type TokenStore interface {
	// Issue stores a fresh token for username, valid for ttl.
	Issue(ctx context.Context, username string, ttl time.Duration) (string, error)
	// Lookup returns the username bound to a live token without consuming it.
	Lookup(ctx context.Context, token string) (string, bool, error)
	// Consume removes the token and returns its username. ok is false for
	// unknown and expired tokens.
	Consume(ctx context.Context, token string) (string, bool, error)
	// Sweep drops tokens that expired at or before now.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

const tokenBytes = 32

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type memoryEntry struct {
	username  string
	expiresAt time.Time
}

// MemoryStore is a process-local TokenStore. Tokens do not survive a restart.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]memoryEntry
	now    func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) Issue(_ context.Context, username string, ttl time.Duration) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = memoryEntry{username: username, expiresAt: s.now().Add(ttl)}
	return token, nil
}

func (s *MemoryStore) Lookup(_ context.Context, token string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[token]
	if !ok || !s.now().Before(entry.expiresAt) {
		return "", false, nil
	}
	return entry.username, true, nil
}

func (s *MemoryStore) Consume(_ context.Context, token string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[token]
	if !ok {
		return "", false, nil
	}
	delete(s.tokens, token)
	if !s.now().Before(entry.expiresAt) {
		return "", false, nil
	}
	return entry.username, true, nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, entry := range s.tokens {
		if !now.Before(entry.expiresAt) {
			delete(s.tokens, token)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored tokens, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
