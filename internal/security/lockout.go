// Package security provides credential hashing and login lockout.
//
// Purpose:
//
//	Passwords are stored as Argon2id hashes. Failed HTTP Basic logins are
//	counted in Redis per username; once the count reaches the configured
//	maximum within the window the username is locked for the lockout
//	duration and further attempts are rejected without verifying the
//	password.
//
// Dependencies:
//   - golang.org/x/crypto/argon2: password hashing
//   - github.com/redis/go-redis/v9: attempt counters and lock markers
//
// Thread Safety:
//
//	LockoutTracker is safe for concurrent use; all state lives in Redis.
//	A tracker without a client disables lockout entirely.
package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutTracker tracks failed authentication attempts and enforces lockout.
type LockoutTracker struct {
	client redis.Cmdable
	cfg    LockoutConfig
}

// LockoutConfig contains lockout policy configuration.
type LockoutConfig struct {
	MaxAttempts     int           // failed attempts before lockout
	LockoutDuration time.Duration // how long a locked username stays locked
	WindowDuration  time.Duration // window for counting attempts
}

// NewLockoutTracker creates a tracker. A nil client disables tracking.
func NewLockoutTracker(client redis.Cmdable, cfg LockoutConfig) *LockoutTracker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = 15 * time.Minute
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	return &LockoutTracker{client: client, cfg: cfg}
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func attemptsKey(identifier string) string {
	return "agency:lockout:attempts:" + normalizeIdentifier(identifier)
}

func lockKey(identifier string) string {
	return "agency:lockout:locked:" + normalizeIdentifier(identifier)
}

// IsLocked reports whether the identifier is currently locked.
func (t *LockoutTracker) IsLocked(ctx context.Context, identifier string) (bool, error) {
	if t == nil || t.client == nil {
		return false, nil
	}
	n, err := t.client.Exists(ctx, lockKey(identifier)).Result()
	if err != nil {
		return false, fmt.Errorf("lockout tracker: check lock: %w", err)
	}
	return n > 0, nil
}

// TrackFailedAttempt increments the failed attempt counter. It returns the
// current count and whether this attempt triggered a lockout.
func (t *LockoutTracker) TrackFailedAttempt(ctx context.Context, identifier string) (int, bool, error) {
	if t == nil || t.client == nil {
		return 0, false, nil
	}

	key := attemptsKey(identifier)
	pipe := t.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, t.cfg.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, false, fmt.Errorf("lockout tracker: increment counter: %w", err)
	}

	count := incr.Val()
	if count < int64(t.cfg.MaxAttempts) {
		return int(count), false, nil
	}

	pipe = t.client.TxPipeline()
	pipe.Set(ctx, lockKey(identifier), time.Now().Add(t.cfg.LockoutDuration).Unix(), t.cfg.LockoutDuration)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return int(count), false, fmt.Errorf("lockout tracker: set lock: %w", err)
	}
	return int(count), true, nil
}

// GetFailedAttemptCount returns the current failed attempt count.
func (t *LockoutTracker) GetFailedAttemptCount(ctx context.Context, identifier string) (int, error) {
	if t == nil || t.client == nil {
		return 0, nil
	}
	count, err := t.client.Get(ctx, attemptsKey(identifier)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lockout tracker: get count: %w", err)
	}
	return count, nil
}

// ClearAttempts resets the counter after a successful login.
func (t *LockoutTracker) ClearAttempts(ctx context.Context, identifier string) error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Del(ctx, attemptsKey(identifier)).Err()
}

// Unlock removes both the counter and the lock marker.
func (t *LockoutTracker) Unlock(ctx context.Context, identifier string) error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Del(ctx, attemptsKey(identifier), lockKey(identifier)).Err()
}
