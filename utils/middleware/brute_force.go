package middleware

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/gofiber/fiber/v2"
)

// AttemptStore is the subset of the Redis cache used for lockout tracking
type AttemptStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// BruteForceProtection applies progressive login lockouts per client IP
type BruteForceProtection struct {
	store AttemptStore
}

// NewBruteForceProtection creates a new brute force protection instance.
// A nil store disables protection.
func NewBruteForceProtection(store AttemptStore) *BruteForceProtection {
	return &BruteForceProtection{
		store: store,
	}
}

func attemptKey(ip string) string { return fmt.Sprintf("brute_force:attempts:%s", ip) }
func lockKey(ip string) string    { return fmt.Sprintf("brute_force:lock:%s", ip) }

// LockoutFor returns the lockout applied after the given number of failures
func LockoutFor(attempts int64) time.Duration {
	switch {
	case attempts >= 25:
		return 24 * time.Hour
	case attempts >= 10:
		return time.Hour
	case attempts >= 5:
		return 2 * time.Minute
	default:
		return 0
	}
}

// CheckAndRecordAttempt middleware rejects requests from a locked IP
func (b *BruteForceProtection) CheckAndRecordAttempt() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if b == nil || b.store == nil {
			return c.Next()
		}
		ctx := c.UserContext()
		key := lockKey(c.IP())

		locked, err := b.store.Exists(ctx, key)
		if err != nil {
			// Cache outage must not lock everyone out
			log.Printf("[AUTH] brute force check skipped: %v", err)
			return c.Next()
		}

		if locked {
			ttl, _ := b.store.TTL(ctx, key)
			retryAfter := int(ttl.Seconds())
			if retryAfter <= 0 {
				retryAfter = 60
			}

			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", retryAfter))
			return response.TooManyRequests(c, fmt.Sprintf("Too many failed attempts. Try again in %d seconds", retryAfter))
		}

		return c.Next()
	}
}

// RecordFailedAttempt records a failed login and applies a lockout once the
// thresholds in LockoutFor are reached
func (b *BruteForceProtection) RecordFailedAttempt(ctx context.Context, ip string) error {
	if b == nil || b.store == nil {
		return nil
	}

	attempts, err := b.store.Increment(ctx, attemptKey(ip))
	if err != nil {
		return nil
	}

	// 15 minute counting window
	if attempts == 1 {
		_ = b.store.Expire(ctx, attemptKey(ip), 15*time.Minute)
	}

	duration := LockoutFor(attempts)
	if duration == 0 {
		return nil
	}
	return b.store.Set(ctx, lockKey(ip), "locked", duration)
}

// RecordSuccessfulAttempt clears failed attempts on successful login
func (b *BruteForceProtection) RecordSuccessfulAttempt(ctx context.Context, ip string) error {
	if b == nil || b.store == nil {
		return nil
	}
	return b.store.Delete(ctx, attemptKey(ip), lockKey(ip))
}
