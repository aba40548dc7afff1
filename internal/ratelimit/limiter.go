package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fixed-window limits. The limiter is a best-effort brute-force brake, not a
// security invariant; replay prevention lives in the login-token store.
const (
	ipWindow           = 15 * time.Minute
	ipLimit            = 10
	emailCooldownTTL   = time.Minute
	emailAttemptWindow = 15 * time.Minute
	emailAttemptLimit  = 5
)

// Limiter throttles authentication requests using Redis counters, so the
// limits hold across instances sharing the same Redis.
type Limiter struct {
	client *redis.Client
}

func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

func ipKey(ip, purpose string) string {
	return fmt.Sprintf("ratelimit:ip:%s:%s", purpose, ip)
}

func emailCooldownKey(email string) string {
	return fmt.Sprintf("ratelimit:cooldown:%s", email)
}

func emailAttemptsKey(email string) string {
	return fmt.Sprintf("ratelimit:attempts:%s", email)
}

// CheckIPRateLimit reports whether the IP exhausted its window for a purpose
func (l *Limiter) CheckIPRateLimit(ctx context.Context, ip, purpose string) (bool, error) {
	count, err := l.client.Get(ctx, ipKey(ip, purpose)).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check IP rate limit: %w", err)
	}
	return count >= ipLimit, nil
}

// RecordIPRequest counts a request against the IP's window
func (l *Limiter) RecordIPRequest(ctx context.Context, ip, purpose string) error {
	key := ipKey(ip, purpose)

	pipe := l.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ipWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record IP request: %w", err)
	}

	return nil
}

// CheckEmailCooldown reports whether the email recently requested a login
func (l *Limiter) CheckEmailCooldown(ctx context.Context, email string) (bool, error) {
	exists, err := l.client.Exists(ctx, emailCooldownKey(email)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check email cooldown: %w", err)
	}
	return exists > 0, nil
}

// SetEmailCooldown starts the resend cooldown for an email
func (l *Limiter) SetEmailCooldown(ctx context.Context, email string) error {
	if err := l.client.Set(ctx, emailCooldownKey(email), "1", emailCooldownTTL).Err(); err != nil {
		return fmt.Errorf("failed to set email cooldown: %w", err)
	}
	return nil
}

// CheckEmailAttempts reports whether the email exhausted its verification
// attempts. Caps guessing of the short numeric code.
func (l *Limiter) CheckEmailAttempts(ctx context.Context, email string) (bool, error) {
	count, err := l.client.Get(ctx, emailAttemptsKey(email)).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check email attempts: %w", err)
	}
	return count >= emailAttemptLimit, nil
}

// RecordEmailAttempt counts a verification attempt for the email
func (l *Limiter) RecordEmailAttempt(ctx context.Context, email string) error {
	key := emailAttemptsKey(email)

	pipe := l.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, emailAttemptWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record email attempt: %w", err)
	}

	return nil
}

// ClearEmailAttempts resets the attempt counter after a successful login
func (l *Limiter) ClearEmailAttempts(ctx context.Context, email string) error {
	if err := l.client.Del(ctx, emailAttemptsKey(email)).Err(); err != nil {
		return fmt.Errorf("failed to clear email attempts: %w", err)
	}
	return nil
}
