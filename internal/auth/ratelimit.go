package auth

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	Redis *redis.Client
}

const (
	loginMaxAttempts         = 5
	loginAttemptTTL          = 10 * time.Minute
	loginBanTTL              = 1 * time.Hour
	verifyMaxAttempts        = 5
	verifyAttemptTTL         = 10 * time.Minute
	resetMaxAttempts         = 5
	resetAttemptTTL          = 15 * time.Minute
	registerMaxAttemptsIP    = 10
	registerAttemptTTLIP     = 30 * time.Minute
	registerMaxAttemptsEmail = 3
	registerAttemptTTLEmail  = 30 * time.Minute

	EmailCooldown = 60 * time.Second
)

type limit struct {
	key string
	max int64
	ttl time.Duration
}

// hit counts one attempt against every non-empty key. It reports whether any
// key reached its maximum and the longest remaining window.
func (r *RateLimiter) hit(ctx context.Context, limits ...limit) (bool, time.Duration, error) {
	locked := false
	var ttlMax time.Duration

	for _, l := range limits {
		if l.key == "" {
			continue
		}
		attempts, err := r.Redis.Incr(ctx, l.key).Result()
		if err != nil {
			return false, 0, err
		}
		if attempts == 1 {
			r.Redis.Expire(ctx, l.key, l.ttl)
		}
		if attempts >= l.max {
			locked = true
		}
		if ttl, _ := r.Redis.TTL(ctx, l.key).Result(); ttl > ttlMax {
			ttlMax = ttl
		}
	}
	return locked, ttlMax, nil
}

func keyFor(prefix, val string) string {
	if val == "" {
		return ""
	}
	return prefix + strings.ToLower(val)
}

func (r *RateLimiter) IsIPBanned(ctx context.Context, ip string) bool {
	exists, _ := r.Redis.Exists(ctx, keyFor("login_ban:", ip)).Result()
	return exists == 1
}

func (r *RateLimiter) RegisterLoginFailure(ctx context.Context, ip string) error {
	key := keyFor("login_attempts:", ip)
	if key == "" {
		return nil
	}
	locked, _, err := r.hit(ctx, limit{key, loginMaxAttempts, loginAttemptTTL})
	if err != nil {
		return err
	}
	if locked {
		r.Redis.Set(ctx, keyFor("login_ban:", ip), "1", loginBanTTL)
		r.Redis.Expire(ctx, key, loginBanTTL)
	}
	return nil
}

func (r *RateLimiter) ResetLogin(ctx context.Context, ip string) {
	r.Redis.Del(ctx, keyFor("login_attempts:", ip))
}

func (r *RateLimiter) RegisterVerifyAttempt(ctx context.Context, email string) (bool, time.Duration, error) {
	return r.hit(ctx, limit{keyFor("verify_attempts:", email), verifyMaxAttempts, verifyAttemptTTL})
}

func (r *RateLimiter) ResetVerify(ctx context.Context, email string) {
	r.Redis.Del(ctx, keyFor("verify_attempts:", email))
}

func (r *RateLimiter) RegisterResetAttempt(ctx context.Context, email, ip string) (bool, time.Duration, error) {
	return r.hit(ctx,
		limit{keyFor("reset_attempts:", email), resetMaxAttempts, resetAttemptTTL},
		limit{keyFor("reset_attempts_ip:", ip), resetMaxAttempts, resetAttemptTTL},
	)
}

func (r *RateLimiter) RegisterSignUpAttempt(ctx context.Context, email, ip string) (bool, time.Duration, error) {
	return r.hit(ctx,
		limit{keyFor("register_attempts_ip:", ip), registerMaxAttemptsIP, registerAttemptTTLIP},
		limit{keyFor("register_attempts_email:", email), registerMaxAttemptsEmail, registerAttemptTTLEmail},
	)
}

// Cooldown returns the remaining cooldown for key, zero when none is active.
func (r *RateLimiter) Cooldown(ctx context.Context, key string) time.Duration {
	ttl, err := r.Redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}

func (r *RateLimiter) SetCooldown(ctx context.Context, key string, ttl time.Duration) {
	r.Redis.Set(ctx, key, "1", ttl)
}
