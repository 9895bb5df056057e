package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestSessionCache_PutGet(t *testing.T) {
	mr, client := newRedis(t)
	cache := NewSessionCache(client)
	ctx := context.Background()

	sess := Session{ID: "s1", Token: "secret", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}
	user := User{ID: "u1", Email: "a@example.com"}
	require.NoError(t, cache.Put(ctx, "tok", sess, user))

	assert.True(t, mr.Exists("session:"+HashString("tok")))
	assert.False(t, mr.Exists("session:tok"))

	got, err := cache.Get(ctx, "tok")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s1", got.Session.ID)
	assert.Empty(t, got.Session.Token)
	assert.Equal(t, "a@example.com", got.User.Email)

	ttl := mr.TTL("session:" + HashString("tok"))
	assert.LessOrEqual(t, ttl, defaultCacheTTL)
}

func TestSessionCache_TTLBoundedBySessionExpiry(t *testing.T) {
	mr, client := newRedis(t)
	cache := NewSessionCache(client)

	sess := Session{ID: "s1", UserID: "u1", ExpiresAt: time.Now().Add(30 * time.Second)}
	require.NoError(t, cache.Put(context.Background(), "tok", sess, User{ID: "u1"}))

	assert.LessOrEqual(t, mr.TTL("session:"+HashString("tok")), 30*time.Second)
}

func TestSessionCache_SkipsExpiredSession(t *testing.T) {
	mr, client := newRedis(t)
	cache := NewSessionCache(client)

	sess := Session{ID: "s1", UserID: "u1", ExpiresAt: time.Now().Add(-time.Second)}
	require.NoError(t, cache.Put(context.Background(), "tok", sess, User{ID: "u1"}))
	assert.False(t, mr.Exists("session:"+HashString("tok")))
}

func TestSessionCache_Miss(t *testing.T) {
	_, client := newRedis(t)
	got, err := NewSessionCache(client).Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionCache_InvalidateUser(t *testing.T) {
	mr, client := newRedis(t)
	cache := NewSessionCache(client)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, cache.Put(ctx, "t1", Session{ID: "s1", UserID: "u1", ExpiresAt: exp}, User{ID: "u1"}))
	require.NoError(t, cache.Put(ctx, "t2", Session{ID: "s2", UserID: "u1", ExpiresAt: exp}, User{ID: "u1"}))
	require.NoError(t, cache.Put(ctx, "t3", Session{ID: "s3", UserID: "u2", ExpiresAt: exp}, User{ID: "u2"}))

	require.NoError(t, cache.InvalidateUser(ctx, "u1"))

	assert.False(t, mr.Exists("session:"+HashString("t1")))
	assert.False(t, mr.Exists("session:"+HashString("t2")))
	assert.True(t, mr.Exists("session:"+HashString("t3")))
	assert.False(t, mr.Exists("user_sessions:u1"))
}

func TestSessionCache_InvalidateSession(t *testing.T) {
	mr, client := newRedis(t)
	cache := NewSessionCache(client)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, cache.Put(ctx, "t1", Session{ID: "s1", UserID: "u1", ExpiresAt: exp}, User{ID: "u1"}))
	require.NoError(t, cache.Put(ctx, "t2", Session{ID: "s2", UserID: "u1", ExpiresAt: exp}, User{ID: "u1"}))

	require.NoError(t, cache.InvalidateSession(ctx, "u1", "s2"))

	assert.True(t, mr.Exists("session:"+HashString("t1")))
	assert.False(t, mr.Exists("session:"+HashString("t2")))
}

func TestRateLimiter_LoginBan(t *testing.T) {
	mr, client := newRedis(t)
	rl := &RateLimiter{Redis: client}
	ctx := context.Background()

	for i := 0; i < loginMaxAttempts-1; i++ {
		require.NoError(t, rl.RegisterLoginFailure(ctx, "1.2.3.4"))
	}
	assert.False(t, rl.IsIPBanned(ctx, "1.2.3.4"))

	require.NoError(t, rl.RegisterLoginFailure(ctx, "1.2.3.4"))
	assert.True(t, rl.IsIPBanned(ctx, "1.2.3.4"))
	assert.False(t, rl.IsIPBanned(ctx, "5.6.7.8"))

	mr.FastForward(loginBanTTL + time.Second)
	assert.False(t, rl.IsIPBanned(ctx, "1.2.3.4"))
}

func TestRateLimiter_ResetLogin(t *testing.T) {
	mr, client := newRedis(t)
	rl := &RateLimiter{Redis: client}
	ctx := context.Background()

	require.NoError(t, rl.RegisterLoginFailure(ctx, "1.2.3.4"))
	rl.ResetLogin(ctx, "1.2.3.4")
	assert.False(t, mr.Exists("login_attempts:1.2.3.4"))
}

func TestRateLimiter_SignUpLocksPerEmail(t *testing.T) {
	_, client := newRedis(t)
	rl := &RateLimiter{Redis: client}
	ctx := context.Background()

	var locked bool
	var ttl time.Duration
	var err error
	for i := 0; i < registerMaxAttemptsEmail; i++ {
		locked, ttl, err = rl.RegisterSignUpAttempt(ctx, "A@example.com", "1.1.1.1")
		require.NoError(t, err)
	}
	assert.True(t, locked)
	assert.Greater(t, ttl, time.Duration(0))

	locked, _, err = rl.RegisterSignUpAttempt(ctx, "b@example.com", "2.2.2.2")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestRateLimiter_Cooldown(t *testing.T) {
	mr, client := newRedis(t)
	rl := &RateLimiter{Redis: client}
	ctx := context.Background()

	assert.Zero(t, rl.Cooldown(ctx, "resend:a"))
	rl.SetCooldown(ctx, "resend:a", EmailCooldown)
	assert.Greater(t, rl.Cooldown(ctx, "resend:a"), time.Duration(0))

	mr.FastForward(EmailCooldown)
	assert.Zero(t, rl.Cooldown(ctx, "resend:a"))
}

func TestAuditLogger_CapsPerUserList(t *testing.T) {
	_, client := newRedis(t)
	audit := &AuditLogger{Redis: client, MaxLen: 2}
	ctx := context.Background()

	for _, ev := range []string{EventSignUp, EventSignIn, EventSignOut} {
		require.NoError(t, audit.Log(ctx, AuditEvent{EventType: ev, UserID: "u1"}))
	}

	events, err := audit.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventSignIn, events[0].EventType)
	assert.Equal(t, EventSignOut, events[1].EventType)
	assert.False(t, events[1].Timestamp.IsZero())
}
