package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionCachePrefix = "session:"
	userSessionsPrefix = "user_sessions:"
	defaultCacheTTL    = 5 * time.Minute
)

// CachedSession is what SessionCache stores per token hash.
type CachedSession struct {
	Session Session `json:"session"`
	User    User    `json:"user"`
}

// SessionCache keeps recently validated sessions in Redis so authenticated
// requests skip the sessions/users join. Postgres stays the source of truth:
// entries live at most TTL and never past the session's expiry.
type SessionCache struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewSessionCache(client *redis.Client) *SessionCache {
	return &SessionCache{Redis: client, TTL: defaultCacheTTL}
}

func (c *SessionCache) Get(ctx context.Context, token string) (*CachedSession, error) {
	raw, err := c.Redis.Get(ctx, sessionCachePrefix+HashString(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cs CachedSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, err
	}
	if cs.Session.Expired(time.Now()) {
		_ = c.Invalidate(ctx, token)
		return nil, nil
	}
	return &cs, nil
}

func (c *SessionCache) Put(ctx context.Context, token string, sess Session, user User) error {
	base := c.TTL
	if base <= 0 {
		base = defaultCacheTTL
	}
	ttl := base
	if until := time.Until(sess.ExpiresAt); until < ttl {
		ttl = until
	}
	if ttl <= 0 {
		return nil
	}

	sess.Token = ""
	raw, err := json.Marshal(CachedSession{Session: sess, User: user})
	if err != nil {
		return err
	}

	hash := HashString(token)
	indexKey := userSessionsPrefix + user.ID
	pipe := c.Redis.TxPipeline()
	pipe.Set(ctx, sessionCachePrefix+hash, raw, ttl)
	pipe.SAdd(ctx, indexKey, hash)
	pipe.Expire(ctx, indexKey, base+time.Minute)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *SessionCache) Invalidate(ctx context.Context, token string) error {
	return c.Redis.Del(ctx, sessionCachePrefix+HashString(token)).Err()
}

// InvalidateUser drops every cached session of the user.
func (c *SessionCache) InvalidateUser(ctx context.Context, userID string) error {
	indexKey := userSessionsPrefix + userID
	hashes, err := c.Redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return err
	}
	pipe := c.Redis.TxPipeline()
	for _, h := range hashes {
		pipe.Del(ctx, sessionCachePrefix+h)
	}
	pipe.Del(ctx, indexKey)
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateSession drops one cached session identified by its id.
func (c *SessionCache) InvalidateSession(ctx context.Context, userID, sessionID string) error {
	indexKey := userSessionsPrefix + userID
	hashes, err := c.Redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return err
	}
	for _, h := range hashes {
		raw, err := c.Redis.Get(ctx, sessionCachePrefix+h).Bytes()
		if errors.Is(err, redis.Nil) {
			c.Redis.SRem(ctx, indexKey, h)
			continue
		}
		if err != nil {
			return err
		}
		var cs CachedSession
		if json.Unmarshal(raw, &cs) == nil && cs.Session.ID == sessionID {
			pipe := c.Redis.TxPipeline()
			pipe.Del(ctx, sessionCachePrefix+h)
			pipe.SRem(ctx, indexKey, h)
			_, err = pipe.Exec(ctx)
			return err
		}
	}
	return nil
}
