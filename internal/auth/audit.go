package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	EventSignUp        = "sign_up"
	EventSignIn        = "sign_in"
	EventSignInFailed  = "sign_in_failed"
	EventSignOut       = "sign_out"
	EventEmailVerified = "email_verified"
	EventPasswordReset = "password_reset"
	EventAccountLinked = "account_linked"
	EventAccountUnlink = "account_unlinked"
	EventSessionRevoke = "session_revoked"
	EventUserDeleted   = "user_deleted"
)

type AuditEvent struct {
	EventType string         `json:"eventType"`
	UserID    string         `json:"userId,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	IP        string         `json:"ip"`
	UserAgent string         `json:"userAgent"`
	Timestamp time.Time      `json:"timestamp"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// AuditLogger appends events to capped Redis lists, one global and one per
// user.
type AuditLogger struct {
	Redis  *redis.Client
	MaxLen int64
}

func (a *AuditLogger) Log(ctx context.Context, e AuditEvent) error {
	e.Timestamp = time.Now().UTC()
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	keys := []string{"audit"}
	if e.UserID != "" {
		keys = append(keys, "audit:"+e.UserID)
	}

	pipe := a.Redis.Pipeline()
	for _, key := range keys {
		pipe.RPush(ctx, key, data)
		if a.MaxLen > 0 {
			pipe.LTrim(ctx, key, -a.MaxLen, -1)
		}
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to n latest events for the user, newest last.
func (a *AuditLogger) Recent(ctx context.Context, userID string, n int64) ([]AuditEvent, error) {
	raws, err := a.Redis.LRange(ctx, "audit:"+userID, -n, -1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]AuditEvent, 0, len(raws))
	for _, raw := range raws {
		var e AuditEvent
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}
