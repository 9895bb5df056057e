// Package appctx holds the per-request application context: who is calling,
// which locale and public settings apply, and the database handle to use.
// Middleware builds it once per request and handlers read it with From.
package appctx

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"skillbase/internal/auth"
	"skillbase/internal/config"
	"skillbase/internal/database"
)

type ctxKey struct{}

type Context struct {
	RequestID string
	Locale    string
	Env       config.PublicEnv
	DB        database.DBTX

	User    *auth.User
	Session *auth.Session

	loads singleflight.Group
}

func New(requestID, locale string, env config.PublicEnv, db database.DBTX) *Context {
	return &Context{RequestID: requestID, Locale: locale, Env: env, DB: db}
}

func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// From returns the request's application context, or nil outside a request
// that went through the middleware.
func From(ctx context.Context) *Context {
	c, _ := ctx.Value(ctxKey{}).(*Context)
	return c
}

func (c *Context) SetAuth(user *auth.User, session *auth.Session) {
	c.User = user
	c.Session = session
}

func (c *Context) Authenticated() bool {
	return c != nil && c.User != nil && c.Session != nil
}

// Load runs fn once for concurrent callers sharing key within this request.
// Results are not memoized past the call, so the group is empty again once
// every caller has returned.
func Load[T any](c *Context, key string, fn func() (T, error)) (T, error) {
	v, err, _ := c.loads.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("load %q: got %T", key, v)
	}
	return out, nil
}
