package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"skillbase/internal/appctx"
	"skillbase/internal/auth"
	"skillbase/internal/i18n"
)

// sessionUpdateAge is how old a session write may get before a request
// slides its expiry forward.
const sessionUpdateAge = 24 * time.Hour

func requestFields(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("req_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withAppContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := appctx.New(middleware.GetReqID(r.Context()), i18n.LocaleFromRequest(r), s.Config.Public, s.DB)
		next.ServeHTTP(w, r.WithContext(appctx.WithContext(r.Context(), c)))
	})
}

// loadSession attaches the caller's session and user to the app context when
// the request carries a valid session token. Invalid tokens are ignored here;
// requireSession rejects them on protected routes.
func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := appctx.From(r.Context())
		token := auth.SessionTokenFromRequest(r)
		if c == nil || token == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, sess, err := s.resolveSession(r.Context(), token)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("load session")
			writeError(w, http.StatusInternalServerError, "Failed to read session")
			return
		}
		if sess != nil {
			c.SetAuth(user, sess)
			hlog.FromRequest(r).UpdateContext(func(l zerolog.Context) zerolog.Context {
				return l.Str("user_id", user.ID)
			})
			s.refreshSession(w, r, token, sess, user)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) resolveSession(ctx context.Context, token string) (*auth.User, *auth.Session, error) {
	cached, err := s.Cache.Get(ctx, token)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("session cache read failed")
	}
	if cached != nil {
		return &cached.User, &cached.Session, nil
	}

	sess, err := s.Sessions.FindByToken(ctx, token)
	if err != nil || sess == nil {
		return nil, nil, err
	}
	user, err := s.Users.FindByID(ctx, sess.UserID)
	if err != nil || user == nil {
		return nil, nil, err
	}
	if err := s.Cache.Put(ctx, token, *sess, *user); err != nil {
		s.Logger.Warn().Err(err).Msg("session cache write failed")
	}
	return user, sess, nil
}

// refreshSession slides the expiry of a session that has not been written
// for sessionUpdateAge, keeping its original lifetime.
func (s *Server) refreshSession(w http.ResponseWriter, r *http.Request, token string, sess *auth.Session, user *auth.User) {
	now := time.Now()
	if now.Sub(sess.UpdatedAt) < sessionUpdateAge {
		return
	}
	lifetime := sess.ExpiresAt.Sub(sess.UpdatedAt)
	if lifetime <= 0 {
		return
	}
	expires := now.Add(lifetime)
	if err := s.Sessions.Touch(r.Context(), sess.ID, expires); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("refresh session")
		return
	}
	sess.ExpiresAt = expires
	sess.UpdatedAt = now
	_ = s.Cache.Put(r.Context(), token, *sess, *user)
	auth.SetSessionCookie(w, token, expires, s.Config.SecureCookies())
}

func requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !appctx.From(r.Context()).Authenticated() {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
