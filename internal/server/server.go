package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"skillbase/internal/auth"
	"skillbase/internal/config"
	"skillbase/internal/database"
	"skillbase/internal/pages"
	"skillbase/internal/routes"
)

// Mailer delivers rendered emails. *email.Sender implements it.
type Mailer interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

type Server struct {
	Config        config.Config
	DB            database.DBTX
	Redis         *redis.Client
	Users         *auth.UserRepository
	Sessions      *auth.SessionRepository
	Accounts      *auth.AccountRepository
	Verifications *auth.VerificationRepository
	Cache         *auth.SessionCache
	RateLimiter   *auth.RateLimiter
	Audit         *auth.AuditLogger
	Hasher        *auth.MigratingHasher
	Mailer        Mailer
	Pages         *pages.Renderer
	Routes        []routes.Route
	Logger        zerolog.Logger

	tokens         *auth.TokenCipher
	validate       *validator.Validate
	trustedProxies []net.IPNet
	oauth          map[string]*oauthProvider
}

type Deps struct {
	DB     database.DBTX
	Redis  *redis.Client
	Mailer Mailer
	Pages  *pages.Renderer
	Routes []routes.Route
	Logger zerolog.Logger
}

func NewServer(cfg config.Config, deps Deps) (*Server, error) {
	hasher, err := auth.NewPasswordHasher(cfg.PasswordHasher)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokenCipher(cfg.TokenKey)
	if err != nil {
		return nil, err
	}

	return &Server{
		Config:         cfg,
		DB:             deps.DB,
		Redis:          deps.Redis,
		Users:          auth.NewUserRepository(deps.DB),
		Sessions:       auth.NewSessionRepository(deps.DB),
		Accounts:       auth.NewAccountRepository(deps.DB),
		Verifications:  auth.NewVerificationRepository(deps.DB),
		Cache:          auth.NewSessionCache(deps.Redis),
		RateLimiter:    &auth.RateLimiter{Redis: deps.Redis},
		Audit:          &auth.AuditLogger{Redis: deps.Redis, MaxLen: 500},
		Hasher:         hasher,
		Mailer:         deps.Mailer,
		Pages:          deps.Pages,
		Routes:         deps.Routes,
		Logger:         deps.Logger,
		tokens:         tokens,
		validate:       newValidator(),
		trustedProxies: parseProxyCIDRs(cfg.TrustedProxies),
		oauth:          newOAuthProviders(cfg.OAuth),
	}, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(s.Logger))
	r.Use(requestFields)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(secureHeaders)
	r.Use(s.withAppContext)
	r.Use(s.loadSession)

	s.handle(r, http.MethodGet, "/healthz", s.handleHealth)
	s.handle(r, http.MethodGet, "/api/routes", s.handleRoutes)

	s.handle(r, http.MethodPost, "/api/auth/sign-up", s.handleSignUp)
	s.handle(r, http.MethodPost, "/api/auth/verify-email", s.handleVerifyEmail)
	s.handle(r, http.MethodPost, "/api/auth/resend-verification", s.handleResendVerification)
	s.handle(r, http.MethodPost, "/api/auth/sign-in", s.handleSignIn)
	s.handle(r, http.MethodPost, "/api/auth/sign-out", s.handleSignOut)
	s.handle(r, http.MethodPost, "/api/auth/forgot-password", s.handleForgotPassword)
	s.handle(r, http.MethodPost, "/api/auth/reset-password", s.handleResetPassword)

	s.handle(r, http.MethodGet, "/api/oauth/{provider}/start", s.handleOAuthStart)
	s.handle(r, http.MethodGet, "/api/oauth/{provider}/callback", s.handleOAuthCallback)

	s.handle(r, http.MethodGet, "/api/auth/me", s.handleMe)
	s.handle(r, http.MethodGet, "/api/sessions", s.handleListSessions)
	s.handle(r, http.MethodDelete, "/api/sessions/{id}", s.handleDeleteSession)
	s.handle(r, http.MethodPatch, "/api/profile", s.handleUpdateProfile)
	s.handle(r, http.MethodDelete, "/api/profile", s.handleDeleteProfile)
	s.handle(r, http.MethodGet, "/api/accounts", s.handleListAccounts)
	s.handle(r, http.MethodDelete, "/api/accounts/{id}", s.handleUnlinkAccount)
	s.handle(r, http.MethodGet, "/api/activity", s.handleActivity)

	mounted := routes.Mount(r, s.Routes, s.contentHandler)
	s.Logger.Debug().Int("routes", mounted).Msg("content routes mounted")

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

// handle registers h with the access level listed for method and path.
func (s *Server) handle(r chi.Router, method, path string, h http.HandlerFunc) {
	if accessLevel(method, path) == AccessUser {
		r.With(requireSession).Method(method, path, h)
		return
	}
	r.Method(method, path, h)
}
