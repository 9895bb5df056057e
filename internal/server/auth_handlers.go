package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/hlog"

	"skillbase/internal/appctx"
	"skillbase/internal/auth"
	"skillbase/internal/database"
	"skillbase/internal/i18n"
)

const (
	verificationTTL      = 10 * time.Minute
	shortSessionTTL      = 24 * time.Hour
	emailVerificationKey = "email-verification:"
)

type signUpRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128,password"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !s.bind(w, r, &req) {
		return
	}

	ctx := r.Context()
	c := appctx.From(ctx)
	log := hlog.FromRequest(r)
	ip := clientIP(r, s.trustedProxies)
	if locked, ttl, err := s.RateLimiter.RegisterSignUpAttempt(ctx, req.Email, ip); err != nil {
		log.Error().Err(err).Msg("sign-up: rate limit check failed")
		writeError(w, http.StatusInternalServerError, "Registration throttled")
		return
	} else if locked {
		writeCooldown(w, "Too many signup attempts. Try again later.", ttl.Seconds())
		return
	}

	existing, err := s.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		log.Error().Err(err).Msg("sign-up: lookup by email failed")
		writeError(w, http.StatusInternalServerError, "Failed to check user")
		return
	}
	if existing != nil {
		if !existing.EmailVerified {
			writeError(w, http.StatusConflict, "User already exists. Please verify your email or sign in to resend the code.")
			return
		}
		writeError(w, http.StatusConflict, "A user with this email already exists.")
		return
	}

	hashed, err := s.Hasher.Hash(req.Password)
	if err != nil {
		log.Error().Err(err).Msg("sign-up: hash failed")
		writeError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	var user *auth.User
	err = database.InTx(ctx, s.DB, func(tx pgx.Tx) error {
		created, err := auth.NewUserRepository(tx).Create(ctx, auth.CreateUserParams{
			Name:          req.Name,
			Email:         req.Email,
			EmailVerified: s.Config.NoEmailVerify,
		})
		if err != nil {
			return err
		}
		if _, err := auth.NewAccountRepository(tx).CreateCredential(ctx, created.ID, hashed); err != nil {
			return err
		}
		user = created
		return nil
	})
	if errors.Is(err, auth.ErrEmailTaken) {
		writeError(w, http.StatusConflict, "A user with this email already exists.")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("sign-up: create user failed")
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	verificationRequired := !s.Config.NoEmailVerify
	if verificationRequired {
		if err := s.issueVerification(ctx, user, c.Locale); err != nil {
			log.Error().Err(err).Msg("sign-up: issue verification failed")
			writeError(w, http.StatusInternalServerError, "Registration failed: could not send verification code")
			return
		}
	}
	s.audit(r, auth.EventSignUp, user.ID, nil)

	message := "Registration successful! Please check your email to verify your account."
	if !verificationRequired {
		message = "Registration successful! You can now sign in."
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":                   message,
		"emailVerificationRequired": verificationRequired,
		"user":                      user,
	})
}

type verifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !s.bind(w, r, &req) {
		return
	}

	ctx := r.Context()
	log := hlog.FromRequest(r)
	locked, ttl, err := s.RateLimiter.RegisterVerifyAttempt(ctx, req.Email)
	if err != nil {
		log.Error().Err(err).Msg("verify-email: rate limit check failed")
		writeError(w, http.StatusInternalServerError, "Failed to verify email")
		return
	}
	if locked {
		writeCooldown(w, "Too many verification attempts. Try again later.", ttl.Seconds())
		return
	}

	v, err := s.Verifications.Consume(ctx, emailVerificationKey+auth.NormalizeEmail(req.Email), auth.HashString(req.Code))
	if err != nil {
		log.Error().Err(err).Msg("verify-email: consume failed")
		writeError(w, http.StatusInternalServerError, "Failed to verify email")
		return
	}
	if v == nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired code.")
		return
	}

	user, err := s.Users.FindByEmail(ctx, req.Email)
	if err != nil || user == nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired code.")
		return
	}
	if err := s.Users.SetEmailVerified(ctx, user.ID); err != nil {
		log.Error().Err(err).Msg("verify-email: update failed")
		writeError(w, http.StatusInternalServerError, "Failed to mark email verified")
		return
	}
	_ = s.Cache.InvalidateUser(ctx, user.ID)
	s.RateLimiter.ResetVerify(ctx, req.Email)
	s.audit(r, auth.EventEmailVerified, user.ID, nil)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Email successfully verified."})
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.bind(w, r, &req) {
		return
	}

	ctx := r.Context()
	c := appctx.From(ctx)
	cooldownKey := "resend_cooldown:" + auth.NormalizeEmail(req.Email)
	if ttl := s.RateLimiter.Cooldown(ctx, cooldownKey); ttl > 0 {
		writeCooldown(w, "Please wait before requesting another code.", ttl.Seconds())
		return
	}
	if locked, ttl, err := s.RateLimiter.RegisterSignUpAttempt(ctx, req.Email, clientIP(r, s.trustedProxies)); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to process request")
		return
	} else if locked {
		writeCooldown(w, "Too many attempts. Try again later.", ttl.Seconds())
		return
	}

	user, err := s.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}
	if user != nil && !user.EmailVerified {
		if err := s.issueVerification(ctx, user, c.Locale); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("resend-verification: send failed")
			writeError(w, http.StatusInternalServerError, "Failed to send verification code")
			return
		}
	}
	s.RateLimiter.SetCooldown(ctx, cooldownKey, auth.EmailCooldown)

	writeJSON(w, http.StatusOK, map[string]string{"message": "If the account exists, a verification code has been sent."})
}

type signInRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,max=128"`
	RememberMe bool   `json:"rememberMe"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !s.bind(w, r, &req) {
		return
	}

	ctx := r.Context()
	c := appctx.From(ctx)
	log := hlog.FromRequest(r)
	ip := clientIP(r, s.trustedProxies)

	if s.RateLimiter.IsIPBanned(ctx, ip) {
		writeError(w, http.StatusForbidden, "IP_BANNED")
		return
	}

	user, err := s.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		log.Error().Err(err).Msg("sign-in: lookup failed")
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	var cred *auth.Account
	if user != nil {
		if cred, err = s.Accounts.FindCredential(ctx, user.ID); err != nil {
			log.Error().Err(err).Msg("sign-in: credential lookup failed")
			writeError(w, http.StatusInternalServerError, "Login failed")
			return
		}
	}
	if cred == nil || cred.Password == nil || !s.Hasher.Compare(*cred.Password, req.Password) {
		_ = s.RateLimiter.RegisterLoginFailure(ctx, ip)
		userID := ""
		if user != nil {
			userID = user.ID
		}
		s.audit(r, auth.EventSignInFailed, userID, nil)
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS")
		return
	}

	if !user.EmailVerified && !s.Config.NoEmailVerify {
		writeError(w, http.StatusForbidden, "EMAIL_NOT_VERIFIED")
		return
	}

	if s.Hasher.NeedsRehash(*cred.Password) {
		if hashed, err := s.Hasher.Hash(req.Password); err == nil {
			if err := s.Accounts.UpdatePassword(ctx, user.ID, hashed); err != nil {
				log.Warn().Err(err).Msg("sign-in: rehash failed")
			}
		}
	}

	ttl := s.Config.SessionTTL
	if !req.RememberMe && ttl > shortSessionTTL {
		ttl = shortSessionTTL
	}
	sess, err := s.startSession(w, r, user, ttl)
	if err != nil {
		log.Error().Err(err).Msg("sign-in: session create failed")
		writeError(w, http.StatusInternalServerError, "SESSION_CREATE_FAILED")
		return
	}

	s.RateLimiter.ResetLogin(ctx, ip)
	s.audit(r, auth.EventSignIn, user.ID, nil)
	if err := s.sendSignInAlert(ctx, user, sess, c.Locale); err != nil {
		log.Warn().Err(err).Msg("sign-in: alert email failed")
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":    user,
		"session": sess,
	})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if token := auth.SessionTokenFromRequest(r); token != "" {
		if err := s.Sessions.DeleteByToken(ctx, token); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("sign-out: delete session failed")
		}
		_ = s.Cache.Invalidate(ctx, token)
	}
	if c := appctx.From(ctx); c.Authenticated() {
		s.audit(r, auth.EventSignOut, c.User.ID, nil)
	}
	auth.ClearSessionCookie(w, s.Config.SecureCookies())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	c := appctx.From(r.Context())
	accounts, err := s.userAccounts(r.Context(), c)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load accounts")
		return
	}

	providers := make([]string, 0, len(accounts))
	hasPassword := false
	for _, acc := range accounts {
		providers = append(providers, acc.ProviderID)
		if acc.ProviderID == auth.CredentialProvider {
			hasPassword = true
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":        c.User,
		"session":     c.Session,
		"providers":   providers,
		"hasPassword": hasPassword,
	})
}

// userAccounts loads the caller's accounts once per request no matter how
// many handlers or helpers ask for them concurrently.
func (s *Server) userAccounts(ctx context.Context, c *appctx.Context) ([]auth.Account, error) {
	return appctx.Load(c, "accounts:"+c.User.ID, func() ([]auth.Account, error) {
		return auth.NewAccountRepository(c.DB).ListForUser(ctx, c.User.ID)
	})
}

// startSession persists a new session, caches it and sets the cookie.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, user *auth.User, ttl time.Duration) (*auth.Session, error) {
	ctx := r.Context()
	params := auth.CreateSessionParams{
		UserID:    user.ID,
		IPAddress: clientIP(r, s.trustedProxies),
		UserAgent: r.UserAgent(),
		ExpiresAt: time.Now().Add(ttl),
	}
	sess, err := s.Sessions.Create(ctx, params)
	if errors.Is(err, auth.ErrTokenCollision) {
		sess, err = s.Sessions.Create(ctx, params)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Cache.Put(ctx, sess.Token, *sess, *user); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("session cache write failed")
	}
	auth.SetSessionCookie(w, sess.Token, sess.ExpiresAt, s.Config.SecureCookies())
	return sess, nil
}

func (s *Server) issueVerification(ctx context.Context, user *auth.User, locale string) error {
	code, err := auth.NewCode()
	if err != nil {
		return err
	}
	identifier := emailVerificationKey + user.Email
	if _, err := s.Verifications.Replace(ctx, identifier, auth.HashString(code), time.Now().Add(verificationTTL)); err != nil {
		return err
	}

	content := i18n.VerificationEmail(locale, code, int(verificationTTL/time.Minute))
	return s.Mailer.Send(ctx, user.Email, content.Subject, content.Text, content.HTML)
}

func (s *Server) audit(r *http.Request, event, userID string, meta map[string]any) {
	e := auth.AuditEvent{
		EventType: event,
		UserID:    userID,
		IP:        clientIP(r, s.trustedProxies),
		UserAgent: r.UserAgent(),
		Meta:      meta,
	}
	if c := appctx.From(r.Context()); c != nil {
		e.RequestID = c.RequestID
	}
	if err := s.Audit.Log(r.Context(), e); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("event", event).Msg("audit log failed")
	}
}
