package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/hlog"

	"skillbase/internal/appctx"
	"skillbase/internal/auth"
	"skillbase/internal/i18n"
)

const (
	resetTokenTTL      = time.Hour
	resetPasswordKey   = "reset-password:"
	resetTokenByteSize = 32
)

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.bind(w, r, &req) {
		return
	}

	ctx := r.Context()
	c := appctx.From(ctx)
	log := hlog.FromRequest(r)
	cooldownKey := "forgot_password_cooldown:" + auth.NormalizeEmail(req.Email)
	if ttl := s.RateLimiter.Cooldown(ctx, cooldownKey); ttl > 0 {
		writeCooldown(w, fmt.Sprintf("Please wait %d seconds before making another request.", int(ttl.Seconds())), ttl.Seconds())
		return
	}

	ip := clientIP(r, s.trustedProxies)
	if locked, ttl, err := s.RateLimiter.RegisterResetAttempt(ctx, req.Email, ip); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to process request")
		return
	} else if locked {
		writeCooldown(w, "Too many reset requests. Try again later.", ttl.Seconds())
		return
	}

	user, err := s.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		log.Error().Err(err).Msg("forgot-password: lookup failed")
		writeError(w, http.StatusInternalServerError, "Failed to process request")
		return
	}

	if user != nil {
		accounts, err := s.Accounts.ListForUser(ctx, user.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to process request")
			return
		}
		var providers []string
		hasPassword := false
		for _, acc := range accounts {
			if acc.ProviderID == auth.CredentialProvider {
				hasPassword = true
				continue
			}
			providers = append(providers, acc.ProviderID)
		}

		if !hasPassword {
			content := i18n.OAuthNoticeEmail(c.Locale, providers)
			if err := s.Mailer.Send(ctx, user.Email, content.Subject, content.Text, content.HTML); err != nil {
				log.Warn().Err(err).Msg("forgot-password: notice email failed")
			}
		} else {
			token, err := auth.NewToken(resetTokenByteSize)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "Failed to generate token")
				return
			}
			if _, err := s.Verifications.Create(ctx, resetPasswordKey+auth.HashString(token), user.ID, time.Now().Add(resetTokenTTL)); err != nil {
				log.Error().Err(err).Msg("forgot-password: store token failed")
				writeError(w, http.StatusInternalServerError, "Failed to store token")
				return
			}

			link := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(s.Config.Public.BaseURL, "/"), token)
			content := i18n.PasswordResetEmail(c.Locale, link, int(resetTokenTTL/time.Hour))
			if err := s.Mailer.Send(ctx, user.Email, content.Subject, content.Text, content.HTML); err != nil {
				log.Warn().Err(err).Msg("forgot-password: reset email failed")
			}
		}
	}

	s.RateLimiter.SetCooldown(ctx, cooldownKey, auth.EmailCooldown)

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "If the email address exists, a password reset email has been sent with instructions.",
	})
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required,hexadecimal,len=64"`
	Password string `json:"password" validate:"required,max=128,password"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !s.bind(w, r, &req) {
		return
	}

	ctx := r.Context()
	log := hlog.FromRequest(r)
	v, err := s.Verifications.Take(ctx, resetPasswordKey+auth.HashString(req.Token))
	if err != nil {
		log.Error().Err(err).Msg("reset-password: token lookup failed")
		writeError(w, http.StatusInternalServerError, "Failed to reset password")
		return
	}
	if v == nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired token.")
		return
	}
	userID := v.Value

	hashed, err := s.Hasher.Hash(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}
	if err := s.Accounts.UpdatePassword(ctx, userID, hashed); err != nil {
		log.Error().Err(err).Msg("reset-password: update failed")
		writeError(w, http.StatusInternalServerError, "Failed to update password")
		return
	}

	if _, err := s.Sessions.DeleteByUser(ctx, userID); err != nil {
		log.Error().Err(err).Msg("reset-password: revoke sessions failed")
	}
	_ = s.Cache.InvalidateUser(ctx, userID)
	s.audit(r, auth.EventPasswordReset, userID, nil)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset successfully."})
}
