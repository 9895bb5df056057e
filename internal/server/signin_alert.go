package server

import (
	"context"
	"time"

	"skillbase/internal/auth"
	"skillbase/internal/i18n"
)

func (s *Server) sendSignInAlert(ctx context.Context, user *auth.User, sess *auth.Session, locale string) error {
	if s.Mailer == nil {
		return nil
	}

	var ip, device string
	if sess.IPAddress != nil {
		ip = *sess.IPAddress
	}
	if sess.UserAgent != nil {
		device = *sess.UserAgent
	}
	loginTime := sess.CreatedAt
	if loginTime.IsZero() {
		loginTime = time.Now()
	}

	content := i18n.SignInAlertEmail(locale, user.Name, loginTime.UTC().Format(time.RFC1123), ip, device)
	return s.Mailer.Send(ctx, user.Email, content.Subject, content.Text, content.HTML)
}
