package email

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"

	"gopkg.in/gomail.v2"

	"skillbase/internal/config"
)

var ErrNotConfigured = errors.New("email is not configured")

type Sender struct {
	cfg    config.EmailConfig
	dialer *gomail.Dialer
}

func NewSender(cfg config.EmailConfig) *Sender {
	s := &Sender{cfg: cfg}
	if cfg.Enabled() {
		d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		d.SSL = cfg.Secure
		d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
		s.dialer = d
	}
	return s
}

func (s *Sender) Send(ctx context.Context, to, subject, text, html string) error {
	if s.dialer == nil {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.dialer.DialAndSend(s.message(to, subject, text, html))
}

func (s *Sender) message(to, subject, text, html string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)

	if strings.TrimSpace(html) != "" {
		msg.SetBody("text/html", html)
		if text != "" {
			msg.AddAlternative("text/plain", text)
		}
	} else {
		msg.SetBody("text/plain", text)
	}
	return msg
}
