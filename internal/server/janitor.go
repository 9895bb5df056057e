package server

import (
	"context"
	"time"
)

// RunJanitor deletes expired sessions and verifications every interval until
// ctx is done.
func (s *Server) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) sweep(ctx context.Context) {
	sessions, err := s.Sessions.DeleteExpired(ctx)
	if err != nil && ctx.Err() == nil {
		s.Logger.Error().Err(err).Msg("janitor: delete expired sessions")
	}
	verifications, err := s.Verifications.DeleteExpired(ctx)
	if err != nil && ctx.Err() == nil {
		s.Logger.Error().Err(err).Msg("janitor: delete expired verifications")
	}
	if sessions > 0 || verifications > 0 {
		s.Logger.Info().
			Int64("sessions", sessions).
			Int64("verifications", verifications).
			Msg("janitor: removed expired rows")
	}
}
