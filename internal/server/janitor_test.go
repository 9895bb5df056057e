package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
)

func TestSweep(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	env.mock.ExpectExec(`DELETE FROM sessions WHERE expires_at <= \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	env.mock.ExpectExec(`DELETE FROM verifications WHERE expires_at <= NOW\(\)`).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	env.srv.sweep(context.Background())
}

func TestSweep_ContinuesAfterError(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	env.mock.ExpectExec(`DELETE FROM sessions`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(errors.New("boom"))
	env.mock.ExpectExec(`DELETE FROM verifications`).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	env.srv.sweep(context.Background())
}

func TestRunJanitor_StopsWithContext(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	env.mock.ExpectExec(`DELETE FROM sessions`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	env.mock.ExpectExec(`DELETE FROM verifications`).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.srv.RunJanitor(ctx, time.Hour)
		close(done)
	}()

	// The first sweep runs immediately; wait for it before cancelling.
	deadline := time.Now().Add(2 * time.Second)
	for env.mock.ExpectationsWereMet() != nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}
