package auth

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrEmailTaken      = errors.New("email already registered")
	ErrAccountLinked   = errors.New("provider account already linked to another user")
	ErrTokenCollision  = errors.New("session token collision")
	ErrUserNotFound    = errors.New("user not found")
	ErrAccountNotFound = errors.New("account not found")
	ErrLastAccount     = errors.New("cannot remove the last sign-in method")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// constraintError maps integrity violations raised by the schema onto the
// package's sentinel errors. Other errors are returned unchanged.
func constraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case "users_email_key":
			return ErrEmailTaken
		case "accounts_provider_account_key":
			return ErrAccountLinked
		case "sessions_token_key":
			return ErrTokenCollision
		}
	case pgForeignKeyViolation:
		return ErrUserNotFound
	}
	return err
}
