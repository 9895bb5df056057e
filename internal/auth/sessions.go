package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"skillbase/internal/database"
)

const sessionTokenBytes = 32

type SessionRepository struct {
	DB database.DBTX
	// Now is overridable for tests.
	Now func() time.Time
}

func NewSessionRepository(db database.DBTX) *SessionRepository {
	return &SessionRepository{DB: db, Now: time.Now}
}

type CreateSessionParams struct {
	UserID    string
	IPAddress string
	UserAgent string
	ExpiresAt time.Time
}

// Create stores a new session and returns it with the raw token set. Only the
// token hash is persisted.
func (r *SessionRepository) Create(ctx context.Context, p CreateSessionParams) (*Session, error) {
	token, err := NewToken(sessionTokenBytes)
	if err != nil {
		return nil, err
	}

	row := r.DB.QueryRow(ctx, `
		INSERT INTO sessions (id, token, ip_address, user_agent, user_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+sessionColumns,
		NewID(), HashString(token), emptyToNil(p.IPAddress), emptyToNil(p.UserAgent), p.UserID, p.ExpiresAt)

	sess, err := scanSession(row)
	if err != nil {
		return nil, constraintError(err)
	}
	sess.Token = token
	return sess, nil
}

// FindByToken returns the live session for a raw token. Expired sessions are
// deleted on sight and reported as absent.
func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, nil
	}
	row := r.DB.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = $1`, HashString(token))
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sess.Expired(r.now()) {
		if err := r.Delete(ctx, sess.ID); err != nil {
			return nil, fmt.Errorf("delete expired session: %w", err)
		}
		return nil, nil
	}
	return sess, nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*Session, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

func (r *SessionRepository) ListForUser(ctx context.Context, userID string) ([]Session, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY created_at DESC
	`, userID, r.now())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// Touch moves the expiry of a session forward.
func (r *SessionRepository) Touch(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := r.DB.Exec(ctx, `UPDATE sessions SET expires_at = $1, updated_at = NOW() WHERE id = $2`, expiresAt, id)
	return err
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (r *SessionRepository) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, HashString(token))
	return err
}

func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.DB.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.DB.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, r.now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func emptyToNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
