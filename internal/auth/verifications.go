package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"skillbase/internal/database"
)

type VerificationRepository struct {
	DB database.DBTX
}

func NewVerificationRepository(db database.DBTX) *VerificationRepository {
	return &VerificationRepository{DB: db}
}

// Create stores a challenge. Callers hash secret values before storing them.
func (r *VerificationRepository) Create(ctx context.Context, identifier, value string, expiresAt time.Time) (*Verification, error) {
	row := r.DB.QueryRow(ctx, `
		INSERT INTO verifications (id, identifier, value, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING `+verificationColumns,
		NewID(), identifier, value, expiresAt)
	return scanVerification(row)
}

// Replace drops every challenge for identifier and stores a new one.
func (r *VerificationRepository) Replace(ctx context.Context, identifier, value string, expiresAt time.Time) (*Verification, error) {
	var v *Verification
	err := database.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM verifications WHERE identifier = $1`, identifier); err != nil {
			return err
		}
		created, err := (&VerificationRepository{DB: tx}).Create(ctx, identifier, value, expiresAt)
		if err != nil {
			return err
		}
		v = created
		return nil
	})
	return v, err
}

// Consume deletes and returns the live challenge matching identifier and
// value. A challenge can be consumed once; expired ones never match.
func (r *VerificationRepository) Consume(ctx context.Context, identifier, value string) (*Verification, error) {
	row := r.DB.QueryRow(ctx, `
		DELETE FROM verifications
		WHERE identifier = $1 AND value = $2 AND expires_at > NOW()
		RETURNING `+verificationColumns,
		identifier, value)
	v, err := scanVerification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

// Take deletes and returns the newest live challenge for identifier.
func (r *VerificationRepository) Take(ctx context.Context, identifier string) (*Verification, error) {
	row := r.DB.QueryRow(ctx, `
		DELETE FROM verifications
		WHERE id = (
			SELECT id FROM verifications
			WHERE identifier = $1 AND expires_at > NOW()
			ORDER BY created_at DESC
			LIMIT 1
		)
		RETURNING `+verificationColumns,
		identifier)
	v, err := scanVerification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func (r *VerificationRepository) DeleteByIdentifier(ctx context.Context, identifier string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM verifications WHERE identifier = $1`, identifier)
	return err
}

func (r *VerificationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.DB.Exec(ctx, `DELETE FROM verifications WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
