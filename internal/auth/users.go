package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"skillbase/internal/database"
)

type UserRepository struct {
	DB database.DBTX
}

func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{DB: db}
}

type CreateUserParams struct {
	Name          string
	Email         string
	Image         *string
	EmailVerified bool
}

// NormalizeEmail is applied to every email before it reaches the users table
// so the unique constraint is case-insensitive in practice.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *UserRepository) Create(ctx context.Context, p CreateUserParams) (*User, error) {
	row := r.DB.QueryRow(ctx, `
		INSERT INTO users (id, name, email, email_verified, image)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		NewID(), strings.TrimSpace(p.Name), NormalizeEmail(p.Email), p.EmailVerified, p.Image)

	user, err := scanUser(row)
	if err != nil {
		return nil, constraintError(err)
	}
	return user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, NormalizeEmail(email))
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

// FindByAccount resolves the owner of a provider account.
func (r *UserRepository) FindByAccount(ctx context.Context, providerID, accountID string) (*User, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT u.id, u.name, u.email, u.email_verified, u.image, u.created_at, u.updated_at
		FROM users u
		INNER JOIN accounts a ON a.user_id = u.id
		WHERE a.provider_id = $1 AND a.account_id = $2
	`, providerID, accountID)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

type UpdateProfileParams struct {
	Name  *string
	Image *string
	// ClearImage removes the image; it wins over Image.
	ClearImage bool
}

func (r *UserRepository) UpdateProfile(ctx context.Context, userID string, p UpdateProfileParams) (*User, error) {
	sets := []string{}
	args := []any{}
	idx := 1

	if p.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, strings.TrimSpace(*p.Name))
		idx++
	}
	switch {
	case p.ClearImage:
		sets = append(sets, "image = NULL")
	case p.Image != nil:
		sets = append(sets, fmt.Sprintf("image = $%d", idx))
		args = append(args, *p.Image)
		idx++
	}

	if len(sets) == 0 {
		return r.FindByID(ctx, userID)
	}

	args = append(args, userID)
	row := r.DB.QueryRow(ctx, fmt.Sprintf(`
		UPDATE users
		SET %s, updated_at = NOW()
		WHERE id = $%d
		RETURNING %s
	`, strings.Join(sets, ", "), idx, userColumns), args...)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

func (r *UserRepository) SetEmailVerified(ctx context.Context, userID string) error {
	tag, err := r.DB.Exec(ctx, `UPDATE users SET email_verified = TRUE, updated_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes the user; the schema cascades to sessions and accounts.
func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	tag, err := r.DB.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
