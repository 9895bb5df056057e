package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"skillbase/internal/database"
)

type AccountRepository struct {
	DB database.DBTX
}

func NewAccountRepository(db database.DBTX) *AccountRepository {
	return &AccountRepository{DB: db}
}

type LinkAccountParams struct {
	UserID                string
	ProviderID            string
	AccountID             string
	AccessToken           *string
	RefreshToken          *string
	IDToken               *string
	AccessTokenExpiresAt  *time.Time
	RefreshTokenExpiresAt *time.Time
	Scope                 *string
	Password              *string
}

// CreateCredential stores the local password account of a user. The account
// id of a credential account is the user id.
func (r *AccountRepository) CreateCredential(ctx context.Context, userID, passwordHash string) (*Account, error) {
	row := r.DB.QueryRow(ctx, `
		INSERT INTO accounts (id, account_id, provider_id, user_id, password)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+accountColumns,
		NewID(), userID, CredentialProvider, userID, passwordHash)

	acc, err := scanAccount(row)
	if err != nil {
		return nil, constraintError(err)
	}
	return acc, nil
}

// Link binds a provider account to a user, refreshing the stored tokens when
// the binding already exists. A provider account owned by another user is
// never reassigned: Link returns ErrAccountLinked instead.
func (r *AccountRepository) Link(ctx context.Context, p LinkAccountParams) (*Account, error) {
	row := r.DB.QueryRow(ctx, `
		INSERT INTO accounts
			(id, account_id, provider_id, user_id, access_token, refresh_token, id_token,
			 access_token_expires_at, refresh_token_expires_at, scope, password)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (provider_id, account_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, accounts.refresh_token),
			id_token = EXCLUDED.id_token,
			access_token_expires_at = EXCLUDED.access_token_expires_at,
			refresh_token_expires_at = COALESCE(EXCLUDED.refresh_token_expires_at, accounts.refresh_token_expires_at),
			scope = EXCLUDED.scope,
			updated_at = NOW()
		WHERE accounts.user_id = EXCLUDED.user_id
		RETURNING `+accountColumns,
		NewID(), p.AccountID, p.ProviderID, p.UserID, p.AccessToken, p.RefreshToken, p.IDToken,
		p.AccessTokenExpiresAt, p.RefreshTokenExpiresAt, p.Scope, p.Password)

	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// the conflicting row belongs to someone else
		return nil, ErrAccountLinked
	}
	if err != nil {
		return nil, constraintError(err)
	}
	return acc, nil
}

func (r *AccountRepository) FindByProvider(ctx context.Context, providerID, accountID string) (*Account, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE provider_id = $1 AND account_id = $2
	`, providerID, accountID)
	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return acc, err
}

func (r *AccountRepository) FindCredential(ctx context.Context, userID string) (*Account, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE user_id = $1 AND provider_id = $2
	`, userID, CredentialProvider)
	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return acc, err
}

func (r *AccountRepository) ListForUser(ctx context.Context, userID string) ([]Account, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, rows.Err()
}

// UpdatePassword sets the password of the credential account, creating the
// account when the user only had external sign-ins.
func (r *AccountRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO accounts (id, account_id, provider_id, user_id, password)
		VALUES ($1, $2, $3, $2, $4)
		ON CONFLICT (provider_id, account_id) DO UPDATE SET
			password = EXCLUDED.password,
			updated_at = NOW()
	`, NewID(), userID, CredentialProvider, passwordHash)
	return constraintError(err)
}

// Unlink deletes one of the user's accounts unless it is the only one left.
func (r *AccountRepository) Unlink(ctx context.Context, userID, id string) error {
	return database.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id FROM accounts WHERE user_id = $1 FOR UPDATE`, userID)
		if err != nil {
			return err
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}

		found := false
		for _, accID := range ids {
			if accID == id {
				found = true
				break
			}
		}
		if !found {
			return ErrAccountNotFound
		}
		if len(ids) == 1 {
			return ErrLastAccount
		}

		_, err = tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1 AND user_id = $2`, id, userID)
		return err
	})
}
