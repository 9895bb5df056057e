package auth

import (
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	userColumns         = `id, name, email, email_verified, image, created_at, updated_at`
	sessionColumns      = `id, ip_address, user_agent, user_id, expires_at, created_at, updated_at`
	accountColumns      = `id, account_id, provider_id, user_id, access_token, refresh_token, id_token, access_token_expires_at, refresh_token_expires_at, scope, password, created_at, updated_at`
	verificationColumns = `id, identifier, value, expires_at, created_at, updated_at`
)

func scanUser(row pgx.Row) (*User, error) {
	var (
		u     User
		image sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.EmailVerified, &image, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Image = nullStringPtr(image)
	return &u, nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		s         Session
		ip        sql.NullString
		userAgent sql.NullString
	)
	if err := row.Scan(&s.ID, &ip, &userAgent, &s.UserID, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.IPAddress = nullStringPtr(ip)
	s.UserAgent = nullStringPtr(userAgent)
	return &s, nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		a                                       Account
		accessToken, refreshToken, idToken      sql.NullString
		scope, password                         sql.NullString
		accessTokenExpires, refreshTokenExpires sql.NullTime
	)
	if err := row.Scan(
		&a.ID,
		&a.AccountID,
		&a.ProviderID,
		&a.UserID,
		&accessToken,
		&refreshToken,
		&idToken,
		&accessTokenExpires,
		&refreshTokenExpires,
		&scope,
		&password,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.AccessToken = nullStringPtr(accessToken)
	a.RefreshToken = nullStringPtr(refreshToken)
	a.IDToken = nullStringPtr(idToken)
	a.AccessTokenExpiresAt = nullTimePtr(accessTokenExpires)
	a.RefreshTokenExpiresAt = nullTimePtr(refreshTokenExpires)
	a.Scope = nullStringPtr(scope)
	a.Password = nullStringPtr(password)
	return &a, nil
}

func scanVerification(row pgx.Row) (*Verification, error) {
	var v Verification
	if err := row.Scan(&v.ID, &v.Identifier, &v.Value, &v.ExpiresAt, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}
