package server

import (
	"context"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skillbase/internal/auth"
)

func TestSignUp_CreatesUserAndSendsCode(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})
	now := time.Now()

	env.mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("new@example.com").
		WillReturnRows(userRows())
	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), "New", "new@example.com", false, pgxmock.AnyArg()).
		WillReturnRows(userRows().AddRow("u9", "New", "new@example.com", false, nil, now, now))
	env.mock.ExpectQuery(`INSERT INTO accounts`).
		WithArgs(pgxmock.AnyArg(), "u9", auth.CredentialProvider, "u9", pgxmock.AnyArg()).
		WillReturnRows(accountRows().AddRow("a9", "u9", auth.CredentialProvider, "u9",
			nil, nil, nil, nil, nil, nil, "hash", now, now))
	env.mock.ExpectCommit()
	env.mock.ExpectBegin()
	env.mock.ExpectExec(`DELETE FROM verifications WHERE identifier = \$1`).
		WithArgs("email-verification:new@example.com").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	env.mock.ExpectQuery(`INSERT INTO verifications`).
		WithArgs(pgxmock.AnyArg(), "email-verification:new@example.com", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(verificationRows().AddRow("v1", "email-verification:new@example.com", "x", now.Add(verificationTTL), now, now))
	env.mock.ExpectCommit()

	rec := env.do(jsonRequest(http.MethodPost, "/api/auth/sign-up",
		`{"name":"New","email":"New@Example.com","password":"Secret#123"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["emailVerificationRequired"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "u9", user["id"])

	mail := env.mailer.last()
	assert.Equal(t, "new@example.com", mail.To)
	assert.Regexp(t, regexp.MustCompile(`\b\d{6}\b`), mail.Text)
}

func TestSignUp_ExistingEmail(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	env.mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("alice@example.com").
		WillReturnRows(userRows().AddRow("u1", "Alice", "alice@example.com", true, nil, t0, t0))

	rec := env.do(jsonRequest(http.MethodPost, "/api/auth/sign-up",
		`{"name":"Alice","email":"alice@example.com","password":"Secret#123"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, env.mailer.sent)
}

func TestSignUp_Validation(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	cases := []struct {
		name string
		body string
		want string
	}{
		{"empty", `{}`, "name is required"},
		{"bad email", `{"name":"A","email":"nope","password":"Secret#123"}`, "Invalid email format"},
		{"weak password", `{"name":"A","email":"a@example.com","password":"password"}`, "password must contain at least one uppercase letter"},
		{"short password", `{"name":"A","email":"a@example.com","password":"Ab1!"}`, "password must be at least 8 characters long"},
		{"unknown field", `{"name":"A","role":"admin"}`, "Invalid request body"},
		{"not json", `nope`, "Invalid request body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(jsonRequest(http.MethodPost, "/api/auth/sign-up", tc.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.want, decodeBody(t, rec)["message"])
		})
	}
}

func TestSignUp_RateLimitedPerEmail(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	for i := 0; i < 2; i++ {
		env.mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
			WithArgs("alice@example.com").
			WillReturnRows(userRows().AddRow("u1", "Alice", "alice@example.com", true, nil, t0, t0))
	}
	body := `{"name":"Alice","email":"alice@example.com","password":"Secret#123"}`
	for i := 0; i < 2; i++ {
		rec := env.do(jsonRequest(http.MethodPost, "/api/auth/sign-up", body))
		require.Equal(t, http.StatusConflict, rec.Code)
	}

	rec := env.do(jsonRequest(http.MethodPost, "/api/auth/sign-up", body))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Greater(t, decodeBody(t, rec)["cooldown"], float64(0))
}

func TestVerifyEmail(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})
	now := time.Now()

	env.mock.ExpectQuery(`DELETE FROM verifications`).
		WithArgs("email-verification:alice@example.com", auth.HashString("123456")).
		WillReturnRows(verificationRows().AddRow("v1", "email-verification:alice@example.com",
			auth.HashString("123456"), now.Add(time.Minute), now, now))
	env.mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("alice@example.com").
		WillReturnRows(userRows().AddRow("u1", "Alice", "alice@example.com", false, nil, t0, t0))
	env.mock.ExpectExec(`UPDATE users SET email_verified = TRUE`).
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	rec := env.do(jsonRequest(http.MethodPost, "/api/auth/verify-email", `{"email":"Alice@example.com","code":"123456"}`))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestVerifyEmail_WrongCode(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	env.mock.ExpectQuery(`DELETE FROM verifications`).
		WithArgs("email-verification:alice@example.com", auth.HashString("000000")).
		WillReturnRows(verificationRows())

	rec := env.do(jsonRequest(http.MethodPost, "/api/auth/verify-email", `{"email":"alice@example.com","code":"000000"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or expired code.", decodeBody(t, rec)["message"])
}

func TestSignIn_Success(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})
	now := time.Now()
	hash, err := env.srv.Hasher.Hash("Secret#123")
	require.NoError(t, err)

	env.mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("alice@example.com").
		WillReturnRows(userRows().AddRow("u1", "Alice", "alice@example.com", true, nil, t0, t0))
	env.mock.ExpectQuery(`FROM accounts\s+WHERE user_id = \$1 AND provider_id = \$2`).
		WithArgs("u1", auth.CredentialProvider).
		WillReturnRows(accountRows().AddRow("a1", "u1", auth.CredentialProvider, "u1",
			nil, nil, nil, nil, nil, nil, hash, t0, t0))
	env.mock.ExpectQuery(`INSERT INTO sessions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "u1", pgxmock.AnyArg()).
		WillReturnRows(sessionRows().AddRow("s1", "192.0.2.1", nil, "u1", now.Add(shortSessionTTL), now, now))

	rec := env.do(jsonRequest(http.MethodPost, "/api/auth/sign-in", `{"email":"alice@example.com","password":"Secret#123"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	cached, err := env.srv.Cache.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "s1", cached.Session.ID)
	assert.Equal(t, "alice@example.com", env.mailer.last().To)
}

func TestSignIn_InvalidCredentialsThenBan(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	body := `{"email":"ghost@example.com","password":"Secret#123"}`
	for i := 0; i < 5; i++ {
		env.mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
			WithArgs("ghost@example.com").
			WillReturnRows(userRows())
	}
	for i := 0; i < 5; i++ {
		rec := env.do(jsonRequest(http.MethodPost, "/api/auth/sign-in", body))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "INVALID_CREDENTIALS", decodeBody(t, rec)["message"])
	}

	rec := env.do(jsonRequest(http.MethodPost, "/api/auth/sign-in", body))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "IP_BANNED", decodeBody(t, rec)["message"])
	assert.True(t, env.redis.Exists("login_ban:192.0.2.1"))
}

func TestSignIn_UnverifiedEmail(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})
	hash, err := env.srv.Hasher.Hash("Secret#123")
	require.NoError(t, err)

	env.mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("alice@example.com").
		WillReturnRows(userRows().AddRow("u1", "Alice", "alice@example.com", false, nil, t0, t0))
	env.mock.ExpectQuery(`FROM accounts\s+WHERE user_id = \$1 AND provider_id = \$2`).
		WithArgs("u1", auth.CredentialProvider).
		WillReturnRows(accountRows().AddRow("a1", "u1", auth.CredentialProvider, "u1",
			nil, nil, nil, nil, nil, nil, hash, t0, t0))

	rec := env.do(jsonRequest(http.MethodPost, "/api/auth/sign-in", `{"email":"alice@example.com","password":"Secret#123"}`))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "EMAIL_NOT_VERIFIED", decodeBody(t, rec)["message"])
}

func TestMe_FromCachedSession(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})
	token, _ := env.signIn(t)

	env.mock.ExpectQuery(`FROM accounts\s+WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnRows(accountRows().
			AddRow("a1", "u1", auth.CredentialProvider, "u1", nil, nil, nil, nil, nil, nil, "hash", t0, t0).
			AddRow("a2", "42", "github", "u1", nil, nil, nil, nil, nil, nil, nil, t0, t0))

	rec := env.do(withSession(jsonRequest(http.MethodGet, "/api/auth/me", ""), token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["hasPassword"])
	assert.ElementsMatch(t, []any{"credential", "github"}, body["providers"])
	assert.Equal(t, "u1", body["user"].(map[string]any)["id"])
}

func TestMe_SlidesStaleSession(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})
	token := "stale-token"
	updated := time.Now().Add(-25 * time.Hour)
	expires := updated.Add(7 * 24 * time.Hour)

	env.mock.ExpectQuery(`FROM sessions WHERE token = \$1`).
		WithArgs(auth.HashString(token)).
		WillReturnRows(sessionRows().AddRow("s1", nil, nil, "u1", expires, updated, updated))
	env.mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(userRows().AddRow("u1", "Alice", "alice@example.com", true, nil, t0, t0))
	env.mock.ExpectExec(`UPDATE sessions SET expires_at = \$1`).
		WithArgs(pgxmock.AnyArg(), "s1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	env.mock.ExpectQuery(`FROM accounts\s+WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnRows(accountRows())

	rec := env.do(withSession(jsonRequest(http.MethodGet, "/api/auth/me", ""), token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var refreshed *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			refreshed = c
		}
	}
	require.NotNil(t, refreshed)
	assert.True(t, refreshed.Expires.After(expires))
}

func TestMe_UnknownToken(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	env.mock.ExpectQuery(`FROM sessions WHERE token = \$1`).
		WithArgs(auth.HashString("bogus")).
		WillReturnRows(sessionRows())

	rec := env.do(withSession(jsonRequest(http.MethodGet, "/api/auth/me", ""), "bogus"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignOut(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})
	token, _ := env.signIn(t)

	env.mock.ExpectExec(`DELETE FROM sessions WHERE token = \$1`).
		WithArgs(auth.HashString(token)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	rec := env.do(withSession(jsonRequest(http.MethodPost, "/api/auth/sign-out", ""), token))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	cached, err := env.srv.Cache.Get(context.Background(), token)
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestResetPassword(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})
	now := time.Now()
	token := auth.HashString("reset-token")

	env.mock.ExpectQuery(`DELETE FROM verifications`).
		WithArgs("reset-password:" + auth.HashString(token)).
		WillReturnRows(verificationRows().AddRow("v1", "reset-password:"+auth.HashString(token), "u1", now.Add(time.Hour), now, now))
	env.mock.ExpectExec(`INSERT INTO accounts`).
		WithArgs(pgxmock.AnyArg(), "u1", auth.CredentialProvider, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	env.mock.ExpectExec(`DELETE FROM sessions WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	rec := env.do(jsonRequest(http.MethodPost, "/api/auth/reset-password",
		`{"token":"`+token+`","password":"Newer#Pass1"}`))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestResetPassword_BadToken(t *testing.T) {
	env := newTestEnv(t, testConfig(), Deps{})

	rec := env.do(jsonRequest(http.MethodPost, "/api/auth/reset-password", `{"token":"xyz","password":"Newer#Pass1"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
