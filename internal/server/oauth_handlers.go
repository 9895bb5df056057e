package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"skillbase/internal/appctx"
	"skillbase/internal/auth"
	"skillbase/internal/config"
	"skillbase/internal/database"
)

const (
	oauthStatePrefix = "oauth_state:"
	oauthStateTTL    = 10 * time.Minute
)

var discordEndpoint = oauth2.Endpoint{
	AuthURL:   "https://discord.com/api/oauth2/authorize",
	TokenURL:  "https://discord.com/api/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

type oauthProvider struct {
	name       string
	config     *oauth2.Config
	profileURL string
	emailsURL  string
	authParams []oauth2.AuthCodeOption
	fetch      func(ctx context.Context, client *http.Client, p *oauthProvider) (*oauthUser, error)
}

type oauthUser struct {
	ID     string
	Email  string
	Name   string
	Avatar string
}

// oauthState is stored in Redis between start and callback. LinkUserID is set
// when a signed-in user starts the flow to attach another provider.
type oauthState struct {
	Provider   string `json:"provider"`
	ReturnTo   string `json:"returnTo"`
	LinkUserID string `json:"linkUserId,omitempty"`
}

func newOAuthProviders(cfg config.OAuthConfig) map[string]*oauthProvider {
	providers := make(map[string]*oauthProvider)
	if cfg.GitHub.Enabled() {
		providers["github"] = &oauthProvider{
			name: "github",
			config: &oauth2.Config{
				ClientID:     cfg.GitHub.ClientID,
				ClientSecret: cfg.GitHub.ClientSecret,
				RedirectURL:  cfg.GitHub.RedirectURL,
				Endpoint:     github.Endpoint,
				Scopes:       []string{"read:user", "user:email"},
			},
			profileURL: "https://api.github.com/user",
			emailsURL:  "https://api.github.com/user/emails",
			fetch:      fetchGitHubUser,
		}
	}
	if cfg.Discord.Enabled() {
		providers["discord"] = &oauthProvider{
			name: "discord",
			config: &oauth2.Config{
				ClientID:     cfg.Discord.ClientID,
				ClientSecret: cfg.Discord.ClientSecret,
				RedirectURL:  cfg.Discord.RedirectURL,
				Endpoint:     discordEndpoint,
				Scopes:       []string{"identify", "email"},
			},
			profileURL: "https://discord.com/api/users/@me",
			authParams: []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("prompt", "none")},
			fetch:      fetchDiscordUser,
		}
	}
	return providers
}

func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(chi.URLParam(r, "provider"))
	returnTo := sanitizeReturnTo(r.URL.Query().Get("returnTo"))
	p := s.oauth[name]
	if p == nil {
		hlog.FromRequest(r).Warn().Str("provider", name).Msg("oauth start: provider not configured")
		oauthErrorRedirect(w, r, returnTo, "provider_unavailable")
		return
	}

	state, err := auth.NewToken(16)
	if err != nil {
		oauthErrorRedirect(w, r, returnTo, "state_persist_failed")
		return
	}
	st := oauthState{Provider: name, ReturnTo: returnTo}
	if c := appctx.From(r.Context()); c.Authenticated() {
		st.LinkUserID = c.User.ID
	}
	raw, _ := json.Marshal(st)
	if err := s.Redis.Set(r.Context(), oauthStatePrefix+state, raw, oauthStateTTL).Err(); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("provider", name).Msg("oauth start: persist state failed")
		oauthErrorRedirect(w, r, returnTo, "state_persist_failed")
		return
	}
	auth.SetOAuthStateCookie(w, state, oauthStateTTL, s.Config.SecureCookies())

	http.Redirect(w, r, p.config.AuthCodeURL(state, p.authParams...), http.StatusFound)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := hlog.FromRequest(r)
	returnTo := "/"
	name := strings.ToLower(chi.URLParam(r, "provider"))
	p := s.oauth[name]
	if p == nil {
		oauthErrorRedirect(w, r, returnTo, "unsupported_provider")
		return
	}

	q := r.URL.Query()
	stateParam, code := q.Get("state"), q.Get("code")
	if stateParam == "" || code == "" {
		oauthErrorRedirect(w, r, returnTo, "missing_state")
		return
	}

	// The state must come back to the browser that started the flow.
	auth.ClearOAuthStateCookie(w, s.Config.SecureCookies())
	bound, err := r.Cookie(auth.OAuthStateCookieName)
	if err != nil || subtle.ConstantTimeCompare([]byte(bound.Value), []byte(stateParam)) != 1 {
		log.Warn().Str("provider", name).Msg("oauth callback: state not bound to this browser")
		oauthErrorRedirect(w, r, returnTo, "state_mismatch")
		return
	}

	rawState, err := s.Redis.GetDel(ctx, oauthStatePrefix+stateParam).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Error().Err(err).Msg("oauth callback: state lookup failed")
		}
		oauthErrorRedirect(w, r, returnTo, "state_invalid")
		return
	}
	var st oauthState
	if err := json.Unmarshal(rawState, &st); err != nil || st.Provider != name {
		oauthErrorRedirect(w, r, returnTo, "state_mismatch")
		return
	}
	returnTo = sanitizeReturnTo(st.ReturnTo)

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		log.Error().Err(err).Str("provider", name).Msg("oauth callback: token exchange failed")
		oauthErrorRedirect(w, r, returnTo, "token_exchange_failed")
		return
	}
	profile, err := p.fetch(ctx, p.config.Client(ctx, token), p)
	if err != nil {
		log.Error().Err(err).Str("provider", name).Msg("oauth callback: fetch profile failed")
		oauthErrorRedirect(w, r, returnTo, "profile_fetch_failed")
		return
	}
	if profile.ID == "" || profile.Email == "" {
		oauthErrorRedirect(w, r, returnTo, "email_required")
		return
	}

	user, err := s.oauthUserFor(ctx, p.name, profile, st.LinkUserID, token)
	switch {
	case errors.Is(err, auth.ErrAccountLinked):
		oauthErrorRedirect(w, r, returnTo, "account_linked")
		return
	case err != nil:
		log.Error().Err(err).Str("provider", name).Msg("oauth callback: resolve user failed")
		oauthErrorRedirect(w, r, returnTo, "link_failed")
		return
	}
	s.audit(r, auth.EventAccountLinked, user.ID, map[string]any{"provider": name})

	if st.LinkUserID != "" {
		http.Redirect(w, r, returnTo, http.StatusFound)
		return
	}

	sess, err := s.startSession(w, r, user, s.Config.SessionTTL)
	if err != nil {
		log.Error().Err(err).Msg("oauth callback: session create failed")
		oauthErrorRedirect(w, r, returnTo, "session_failed")
		return
	}
	s.RateLimiter.ResetLogin(ctx, clientIP(r, s.trustedProxies))
	s.audit(r, auth.EventSignIn, user.ID, map[string]any{"provider": name})
	if err := s.sendSignInAlert(ctx, user, sess, appctx.From(ctx).Locale); err != nil {
		log.Warn().Err(err).Msg("oauth callback: alert email failed")
	}

	http.Redirect(w, r, returnTo, http.StatusFound)
}

// oauthUserFor finds or creates the user behind a provider profile and links
// the provider account with fresh tokens. A new user and its account are
// written in one transaction.
func (s *Server) oauthUserFor(ctx context.Context, provider string, profile *oauthUser, linkUserID string, token *oauth2.Token) (*auth.User, error) {
	params := linkParams(provider, profile.ID, token)
	if err := s.tokens.Seal(&params); err != nil {
		return nil, err
	}

	user, err := s.Users.FindByAccount(ctx, provider, profile.ID)
	if err != nil {
		return nil, err
	}
	if user != nil && linkUserID != "" && user.ID != linkUserID {
		return nil, auth.ErrAccountLinked
	}
	if user == nil && linkUserID != "" {
		if user, err = s.Users.FindByID(ctx, linkUserID); err != nil {
			return nil, err
		}
	}
	if user == nil {
		if user, err = s.Users.FindByEmail(ctx, profile.Email); err != nil {
			return nil, err
		}
	}

	if user != nil {
		params.UserID = user.ID
		if _, err := s.Accounts.Link(ctx, params); err != nil {
			return nil, err
		}
		return user, nil
	}

	var image *string
	if profile.Avatar != "" {
		image = &profile.Avatar
	}
	name := profile.Name
	if strings.TrimSpace(name) == "" {
		name = strings.SplitN(profile.Email, "@", 2)[0]
	}
	err = database.InTx(ctx, s.DB, func(tx pgx.Tx) error {
		created, err := auth.NewUserRepository(tx).Create(ctx, auth.CreateUserParams{
			Name:          name,
			Email:         profile.Email,
			Image:         image,
			EmailVerified: true,
		})
		if err != nil {
			return err
		}
		params.UserID = created.ID
		if _, err := auth.NewAccountRepository(tx).Link(ctx, params); err != nil {
			return err
		}
		user = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func linkParams(provider, accountID string, token *oauth2.Token) auth.LinkAccountParams {
	p := auth.LinkAccountParams{
		ProviderID:  provider,
		AccountID:   accountID,
		AccessToken: optional(token.AccessToken),
	}
	p.RefreshToken = optional(token.RefreshToken)
	if !token.Expiry.IsZero() {
		exp := token.Expiry
		p.AccessTokenExpiresAt = &exp
	}
	if id, ok := token.Extra("id_token").(string); ok {
		p.IDToken = optional(id)
	}
	if scope, ok := token.Extra("scope").(string); ok {
		p.Scope = optional(scope)
	}
	return p
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", endpoint, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func fetchGitHubUser(ctx context.Context, client *http.Client, p *oauthProvider) (*oauthUser, error) {
	var data struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, p.profileURL, &data); err != nil {
		return nil, err
	}

	email := data.Email
	if email == "" && p.emailsURL != "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := getJSON(ctx, client, p.emailsURL, &emails); err == nil {
			for _, e := range emails {
				if e.Primary && e.Verified {
					email = e.Email
					break
				}
			}
		}
	}

	name := data.Name
	if strings.TrimSpace(name) == "" {
		name = data.Login
	}
	return &oauthUser{
		ID:     fmt.Sprintf("%d", data.ID),
		Email:  email,
		Name:   name,
		Avatar: data.AvatarURL,
	}, nil
}

func fetchDiscordUser(ctx context.Context, client *http.Client, p *oauthProvider) (*oauthUser, error) {
	var data struct {
		ID            string `json:"id"`
		Username      string `json:"username"`
		GlobalName    string `json:"global_name"`
		Email         string `json:"email"`
		Verified      bool   `json:"verified"`
		Avatar        string `json:"avatar"`
		Discriminator string `json:"discriminator"`
	}
	if err := getJSON(ctx, client, p.profileURL, &data); err != nil {
		return nil, err
	}

	name := data.GlobalName
	if name == "" {
		name = data.Username
		if data.Discriminator != "" && data.Discriminator != "0" {
			name = fmt.Sprintf("%s#%s", data.Username, data.Discriminator)
		}
	}
	var avatarURL string
	if data.Avatar != "" {
		avatarURL = fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", data.ID, data.Avatar)
	}
	email := data.Email
	if !data.Verified {
		email = ""
	}
	return &oauthUser{
		ID:     data.ID,
		Email:  email,
		Name:   name,
		Avatar: avatarURL,
	}, nil
}

func oauthErrorRedirect(w http.ResponseWriter, r *http.Request, returnTo, reason string) {
	u, err := url.Parse(sanitizeReturnTo(returnTo))
	if err != nil || u.IsAbs() {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	q.Set("toast", "oauth_error")
	if reason != "" {
		q.Set("reason", reason)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// sanitizeReturnTo keeps redirects on this site.
func sanitizeReturnTo(raw string) string {
	if raw == "" || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}
	if strings.HasPrefix(raw, "/") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}

	path := "/" + strings.TrimPrefix(u.Path, "/")
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}
