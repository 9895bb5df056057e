package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	DatabaseURL    string        `env:"DATABASE_URL,required"`
	RedisURL       string        `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	MigrationsDir  string        `env:"MIGRATIONS_DIR"`
	RoutesDir      string        `env:"ROUTES_DIR" envDefault:"app/routes"`
	RouteIgnore    []string      `env:"ROUTE_IGNORE" envSeparator:","`
	NoEmailVerify  bool          `env:"NO_EMAIL_VERIFY"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	PasswordHasher string        `env:"PASSWORD_HASHER" envDefault:"bcrypt"`
	TrustedProxies []string      `env:"TRUSTED_PROXIES" envSeparator:","`
	DBMaxConns     int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	TokenKey       string        `env:"ACCOUNT_TOKEN_KEY"`

	Public PublicEnv
	Log    LogConfig
	Email  EmailConfig
	OAuth  OAuthConfig
}

// PublicEnv holds the values that may be rendered into pages. Nothing secret
// belongs here.
type PublicEnv struct {
	AppName string `env:"APP_NAME" envDefault:"Skillbase" json:"appName"`
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:3000" json:"baseUrl"`
}

type LogConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	File       string `env:"LOG_FILE" envDefault:"logs/server.log"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"20"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	Pretty     bool   `env:"LOG_PRETTY"`
}

type EmailConfig struct {
	Host     string `env:"EMAIL_SERVER_HOST"`
	Port     int    `env:"EMAIL_SERVER_PORT" envDefault:"587"`
	Username string `env:"EMAIL_SERVER_USER"`
	Password string `env:"EMAIL_SERVER_PASSWORD"`
	From     string `env:"EMAIL_FROM"`
	Secure   bool   `env:"EMAIL_SERVER_SECURE"`
}

func (e EmailConfig) Enabled() bool {
	return e.Host != "" && e.Port != 0 && e.From != ""
}

type OAuthProvider struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func (p OAuthProvider) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type OAuthConfig struct {
	GitHub  OAuthProvider
	Discord OAuthProvider
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads the configuration from the given variables only.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	oauth, err := env.ParseAsWithOptions[oauthEnv](opts)
	if err != nil {
		return Config{}, fmt.Errorf("parse oauth environment: %w", err)
	}
	base := strings.TrimRight(cfg.Public.BaseURL, "/")
	cfg.OAuth = OAuthConfig{
		GitHub: OAuthProvider{
			ClientID:     oauth.GitHubClientID,
			ClientSecret: oauth.GitHubClientSecret,
			RedirectURL:  firstNonEmpty(oauth.GitHubRedirectURL, base+"/api/oauth/github/callback"),
		},
		Discord: OAuthProvider{
			ClientID:     oauth.DiscordClientID,
			ClientSecret: oauth.DiscordClientSecret,
			RedirectURL:  firstNonEmpty(oauth.DiscordRedirectURL, base+"/api/oauth/discord/callback"),
		},
	}

	cfg.Email.Host = clean(cfg.Email.Host)
	cfg.Email.Username = clean(cfg.Email.Username)
	cfg.Email.Password = clean(cfg.Email.Password)
	cfg.Email.From = clean(cfg.Email.From)
	cfg.RouteIgnore = trimList(cfg.RouteIgnore)
	cfg.TrustedProxies = trimList(cfg.TrustedProxies)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	if abs, err := filepath.Abs(cfg.RoutesDir); err == nil {
		cfg.RoutesDir = abs
	}

	return cfg, nil
}

type oauthEnv struct {
	GitHubClientID      string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret  string `env:"GITHUB_CLIENT_SECRET"`
	GitHubRedirectURL   string `env:"GITHUB_REDIRECT_URL"`
	DiscordClientID     string `env:"DISCORD_CLIENT_ID"`
	DiscordClientSecret string `env:"DISCORD_CLIENT_SECRET"`
	DiscordRedirectURL  string `env:"DISCORD_REDIRECT_URL"`
}

func (c Config) validate() error {
	switch c.PasswordHasher {
	case "bcrypt", "argon2":
	default:
		return fmt.Errorf("PASSWORD_HASHER must be bcrypt or argon2, got %q", c.PasswordHasher)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if u, err := url.Parse(c.Public.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("APP_BASE_URL must be an absolute URL, got %q", c.Public.BaseURL)
	}
	return nil
}

// SecureCookies reports whether cookies should carry the Secure flag.
func (c Config) SecureCookies() bool {
	return strings.HasPrefix(c.Public.BaseURL, "https://")
}

func clean(val string) string {
	return strings.Trim(val, "\"' \t\r\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func trimList(values []string) []string {
	var out []string
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
