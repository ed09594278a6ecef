// Package config loads the jsd TOML configuration shared by the CLI and the proxy.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/SeniorPomidorro/suptech-desk/internal/desk"
	"github.com/SeniorPomidorro/suptech-desk/pkg/apis/atlassian"
)

// DefaultTokenURL is the Atlassian OAuth 2.0 (3LO) token endpoint.
const DefaultTokenURL = "https://auth.atlassian.com/oauth/token"

// Duration is a time.Duration that unmarshals from TOML strings like "15s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	Jira     Jira              `toml:"jira"`
	Statuses map[string]string `toml:"statuses"`
	Proxy    Proxy             `toml:"proxy"`
	Log      Log               `toml:"log"`
}

type Jira struct {
	BaseURL string   `toml:"base_url"`
	Project string   `toml:"project"`
	Timeout Duration `toml:"timeout"` // default 15s

	// PageSize is the number of tickets per search request; FetchAll
	// follows every page instead of stopping after the first.
	PageSize int  `toml:"page_size"` // default 100
	FetchAll bool `toml:"fetch_all"`

	// AuthMode selects how the proxy presents its server credentials:
	// "basic_email_token" (Cloud, default), "bearer" (Data Center personal
	// access token) or "basic_token" (pre-encoded basic credentials).
	AuthMode string `toml:"auth_mode"`

	// Secrets come from the environment only.
	Email    string `toml:"-"`
	APIToken string `toml:"-"`
}

type Proxy struct {
	Listen             string `toml:"listen"`         // default ":8787"
	AllowedOrigin      string `toml:"allowed_origin"` // default "*"
	DBPath             string `toml:"db_path"`        // default "jsd-proxy.db"
	TokenURL           string `toml:"token_url"`
	RateLimitPerMinute int    `toml:"rate_limit_per_minute"` // default 120

	OAuthClientID     string `toml:"-"`
	OAuthClientSecret string `toml:"-"`
}

type Log struct {
	Level string `toml:"level"` // default "info"
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads path, applies defaults and environment overrides, and validates.
// A missing file is not an error when optional is set.
func Load(path string, optional bool) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(ExpandHome(path))
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyEnv(&cfg, os.LookupEnv)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Jira.BaseURL, "JIRA_URL")
	set(&cfg.Jira.Project, "JIRA_PROJECT")
	set(&cfg.Jira.Email, "JIRA_EMAIL")
	set(&cfg.Jira.APIToken, "JIRA_API_TOKEN")
	set(&cfg.Proxy.OAuthClientID, "OAUTH_CLIENT_ID")
	set(&cfg.Proxy.OAuthClientSecret, "OAUTH_CLIENT_SECRET")
	set(&cfg.Log.Level, "JSD_LOG_LEVEL")
}

func applyDefaults(cfg *Config) {
	if cfg.Jira.Timeout.Duration == 0 {
		cfg.Jira.Timeout.Duration = 15 * time.Second
	}
	if cfg.Jira.PageSize == 0 {
		cfg.Jira.PageSize = desk.DefaultMaxResults
	}
	if cfg.Jira.AuthMode == "" {
		cfg.Jira.AuthMode = string(atlassian.AuthBasicEmailToken)
	}
	if cfg.Proxy.Listen == "" {
		cfg.Proxy.Listen = ":8787"
	}
	if cfg.Proxy.AllowedOrigin == "" {
		cfg.Proxy.AllowedOrigin = "*"
	}
	if cfg.Proxy.DBPath == "" {
		cfg.Proxy.DBPath = "jsd-proxy.db"
	}
	if cfg.Proxy.TokenURL == "" {
		cfg.Proxy.TokenURL = DefaultTokenURL
	}
	if cfg.Proxy.RateLimitPerMinute == 0 {
		cfg.Proxy.RateLimitPerMinute = 120
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Jira.BaseURL = strings.TrimRight(cfg.Jira.BaseURL, "/")
	cfg.Jira.Project = strings.ToUpper(strings.TrimSpace(cfg.Jira.Project))
}

func validate(cfg *Config) error {
	if cfg.Jira.BaseURL != "" {
		u, err := url.Parse(cfg.Jira.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("jira.base_url %q must include scheme and host", cfg.Jira.BaseURL)
		}
	}
	if cfg.Jira.Timeout.Duration < 0 {
		return fmt.Errorf("jira.timeout must not be negative")
	}
	if cfg.Jira.PageSize < 0 {
		return fmt.Errorf("jira.page_size must not be negative")
	}
	switch atlassian.AuthMode(cfg.Jira.AuthMode) {
	case atlassian.AuthBasicEmailToken, atlassian.AuthBearerToken, atlassian.AuthBasicToken:
	default:
		return fmt.Errorf("jira.auth_mode %q must be basic_email_token, bearer or basic_token", cfg.Jira.AuthMode)
	}
	if cfg.Proxy.RateLimitPerMinute < 0 {
		return fmt.Errorf("proxy.rate_limit_per_minute must not be negative")
	}
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := cfg.StatusTable(); err != nil {
		return err
	}
	return nil
}

// StatusTable builds the status table from the defaults plus [statuses].
func (c *Config) StatusTable() (desk.StatusTable, error) {
	overrides := make(map[string]desk.Category, len(c.Statuses))
	for name, raw := range c.Statuses {
		category, err := desk.ParseCategory(raw)
		if err != nil {
			return desk.StatusTable{}, fmt.Errorf("statuses.%q: %w", name, err)
		}
		overrides[name] = category
	}
	return desk.NewStatusTable(overrides), nil
}

// ServerAuth returns the proxy's server-held Jira credentials in the
// configured auth mode, or an error naming what is missing.
func (c *Config) ServerAuth() (atlassian.Auth, error) {
	auth := atlassian.Auth{Mode: atlassian.AuthMode(c.Jira.AuthMode), Email: c.Jira.Email, Token: c.Jira.APIToken}
	if auth.Token == "" {
		return atlassian.Auth{}, errors.New("JIRA_API_TOKEN is required")
	}
	if auth.Mode == atlassian.AuthBasicEmailToken && auth.Email == "" {
		return atlassian.Auth{}, errors.New("JIRA_EMAIL is required for basic_email_token auth")
	}
	return auth, nil
}

// LogLevel returns the parsed log level; invalid values were rejected by Load.
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// DefaultPath returns the config file location under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "jsd.toml"
	}
	return filepath.Join(dir, "jsd", "jsd.toml")
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
