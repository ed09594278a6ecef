package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/SeniorPomidorro/suptech-desk/internal/desk"
	"github.com/SeniorPomidorro/suptech-desk/pkg/apis/atlassian"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "jsd.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
[jira]
base_url = "https://acme.atlassian.net/"
project = "sd"
timeout = "20s"

[statuses]
"Triagem" = "waiting"
"Em Andamento" = "open"

[proxy]
listen = "127.0.0.1:9000"
allowed_origin = "https://dash.example.com"
db_path = "/tmp/jsd-test.db"
rate_limit_per_minute = 30

[log]
level = "debug"
`

func TestLoadValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)

	cfg, err := Load(path, false)
	require.NoError(t, err)

	require.Equal(t, "https://acme.atlassian.net", cfg.Jira.BaseURL)
	require.Equal(t, "SD", cfg.Jira.Project)
	require.Equal(t, 20*time.Second, cfg.Jira.Timeout.Duration)
	require.Equal(t, "127.0.0.1:9000", cfg.Proxy.Listen)
	require.Equal(t, "https://dash.example.com", cfg.Proxy.AllowedOrigin)
	require.Equal(t, 30, cfg.Proxy.RateLimitPerMinute)
	require.Equal(t, DefaultTokenURL, cfg.Proxy.TokenURL)
	require.Equal(t, zerolog.DebugLevel, cfg.LogLevel())

	table, err := cfg.StatusTable()
	require.NoError(t, err)
	require.Equal(t, desk.CategoryWaiting, table.Categorize("Triagem"))
	require.Equal(t, desk.CategoryResolved, table.Categorize("Fechado"))
}

func TestLoadDefaults(t *testing.T) {
	path := writeTestConfig(t, "")

	cfg, err := Load(path, false)
	require.NoError(t, err)
	require.Equal(t, 15*time.Second, cfg.Jira.Timeout.Duration)
	require.Equal(t, ":8787", cfg.Proxy.Listen)
	require.Equal(t, "*", cfg.Proxy.AllowedOrigin)
	require.Equal(t, "jsd-proxy.db", cfg.Proxy.DBPath)
	require.Equal(t, 120, cfg.Proxy.RateLimitPerMinute)
	require.Equal(t, zerolog.InfoLevel, cfg.LogLevel())
	require.Equal(t, desk.DefaultMaxResults, cfg.Jira.PageSize)
	require.False(t, cfg.Jira.FetchAll)
	require.Equal(t, string(atlassian.AuthBasicEmailToken), cfg.Jira.AuthMode)
}

func TestLoadPaging(t *testing.T) {
	cfg, err := Load(writeTestConfig(t, `[jira]
page_size = 50
fetch_all = true
`), false)
	require.NoError(t, err)
	require.Equal(t, 50, cfg.Jira.PageSize)
	require.True(t, cfg.Jira.FetchAll)
}

func TestServerAuth(t *testing.T) {
	cfg := &Config{Jira: Jira{AuthMode: string(atlassian.AuthBasicEmailToken), Email: "svc@example.com", APIToken: "tok"}}
	auth, err := cfg.ServerAuth()
	require.NoError(t, err)
	require.Equal(t, atlassian.Auth{Mode: atlassian.AuthBasicEmailToken, Email: "svc@example.com", Token: "tok"}, auth)

	cfg.Jira.Email = ""
	_, err = cfg.ServerAuth()
	require.ErrorContains(t, err, "JIRA_EMAIL")

	cfg.Jira.AuthMode = string(atlassian.AuthBearerToken)
	auth, err = cfg.ServerAuth()
	require.NoError(t, err)
	require.Equal(t, atlassian.AuthBearerToken, auth.Mode)

	cfg.Jira.APIToken = ""
	_, err = cfg.ServerAuth()
	require.ErrorContains(t, err, "JIRA_API_TOKEN")
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")

	_, err := Load(path, false)
	require.Error(t, err)

	cfg, err := Load(path, true)
	require.NoError(t, err)
	require.Equal(t, ":8787", cfg.Proxy.Listen)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"bad duration":  "[jira]\ntimeout = \"soon\"\n",
		"bad base url":  "[jira]\nbase_url = \"acme.atlassian.net\"\n",
		"bad category":  "[statuses]\n\"Triagem\" = \"pending\"\n",
		"bad level":     "[log]\nlevel = \"loud\"\n",
		"bad toml":      "[jira\n",
		"negative rate": "[proxy]\nrate_limit_per_minute = -1\n",
		"negative page": "[jira]\npage_size = -5\n",
		"bad auth mode": "[jira]\nauth_mode = \"oauth\"\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeTestConfig(t, content), false)
			require.Error(t, err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("JIRA_URL", "https://env.atlassian.net")
	t.Setenv("JIRA_PROJECT", "ops")
	t.Setenv("JIRA_EMAIL", "agent@example.com")
	t.Setenv("JIRA_API_TOKEN", "secret-token")
	t.Setenv("OAUTH_CLIENT_ID", "client-id")
	t.Setenv("OAUTH_CLIENT_SECRET", "client-secret")
	t.Setenv("JSD_LOG_LEVEL", "")

	cfg, err := Load(writeTestConfig(t, validConfig), false)
	require.NoError(t, err)

	require.Equal(t, "https://env.atlassian.net", cfg.Jira.BaseURL)
	require.Equal(t, "OPS", cfg.Jira.Project)
	require.Equal(t, "agent@example.com", cfg.Jira.Email)
	require.Equal(t, "secret-token", cfg.Jira.APIToken)
	require.Equal(t, "client-id", cfg.Proxy.OAuthClientID)
	require.Equal(t, "client-secret", cfg.Proxy.OAuthClientSecret)
	// Empty variables do not clobber file values.
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestDurationMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	require.Equal(t, 90*time.Second, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "1m30s", string(text))
}

func TestExpandHome(t *testing.T) {
	t.Parallel()

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "jsd.toml"), ExpandHome("~/jsd.toml"))
	require.Equal(t, "/etc/jsd.toml", ExpandHome("/etc/jsd.toml"))
	require.Equal(t, "", ExpandHome(""))
}
