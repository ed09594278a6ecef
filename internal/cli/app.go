package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/SeniorPomidorro/suptech-desk/internal/config"
	"github.com/SeniorPomidorro/suptech-desk/internal/credentials"
	"github.com/SeniorPomidorro/suptech-desk/internal/desk"
	"github.com/SeniorPomidorro/suptech-desk/internal/render"
	"github.com/SeniorPomidorro/suptech-desk/pkg/apis/atlassian"
	"github.com/SeniorPomidorro/suptech-desk/pkg/transport"
)

const userAgent = "jsd"

var errNoBaseURL = errors.New("jira base URL is not configured (set [jira] base_url or JIRA_URL)")

// app holds what one invocation needs. desk and client are nil until connect.
type app struct {
	cfg    *config.Config
	creds  credentials.Store // effective credentials for Jira calls
	stored credentials.Store // what login and logout manage
	log    zerolog.Logger
	out    io.Writer
	errOut io.Writer
	width  int
	now    func() time.Time
	secret func(prompt string) (string, error)

	http    *transport.Client
	client  *atlassian.Client
	desk    *desk.Desk
	printer *render.Printer
}

func newApp(g globalFlags, stdout, stderr io.Writer, opts Options) (*app, error) {
	path, optional := configPath(g.configPath)
	cfg, err := config.Load(path, optional)
	if err != nil {
		return nil, err
	}

	stored := opts.Creds
	if stored == nil {
		stored = defaultCreds()
	}
	creds := stored
	// Credentials from the environment take precedence over stored ones.
	if cfg.Jira.Email != "" && cfg.Jira.APIToken != "" {
		env := credentials.NewMemoryStore()
		if err := env.Set(cfg.Jira.Email, cfg.Jira.APIToken, false); err != nil {
			return nil, fmt.Errorf("JIRA_EMAIL/JIRA_API_TOKEN: %w", err)
		}
		creds = env
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	secret := opts.ReadSecret
	if secret == nil {
		secret = readTerminalSecret
	}
	width := g.width
	if width <= 0 {
		width = terminalWidth(stdout)
	}

	log := newLogger(stderr, cfg.LogLevel(), g.debug)
	httpClient := transport.New(
		transport.WithoutRetry(),
		transport.WithTimeout(cfg.Jira.Timeout.Duration),
		transport.WithLogger(log),
		transport.WithBaseHeaders(http.Header{"User-Agent": {userAgent}}),
	)
	return &app{
		cfg:     cfg,
		creds:   creds,
		stored:  stored,
		log:     log,
		out:     stdout,
		errOut:  stderr,
		width:   width,
		now:     now,
		secret:  secret,
		http:    httpClient,
		printer: newPrinter(stdout, width, nil),
	}, nil
}

// connect builds the Jira client and desk. Credentials are read from the
// store when each request is built, so login in another shell takes effect
// without restarting anything.
func (a *app) connect() error {
	if a.cfg.Jira.BaseURL == "" {
		return errNoBaseURL
	}
	if a.cfg.Jira.Project == "" {
		return errors.New("jira project is not configured (set [jira] project or JIRA_PROJECT)")
	}

	client, err := a.newClient(atlassian.WithAuthProvider(desk.CredentialAuth(a.creds)))
	if err != nil {
		return err
	}

	table, err := a.cfg.StatusTable()
	if err != nil {
		return err
	}

	a.client = client
	a.desk = desk.New(
		desk.NewJiraSource(client, a.cfg.Jira.Project,
			desk.WithPageSize(a.cfg.Jira.PageSize),
			desk.WithFetchAll(a.cfg.Jira.FetchAll),
		),
		a.creds,
		desk.WithLogger(a.log),
		desk.WithViewOptions(desk.WithStatusTable(table), desk.WithClock(a.now)),
		desk.WithWorkflowOptions(desk.WithCallTimeout(a.cfg.Jira.Timeout.Duration)),
	)
	a.printer = newPrinter(a.out, a.width, a.desk.View())
	return nil
}

func (a *app) newClient(auth atlassian.Option) (*atlassian.Client, error) {
	if a.cfg.Jira.BaseURL == "" {
		return nil, errNoBaseURL
	}
	return atlassian.NewClient(
		atlassian.WithBaseURL(a.cfg.Jira.BaseURL),
		auth,
		atlassian.WithTransport(a.http),
	)
}
