package atlassian

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/SeniorPomidorro/suptech-desk/pkg/transport"
)

// AuthMode defines Jira authentication variant.
type AuthMode string

const (
	AuthBasicEmailToken AuthMode = "basic_email_token"
	AuthBearerToken     AuthMode = "bearer"
	AuthBasicToken      AuthMode = "basic_token"
)

// Auth defines Jira credentials.
type Auth struct {
	Mode  AuthMode
	Email string
	Token string
}

// AuthProvider resolves credentials when a request is built. The returned
// Auth is captured by that request only; later changes do not affect it.
type AuthProvider func(ctx context.Context) (Auth, error)

// Option configures Atlassian client.
type Option func(*config) error

type config struct {
	baseURL      string
	auth         Auth
	authProvider AuthProvider
	transport    *transport.Client
}

// Client is Atlassian/Jira HTTP API client.
type Client struct {
	baseURL      *url.URL
	auth         Auth
	authProvider AuthProvider
	transport    *transport.Client

	issues *IssuesService
	users  *UsersService
}

// NewClient creates Atlassian client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := config{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if strings.TrimSpace(cfg.baseURL) == "" {
		return nil, errors.New("atlassian: base URL is required")
	}

	parsedURL, err := url.Parse(strings.TrimRight(cfg.baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("atlassian: parse base URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, errors.New("atlassian: base URL must include scheme and host")
	}

	if cfg.transport == nil {
		cfg.transport = transport.New()
	}

	client := &Client{
		baseURL:      parsedURL,
		auth:         cfg.auth,
		authProvider: cfg.authProvider,
		transport:    cfg.transport,
	}
	client.issues = &IssuesService{client: client}
	client.users = &UsersService{client: client}

	return client, nil
}

// WithBaseURL sets Jira base URL.
func WithBaseURL(baseURL string) Option {
	return func(cfg *config) error {
		cfg.baseURL = baseURL
		return nil
	}
}

// WithAuth sets authentication mode and credentials.
func WithAuth(auth Auth) Option {
	return func(cfg *config) error {
		cfg.auth = auth
		return nil
	}
}

// WithAuthProvider resolves credentials per request instead of using a fixed Auth.
func WithAuthProvider(provider AuthProvider) Option {
	return func(cfg *config) error {
		if provider == nil {
			return errors.New("atlassian: auth provider is nil")
		}
		cfg.authProvider = provider
		return nil
	}
}

// WithTransport injects shared transport.
func WithTransport(tr *transport.Client) Option {
	return func(cfg *config) error {
		cfg.transport = tr
		return nil
	}
}

// Issues returns issues API service.
func (c *Client) Issues() *IssuesService {
	return c.issues
}

// Users returns users API service.
func (c *Client) Users() *UsersService {
	return c.users
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("atlassian: marshal request body: %w", err)
		}
		payload = encoded
	}

	return c.newRawRequest(ctx, method, path, query, payload, "application/json")
}

func (c *Client) newRawRequest(ctx context.Context, method, path string, query url.Values, body []byte, contentType string) (*http.Request, error) {
	if c == nil {
		return nil, errors.New("atlassian: client is nil")
	}

	rel := path
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}

	// rel is already escaped; keep it as RawPath so escaped key segments survive.
	endpoint := *c.baseURL
	endpoint.RawPath = strings.TrimRight(c.baseURL.EscapedPath(), "/") + rel
	unescaped, err := url.PathUnescape(endpoint.RawPath)
	if err != nil {
		return nil, fmt.Errorf("atlassian: invalid request path %q: %w", rel, err)
	}
	endpoint.Path = unescaped
	endpoint.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("atlassian: create request: %w", err)
	}

	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	auth, err := c.resolveAuth(ctx)
	if err != nil {
		return nil, err
	}
	authValue, err := authHeaderValue(auth)
	if err != nil {
		return nil, err
	}
	if authValue != "" {
		req.Header.Set("Authorization", authValue)
	}

	return req, nil
}

func (c *Client) resolveAuth(ctx context.Context) (Auth, error) {
	if c.authProvider == nil {
		return c.auth, nil
	}
	auth, err := c.authProvider(ctx)
	if err != nil {
		return Auth{}, fmt.Errorf("atlassian: resolve credentials: %w", err)
	}
	return auth, nil
}

func authHeaderValue(auth Auth) (string, error) {
	switch auth.Mode {
	case "":
		return "", nil
	case AuthBasicEmailToken:
		if strings.TrimSpace(auth.Email) == "" || strings.TrimSpace(auth.Token) == "" {
			return "", errors.New("atlassian: email and token are required for basic email/token auth")
		}
		return transport.BasicAuth(auth.Email, auth.Token), nil
	case AuthBearerToken:
		if strings.TrimSpace(auth.Token) == "" {
			return "", errors.New("atlassian: token is required for bearer auth")
		}
		return "Bearer " + auth.Token, nil
	case AuthBasicToken:
		if strings.TrimSpace(auth.Token) == "" {
			return "", errors.New("atlassian: token is required for direct basic auth")
		}
		return "Basic " + auth.Token, nil
	default:
		return "", fmt.Errorf("atlassian: unsupported auth mode %q", auth.Mode)
	}
}

func (c *Client) doNoResponseBody(req *http.Request) error {
	resp, err := c.transport.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return transport.NewAPIError(resp, 0)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func issuePath(ticketKey string, suffix ...string) string {
	path := "/rest/api/3/issue/" + url.PathEscape(ticketKey)
	for _, part := range suffix {
		path += "/" + part
	}
	return path
}
