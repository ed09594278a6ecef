// Package proxy is the edge layer in front of Jira: ticket and user search
// with server-held credentials, OAuth code exchange, the dated news store and
// the Atlassian Connect lifecycle.
package proxy

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/SeniorPomidorro/suptech-desk/pkg/apis/atlassian"
	"github.com/SeniorPomidorro/suptech-desk/pkg/transport"
)

// Config holds the proxy settings and the secrets it keeps away from callers.
type Config struct {
	Project            string
	AllowedOrigin      string
	RateLimitPerMinute int
	TokenURL           string
	ClientID           string
	ClientSecret       string

	// FetchAll pages through every matching ticket instead of the first page.
	FetchAll bool

	// JiraBaseURL is the site the server-held credentials belong to. Connect
	// installs from any other site are refused.
	JiraBaseURL string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithTransport sets the HTTP client used for the OAuth code exchange.
func WithTransport(tr *transport.Client) Option {
	return func(s *Server) {
		if tr != nil {
			s.http = tr
		}
	}
}

// WithClock overrides the time source for response timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// Server serves the proxy endpoints.
type Server struct {
	cfg   Config
	jira  *atlassian.Client
	store *Store
	http  *transport.Client
	log   zerolog.Logger
	now   func() time.Time
}

// New builds a Server. jira must carry the server-held credentials for
// cfg.JiraBaseURL.
func New(cfg Config, jira *atlassian.Client, store *Store, opts ...Option) *Server {
	s := &Server{
		cfg:   cfg,
		jira:  jira,
		store: store,
		http:  transport.New(transport.WithoutRetry(), transport.WithTimeout(15*time.Second)),
		log:   zerolog.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if strings.TrimSpace(s.cfg.AllowedOrigin) == "" {
		s.cfg.AllowedOrigin = "*"
	}
	return s
}

// Handler returns the routed handler with CORS, rate limiting, logging and recovery.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestLogger(s.log))
	r.Use(Recoverer(s.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{s.cfg.AllowedOrigin},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	if s.cfg.RateLimitPerMinute > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimitPerMinute, time.Minute))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/tickets", s.tickets)
		r.Get("/users", s.users)
		r.Post("/oauth/token", s.oauthToken)
		r.Get("/news/{date}", s.getNews)
		r.Put("/news/{date}", s.putNews)
	})

	r.Route("/connect", func(r chi.Router) {
		r.Post("/installed", s.installed)
		r.Post("/uninstalled", s.uninstalled)
		r.Get("/tickets", s.connectTickets)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
