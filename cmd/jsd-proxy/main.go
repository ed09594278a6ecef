// Command jsd-proxy serves the service desk edge endpoints.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/SeniorPomidorro/suptech-desk/internal/config"
	"github.com/SeniorPomidorro/suptech-desk/internal/proxy"
	"github.com/SeniorPomidorro/suptech-desk/pkg/apis/atlassian"
	"github.com/SeniorPomidorro/suptech-desk/pkg/transport"
)

func main() {
	configPath := flag.StringP("config", "c", "", "config file (default "+config.DefaultPath()+")")
	flag.Parse()

	path, optional := *configPath, false
	if path == "" {
		path, optional = config.DefaultPath(), true
	}

	// config + logger
	zerolog.TimeFieldFormat = time.RFC3339
	boot := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(path, optional)
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	l := boot.Level(cfg.LogLevel())

	if cfg.Jira.BaseURL == "" {
		l.Fatal().Msg("JIRA_URL is required")
	}
	auth, err := cfg.ServerAuth()
	if err != nil {
		l.Fatal().Err(err).Str("auth_mode", cfg.Jira.AuthMode).Msg("server credentials")
	}

	// store
	store, err := proxy.OpenStore(config.ExpandHome(cfg.Proxy.DBPath))
	if err != nil {
		l.Fatal().Err(err).Msg("open store")
	}
	defer store.Close()

	// upstream
	httpClient := transport.New(
		transport.WithoutRetry(),
		transport.WithTimeout(cfg.Jira.Timeout.Duration),
		transport.WithLogger(l),
		transport.WithBaseHeaders(http.Header{"User-Agent": {"jsd-proxy"}}),
	)
	jira, err := atlassian.NewClient(
		atlassian.WithBaseURL(cfg.Jira.BaseURL),
		atlassian.WithAuth(auth),
		atlassian.WithTransport(httpClient),
	)
	if err != nil {
		l.Fatal().Err(err).Msg("jira client")
	}

	// http
	server := proxy.New(proxy.Config{
		Project:            cfg.Jira.Project,
		AllowedOrigin:      cfg.Proxy.AllowedOrigin,
		RateLimitPerMinute: cfg.Proxy.RateLimitPerMinute,
		TokenURL:           cfg.Proxy.TokenURL,
		ClientID:           cfg.Proxy.OAuthClientID,
		ClientSecret:       cfg.Proxy.OAuthClientSecret,
		FetchAll:           cfg.Jira.FetchAll,
		JiraBaseURL:        cfg.Jira.BaseURL,
	}, jira, store, proxy.WithLogger(l), proxy.WithTransport(httpClient))

	srv := &http.Server{
		Addr:              cfg.Proxy.Listen,
		Handler:           server.Handler(),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		l.Info().Str("addr", srv.Addr).Str("project", cfg.Jira.Project).Msg("proxy listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("shutdown")
	}
	l.Info().Msg("shutdown complete")
}
