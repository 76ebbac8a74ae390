package main

import (
	"net/http"
	"time"

	"github.com/NordCoder/Herald/internal/app"
	config "github.com/NordCoder/Herald/internal/config/api-gateway"
	"github.com/NordCoder/Herald/internal/services/api-gateway/rest"
	"go.uber.org/zap"
)

func buildHTTPServer(cfg *config.Config, logger *zap.Logger, core *app.Core) *http.Server {
	srv := rest.NewServer(logger, rest.Deps{
		Dispatcher:  core.Dispatcher,
		Preferences: core.Preferences,
		Scheduler:   core.Scheduler,
		Tracker:     core.Tracker,
		Bus:         core.Bus,
		Feed:        core.Stores.Feed,
		Clock:       core.Clock,
		Health:      core.Stores.Ping,
	}, cfg.Server.AllowedOrigins)

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func serveHTTP(srv *http.Server, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
	return srv.ListenAndServe()
}
