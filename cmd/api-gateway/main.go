package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/NordCoder/Herald/internal/app"
	config "github.com/NordCoder/Herald/internal/config/api-gateway"
	"github.com/NordCoder/Herald/internal/services/scheduler"
	"go.uber.org/zap"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(app.ConfigPath("api-gateway"))
	if err != nil {
		panic(err)
	}

	logger, err := app.InitLogger(&cfg.Core)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting api-gateway",
		zap.String("env", cfg.App.Env), zap.String("ver", cfg.App.Version),
		zap.String("storage", cfg.Storage.Driver))

	otelShutdown, err := app.InitOTel(rootCtx, &cfg.Core)
	if err != nil {
		logger.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	core, err := app.BuildCore(rootCtx, &cfg.Core, logger, nil)
	if err != nil {
		logger.Fatal("build core", zap.Error(err))
	}
	defer core.Close()

	sweepErrCh := make(chan error, 1)
	if cfg.Sweep.Enable {
		runner := scheduler.New(logger, core.Scheduler, &cfg.Sweep.SchedCfg)
		go func() { sweepErrCh <- runner.Run(rootCtx) }()
		logger.Info("embedded sweep started", zap.Duration("tick", cfg.Sweep.Tick))
	}

	httpSrv := buildHTTPServer(cfg, logger, core)
	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- serveHTTP(httpSrv, cfg, logger) }()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal", zap.String("reason", "context canceled"))
	case err := <-httpErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", zap.Error(err))
		}
	case err := <-sweepErrCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sweep", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shCtx)
	logger.Info("bye")
}
