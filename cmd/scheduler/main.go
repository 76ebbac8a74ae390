package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/NordCoder/Herald/internal/app"
	config "github.com/NordCoder/Herald/internal/config/scheduler"
	"github.com/NordCoder/Herald/internal/obs"
	"github.com/NordCoder/Herald/internal/services/scheduler"

	"go.uber.org/zap"
)

func main() {
	// init
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := config.Load(app.ConfigPath("scheduler"))
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := app.InitLogger(&cfg.Core)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()
	l.Info("starting scheduler",
		zap.Duration("tick", cfg.Sched.Tick),
		zap.Int("batch_limit", cfg.Sched.BatchLimit),
		zap.String("metrics_addr", cfg.Sched.MetricsAddr),
	)

	// otel
	otelShutdown, err := app.InitOTel(ctx, &cfg.Core)
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// storage, dispatcher and adapters; the sweep delivers in-process
	core, err := app.BuildCore(ctx, &cfg.Core, l, nil)
	if err != nil {
		l.Fatal("build core", zap.Error(err))
	}
	defer core.Close()

	// run metrics server
	ms := obs.BootstrapMetricsServer(cfg.Sched.MetricsAddr, core.Stores.Ping, l)

	runner := scheduler.New(l, core.Scheduler, &cfg.Sched)

	// run
	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	l.Info("scheduler started")

	// loop
	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runner error", zap.Error(err))
		}
	}

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
