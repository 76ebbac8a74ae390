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
	config "github.com/NordCoder/Herald/internal/config/dispatcher"
	"github.com/NordCoder/Herald/internal/obs"
	"github.com/NordCoder/Herald/internal/obs/retry"
	"github.com/NordCoder/Herald/internal/outbox"
	kafkax "github.com/NordCoder/Herald/internal/repository/kafka"
	"github.com/NordCoder/Herald/internal/services/dispatcher"
	"github.com/NordCoder/Herald/internal/services/tracker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := config.Load(app.ConfigPath("dispatcher"))
	if err != nil {
		log.Fatal(err)
	}

	l, err := app.InitLogger(&cfg.Core)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()
	l.Info("starting dispatcher",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("intake_topic", cfg.Kafka.IntakeTopic),
		zap.String("status_topic", cfg.Kafka.StatusTopic),
		zap.String("storage", cfg.Storage.Driver),
	)

	otelShutdown, err := app.InitOTel(ctx, &cfg.Core)
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	core, err := app.BuildCore(ctx, &cfg.Core, l, nil)
	if err != nil {
		l.Fatal("build core", zap.Error(err))
	}
	defer core.Close()

	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, core.Stores.Ping, l)

	// intake
	sub := kafkax.BootstrapConsumer(ctx, &kafkax.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topic:   cfg.Kafka.IntakeTopic,
		Logger:  l,
	}, cfg.Kafka.Partitions, l)
	defer func() { _ = sub.Close() }()
	ctrl := &dispatcher.Controller{Log: l.With(zap.String("component", "dispatcher.intake")), Sub: sub, UC: core.Dispatcher}

	// status relay
	prod := kafkax.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.StatusTopic).WithLogger(l)
	defer func() { _ = prod.Close() }()
	relay := outbox.NewOutboxRunner(l, core.Stores.Outbox,
		outbox.MakeGlobalOutboxHandler(kafkax.NewDeliveryEventsKafka(prod), retry.DefaultKafkaPolicy(l)),
		cfg.Outbox)

	// retention
	pruner, err := tracker.NewPruner(l, core.Tracker, core.Stores.Outbox, cfg.Tracker)
	if err != nil {
		l.Fatal("pruner", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctrl.Run(gctx) })
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return pruner.Run(gctx) })

	l.Info("dispatcher started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		l.Error("dispatcher stopped", zap.Error(err))
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
