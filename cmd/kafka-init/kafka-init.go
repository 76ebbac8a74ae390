package main

import (
	"context"
	"log"
	"time"

	"github.com/NordCoder/Herald/internal/app"
	config "github.com/NordCoder/Herald/internal/config/dispatcher"
	kafkax "github.com/NordCoder/Herald/internal/repository/kafka"
	"go.uber.org/zap"
)

// kafka-init creates the intake and status topics before the services start.
func main() {
	cfg, err := config.Load(app.ConfigPath("dispatcher"))
	if err != nil {
		log.Fatal(err)
	}
	l, err := app.InitLogger(&cfg.Core)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	err = kafkax.EnsureTopics(ctx, cfg.Kafka.Brokers, 30*time.Second, l,
		kafkax.TopicSpec{Name: cfg.Kafka.IntakeTopic, NumPartitions: cfg.Kafka.Partitions},
		kafkax.TopicSpec{Name: cfg.Kafka.StatusTopic, NumPartitions: cfg.Kafka.Partitions, Retention: cfg.Kafka.StatusRetention},
	)
	if err != nil {
		l.Fatal("ensure topics", zap.Strings("brokers", cfg.Kafka.Brokers), zap.Error(err))
	}
	l.Info("kafka-init ok", zap.String("intake", cfg.Kafka.IntakeTopic), zap.String("status", cfg.Kafka.StatusTopic))
}
