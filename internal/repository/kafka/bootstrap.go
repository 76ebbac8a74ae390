package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// BootstrapConsumer makes sure the topic exists before joining the group. A failure to
// create it is logged and left to the broker's auto-create.
func BootstrapConsumer(ctx context.Context, cfg *ConsumerConfig, partitions int, logger *zap.Logger) *Consumer {
	err := EnsureTopics(ctx, cfg.Brokers, 5*time.Second, logger, TopicSpec{
		Name:          cfg.Topic,
		NumPartitions: partitions,
	})
	if err != nil {
		logger.Warn("intake topic not confirmed", zap.String("topic", cfg.Topic), zap.Error(err))
	}
	return NewConsumer(cfg)
}
