package dispatcher_config

import (
	common "github.com/NordCoder/Herald/internal/config/common"
)

func Load(path string) (*Config, error) {
	v := common.NewViper(path)
	common.SetDefaults(v, "dispatcher")
	common.SetKafkaDefaults(v)

	v.SetDefault("outbox.workers", 2)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.wait_time", "1s")
	v.SetDefault("outbox.in_progress_ttl", "30s")

	v.SetDefault("tracker.prune_cron", "@every 1h")
	v.SetDefault("tracker.retention", "720h")

	v.SetDefault("server.metrics_addr", ":8083")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, common.ErrConfig("kafka.brokers is required")
	}
	return &cfg, nil
}
