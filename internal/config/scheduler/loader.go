package scheduler_config

import (
	common "github.com/NordCoder/Herald/internal/config/common"
)

func Load(path string) (*Config, error) {
	v := common.NewViper(path)
	common.SetDefaults(v, "scheduler")

	v.SetDefault("sched.tick", "1s")
	v.SetDefault("sched.batch_limit", 100)
	v.SetDefault("sched.metrics_addr", ":8082")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Sched.BatchLimit <= 0 {
		return nil, common.ErrConfig("sched.batch_limit must be positive")
	}
	return &cfg, nil
}
