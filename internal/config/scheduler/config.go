package scheduler_config

import (
	"time"

	common "github.com/NordCoder/Herald/internal/config/common"
)

type SchedCfg struct {
	Tick        time.Duration `mapstructure:"tick"`
	BatchLimit  int           `mapstructure:"batch_limit"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
}

type Config struct {
	common.Core `mapstructure:",squash"`

	Sched SchedCfg `mapstructure:"sched"`
}
