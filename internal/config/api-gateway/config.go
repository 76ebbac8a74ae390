package api_gateway_config

import (
	"time"

	common "github.com/NordCoder/Herald/internal/config/common"
	scheduler_config "github.com/NordCoder/Herald/internal/config/scheduler"
)

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type Config struct {
	common.Core `mapstructure:",squash"`

	Server Server `mapstructure:"server"`
	Sweep  Sweep  `mapstructure:"sweep"`
}

// Sweep runs the scheduler inside the gateway, for single-process sqlite deployments.
type Sweep struct {
	Enable bool `mapstructure:"enable"`

	scheduler_config.SchedCfg `mapstructure:",squash"`
}
