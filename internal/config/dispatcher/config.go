package dispatcher_config

import (
	common "github.com/NordCoder/Herald/internal/config/common"
	"github.com/NordCoder/Herald/internal/outbox"
	"github.com/NordCoder/Herald/internal/services/tracker"
)

type Server struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type Config struct {
	common.Core `mapstructure:",squash"`

	Kafka   common.Kafka         `mapstructure:"kafka"`
	Outbox  outbox.Config        `mapstructure:"outbox"`
	Tracker tracker.PrunerConfig `mapstructure:"tracker"`
	Server  Server               `mapstructure:"server"`
}
