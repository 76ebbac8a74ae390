package common_config

import (
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/obs"
	pg "github.com/NordCoder/Herald/internal/repository/postgres"
	"github.com/NordCoder/Herald/internal/repository/sqlite"
	"github.com/NordCoder/Herald/internal/services/channels"
	"github.com/NordCoder/Herald/internal/services/inappbus"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (lc *Log) AsLoggerConfig(app App) obs.LogConfig {
	return obs.LogConfig{
		Level:  lc.Level,
		Pretty: lc.Pretty,
		App:    "herald/" + app.Name,
		Env:    app.Env,
		Ver:    app.Version,
	}
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// AsOTELConfig falls back to the logger's service name when none is configured.
func (oc *OTEL) AsOTELConfig(app App) *obs.OTELConfig {
	name := oc.ServiceName
	if name == "" {
		name = "herald-" + app.Name
	}
	return &obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: name,
		Version:     app.Version,
		Env:         app.Env,
		SampleRatio: oc.SampleRatio,
	}
}

// Storage picks the backend for every store. sqlite is meant for a single process.
type Storage struct {
	Driver   string        `mapstructure:"driver"`
	Postgres pg.Config     `mapstructure:"postgres"`
	SQLite   sqlite.Config `mapstructure:"sqlite"`
}

type Kafka struct {
	Brokers     []string `mapstructure:"brokers"`
	IntakeTopic string   `mapstructure:"intake_topic"`
	StatusTopic string   `mapstructure:"status_topic"`
	GroupID     string   `mapstructure:"group_id"`
	Partitions  int      `mapstructure:"partitions"`
	// StatusRetention bounds how long delivery status events stay on the topic.
	StatusRetention time.Duration `mapstructure:"status_retention"`
}

type Cache struct {
	PreferenceTTL time.Duration `mapstructure:"preference_ttl"`
}

// Core is what every process needs to build the dispatcher.
type Core struct {
	App      App             `mapstructure:"app"`
	Log      Log             `mapstructure:"log"`
	OTEL     OTEL            `mapstructure:"otel"`
	Storage  Storage         `mapstructure:"storage"`
	Channels channels.Config `mapstructure:"channels"`
	Cache    Cache           `mapstructure:"cache"`
	Bus      inappbus.Config `mapstructure:"bus"`
}

func (c *Core) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.Postgres.DSN == "" {
			return ErrConfig("storage.postgres.dsn is required")
		}
	case DriverSQLite:
		if c.Storage.SQLite.Path == "" {
			return ErrConfig("storage.sqlite.path is required")
		}
	default:
		return ErrConfig(fmt.Sprintf("unknown storage.driver %q", c.Storage.Driver))
	}
	if c.Cache.PreferenceTTL <= 0 {
		return ErrConfig("cache.preference_ttl must be positive")
	}
	return nil
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
