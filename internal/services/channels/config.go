package channels

import "time"

type SMTPConfig struct {
	Addr       string        `mapstructure:"addr"`
	From       string        `mapstructure:"from"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	UseTLS     bool          `mapstructure:"use_tls"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SubjPrefix string        `mapstructure:"subj_prefix"`

	LimitConfig `mapstructure:",squash"`
}

// ProviderConfig describes an HTTP push or SMS gateway.
type ProviderConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	APIKey    string        `mapstructure:"api_key"`
	Sender    string        `mapstructure:"sender"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Attempts  int           `mapstructure:"attempts"`
	VerifyTLS bool          `mapstructure:"verify_tls"`

	LimitConfig `mapstructure:",squash"`
}

type LimitConfig struct {
	RatePerSec float64 `mapstructure:"rate_per_sec"`
	Burst      int     `mapstructure:"burst"`
}

type Config struct {
	Email SMTPConfig     `mapstructure:"email"`
	Push  ProviderConfig `mapstructure:"push"`
	SMS   ProviderConfig `mapstructure:"sms"`
	InApp LimitConfig    `mapstructure:"in_app"`
}
