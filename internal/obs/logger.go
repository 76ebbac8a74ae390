package obs

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogConfig struct {
	Level  string
	Pretty bool
	App    string
	Env    string
	Ver    string
}

// NewLogger builds a JSON logger, or a console one when Pretty is set. An unknown level
// falls back to info. Errors carry a stack trace only in pretty mode.
func NewLogger(c LogConfig) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	opts := []zap.Option{zap.AddStacktrace(zapcore.DPanicLevel)}
	if c.Pretty {
		cfg = zap.NewDevelopmentConfig()
		opts = []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	}

	level := zapcore.InfoLevel
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			level = zapcore.InfoLevel
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	l, err := cfg.Build(append(opts, zap.Fields(serviceFields(c)...))...)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func serviceFields(c LogConfig) []zap.Field {
	fs := []zap.Field{zap.String("service", c.App)}
	if c.Env != "" {
		fs = append(fs, zap.String("env", c.Env))
	}
	if c.Ver != "" {
		fs = append(fs, zap.String("version", c.Ver))
	}
	return fs
}
