package app

import (
	"context"

	common "github.com/NordCoder/Herald/internal/config/common"
	"github.com/NordCoder/Herald/internal/obs"
	"go.uber.org/zap"
)

func InitLogger(cfg *common.Core) (*zap.Logger, error) {
	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig(cfg.App))
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(l)
	return l, nil
}

func InitOTel(ctx context.Context, cfg *common.Core) (func(context.Context) error, error) {
	o, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig(cfg.App))
	if err != nil {
		return nil, err
	}
	return o.Shutdown, nil
}
