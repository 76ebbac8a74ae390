package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var mPruned = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tracker_pruned_rows_total",
	Help: "Rows removed by the retention job.",
}, []string{"table"})

// OutboxPruner is implemented by the outbox stores; relayed messages are kept as long as events.
type OutboxPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type PrunerConfig struct {
	Spec      string        `mapstructure:"prune_cron"`
	Retention time.Duration `mapstructure:"retention"`
}

// Pruner runs the retention pass on a cron schedule.
type Pruner struct {
	log     *zap.Logger
	tracker *Tracker
	outbox  OutboxPruner
	cfg     PrunerConfig
	c       *cron.Cron
}

func NewPruner(log *zap.Logger, t *Tracker, ob OutboxPruner, cfg PrunerConfig) (*Pruner, error) {
	if cfg.Spec == "" {
		cfg.Spec = "@every 1h"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	p := &Pruner{
		log:     log.With(zap.String("component", "tracker.pruner")),
		tracker: t,
		outbox:  ob,
		cfg:     cfg,
		c:       cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
	}
	if _, err := p.c.AddFunc(cfg.Spec, func() { p.Once(context.Background()) }); err != nil {
		return nil, fmt.Errorf("prune schedule %q: %w", cfg.Spec, err)
	}
	return p, nil
}

// Once runs a single retention pass.
func (p *Pruner) Once(ctx context.Context) {
	before := p.tracker.clock.Now().Add(-p.cfg.Retention)

	n, err := p.tracker.Prune(ctx, before)
	if err != nil {
		p.log.Warn("prune events", zap.Error(err))
	} else {
		mPruned.WithLabelValues("delivery_events").Add(float64(n))
	}

	if p.outbox != nil {
		m, err := p.outbox.Prune(ctx, before)
		if err != nil {
			p.log.Warn("prune outbox", zap.Error(err))
		} else {
			mPruned.WithLabelValues("outbox").Add(float64(m))
			n += m
		}
	}
	p.log.Debug("retention pass", zap.Time("before", before), zap.Int64("rows", n))
}

func (p *Pruner) Run(ctx context.Context) error {
	p.c.Start()
	<-ctx.Done()
	<-p.c.Stop().Done()
	return ctx.Err()
}
