package scheduler

import (
	"context"
	"time"

	config "github.com/NordCoder/Herald/internal/config/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	mClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_entries_claimed_total", Help: "Due entries claimed from the schedule store",
	})
	mSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_entries_sent_total", Help: "Claimed entries delivered",
	})
	mNotSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_entries_not_sent_total", Help: "Claimed entries suppressed, failed or undecodable",
	})
	mErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_errors_total", Help: "Errors in scheduler loop",
	})
	mLoopDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "scheduler_loop_duration_seconds", Help: "Scheduler tick duration",
		Buckets: prometheus.DefBuckets,
	})
)

type Runner struct {
	Log *zap.Logger
	UC  *Usecase
	Cfg *config.SchedCfg
}

func New(log *zap.Logger, uc *Usecase, cfg *config.SchedCfg) *Runner {
	return &Runner{Log: log.With(zap.String("component", "scheduler.runner")), UC: uc, Cfg: cfg}
}

func (r *Runner) tick(ctx context.Context) {
	start := time.Now()
	claimed, sent, notSent, err := r.UC.Tick(ctx, r.Cfg.BatchLimit)
	if err != nil {
		mErr.Inc()
		r.Log.Warn("tick error", zap.Error(err))
	}
	if claimed > 0 {
		mClaimed.Add(float64(claimed))
		mSent.Add(float64(sent))
		mNotSent.Add(float64(notSent))
		r.Log.Debug("swept batch", zap.Int("claimed", claimed), zap.Int("sent", sent), zap.Int("not_sent", notSent))
	}
	mLoopDur.Observe(time.Since(start).Seconds())
}

func (r *Runner) Run(ctx context.Context) error {
	every := r.Cfg.Tick
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}
