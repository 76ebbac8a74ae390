package app

import (
	"context"
	"fmt"

	common "github.com/NordCoder/Herald/internal/config/common"
	"github.com/NordCoder/Herald/internal/domain/delivery"
	"github.com/NordCoder/Herald/internal/domain/inapp"
	"github.com/NordCoder/Herald/internal/domain/outbox"
	"github.com/NordCoder/Herald/internal/domain/preference"
	"github.com/NordCoder/Herald/internal/domain/schedule"
	pg "github.com/NordCoder/Herald/internal/repository/postgres"
	"github.com/NordCoder/Herald/internal/repository/sqlite"
	"github.com/NordCoder/Herald/internal/services/tracker"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type OutboxStore interface {
	outbox.Repository
	tracker.OutboxPruner
}

// Stores is one storage backend behind the domain ports.
type Stores struct {
	Preferences preference.Repo
	Schedules   schedule.Repo
	Deliveries  delivery.Repo
	InApp       inapp.Log
	Feed        inapp.FeedRepo
	Outbox      OutboxStore
	Tx          tracker.Transactor

	Ping  func(ctx context.Context) error
	close func()
}

func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

func OpenStores(ctx context.Context, cfg common.Storage, log *zap.Logger) (*Stores, error) {
	switch cfg.Driver {
	case common.DriverPostgres:
		db, err := pg.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := db.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			log.Warn("postgres pool metrics", zap.Error(err))
		}
		log.Info("storage ready", zap.String("driver", cfg.Driver))
		return &Stores{
			Preferences: pg.NewPreferenceRepo(db),
			Schedules:   pg.NewScheduleRepo(db),
			Deliveries:  pg.NewDeliveryRepo(db),
			InApp:       pg.NewInAppLogRepo(db, log),
			Feed:        pg.NewFeedRepo(db),
			Outbox:      pg.NewOutboxRepo(db),
			Tx:          pg.NewTransactor(db, log.With(zap.String("component", "postgres.tx"))),
			Ping:        db.Ping,
			close:       db.Close,
		}, nil
	case common.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLite)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		log.Info("storage ready", zap.String("driver", cfg.Driver), zap.String("path", cfg.SQLite.Path))
		return &Stores{
			Preferences: sqlite.NewPreferenceRepo(db),
			Schedules:   sqlite.NewScheduleRepo(db),
			Deliveries:  sqlite.NewDeliveryRepo(db),
			InApp:       sqlite.NewInAppLogRepo(db),
			Feed:        sqlite.NewFeedRepo(db),
			Outbox:      sqlite.NewOutboxRepo(db),
			Tx:          db,
			Ping:        db.Ping,
			close:       func() { _ = db.Close() },
		}, nil
	}
	return nil, common.ErrConfig(fmt.Sprintf("unknown storage.driver %q", cfg.Driver))
}
