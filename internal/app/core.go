package app

import (
	"context"

	common "github.com/NordCoder/Herald/internal/config/common"
	"github.com/NordCoder/Herald/internal/domain/inapp"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/services/channels"
	"github.com/NordCoder/Herald/internal/services/dispatcher"
	"github.com/NordCoder/Herald/internal/services/inappbus"
	prefsvc "github.com/NordCoder/Herald/internal/services/preference"
	"github.com/NordCoder/Herald/internal/services/scheduler"
	"github.com/NordCoder/Herald/internal/services/tracker"
	"go.uber.org/zap"
)

// Core is the dispatcher with everything it depends on.
type Core struct {
	Stores      *Stores
	Preferences *prefsvc.Service
	Tracker     *tracker.Tracker
	Bus         *inappbus.Bus
	Scheduler   *scheduler.Usecase
	Dispatcher  *dispatcher.Dispatcher
	Channels    channels.Set
	Clock       notification.Clock
}

// BuildCore opens storage and wires the services. A nil router means the configured
// channel providers.
func BuildCore(ctx context.Context, cfg *common.Core, log *zap.Logger, router *channels.Set) (*Core, error) {
	stores, err := OpenStores(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	clock := notification.SystemClock{}
	set := BuildChannels(cfg.Channels, stores.Feed, log)
	if router != nil {
		set = *router
	}

	c := &Core{Stores: stores, Channels: set, Clock: clock}
	c.Preferences = prefsvc.NewService(prefsvc.NewCache(stores.Preferences, cfg.Cache.PreferenceTTL), clock, log)
	c.Tracker = tracker.New(stores.Deliveries, stores.Outbox, stores.Tx, clock, log)
	c.Bus = inappbus.New(stores.InApp, cfg.Bus, clock, log)
	c.Scheduler = scheduler.NewUC(stores.Schedules, clock, log)
	c.Scheduler.Tx = stores.Tx
	c.Dispatcher = dispatcher.New(c.Preferences, c.Scheduler, c.Tracker, c.Bus, set, clock, log)
	c.Scheduler.Deliverer = c.Dispatcher
	return c, nil
}

func (c *Core) Close() { c.Stores.Close() }

// BuildChannels builds the rate limited production adapters.
func BuildChannels(cfg channels.Config, feed inapp.FeedRepo, log *zap.Logger) channels.Set {
	return channels.Set{
		Email: channels.Limited(channels.NewEmailAdapter(channels.NewMailer(cfg.Email, log), cfg.Email, log), cfg.Email.LimitConfig),
		Push:  channels.Limited(channels.NewPushAdapter(cfg.Push, channels.NewHTTPClient(cfg.Push), log), cfg.Push.LimitConfig),
		SMS:   channels.Limited(channels.NewSMSAdapter(cfg.SMS, channels.NewHTTPClient(cfg.SMS), log), cfg.SMS.LimitConfig),
		InApp: channels.Limited(channels.NewInAppAdapter(feed), cfg.InApp),
	}
}
