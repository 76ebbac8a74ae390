package app

import (
	"context"
	"testing"
	"time"

	common "github.com/NordCoder/Herald/internal/config/common"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/repository/sqlite"
	"github.com/NordCoder/Herald/internal/services/channels"
	"github.com/NordCoder/Herald/internal/services/dispatcher"
	"github.com/NordCoder/Herald/internal/services/inappbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sqliteCore() *common.Core {
	return &common.Core{
		Storage: common.Storage{Driver: common.DriverSQLite, SQLite: sqlite.Config{Path: sqlite.Memory}},
		Cache:   common.Cache{PreferenceTTL: time.Minute},
		Bus:     inappbus.Config{MaxLen: 10},
	}
}

func TestBuildCoreInAppRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, err := BuildCore(ctx, sqliteCore(), zap.NewNop(), nil)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Stores.Ping(ctx))

	res, err := c.Dispatcher.Send(ctx, &notification.InApp{Base: notification.Base{
		UserID: "u1", Type: notification.TypeAchievement, Title: "7 day streak", Message: "keep going",
	}})
	require.NoError(t, err)
	assert.Equal(t, dispatcher.OutcomeSent, res.Outcome)

	items, err := c.Stores.Feed.List(ctx, "u1", true, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, res.NotificationID, items[0].ID)

	page, err := c.Bus.Next(ctx, "test", 0, "u1")
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "7 day streak", page.Entries[0].Title)
}

func TestBuildCoreScheduledGoesThroughSweep(t *testing.T) {
	ctx := context.Background()
	var got []notification.Notification
	record := notification.AdapterFunc(func(_ context.Context, n notification.Notification) error {
		got = append(got, n)
		return nil
	})
	router := dispatcherRouter(record)
	c, err := BuildCore(ctx, sqliteCore(), zap.NewNop(), &router)
	require.NoError(t, err)
	defer c.Close()

	due := time.Now().Add(-time.Second)
	id, err := c.Scheduler.Schedule(ctx, &notification.InApp{Base: notification.Base{
		ID: "n1", UserID: "u1", Type: notification.TypeReminder, Title: "t", Message: "m", Priority: notification.PriorityLow,
	}}, due)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	claimed, sent, _, err := c.Scheduler.Tick(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
	assert.Equal(t, 1, sent)
	require.Len(t, got, 1)
	assert.Equal(t, "n1", got[0].Common().ID)
}

func TestOpenStoresUnknownDriver(t *testing.T) {
	_, err := OpenStores(context.Background(), common.Storage{Driver: "mongo"}, zap.NewNop())
	var cerr common.ErrConfig
	require.ErrorAs(t, err, &cerr)
}

func dispatcherRouter(a notification.Adapter) channels.Set {
	return channels.Set{Email: a, Push: a, SMS: a, InApp: a}
}
