//go:build integration

package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/NordCoder/Herald/internal/domain/delivery"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/domain/preference"
	pg "github.com/NordCoder/Herald/internal/repository/postgres"
	"github.com/NordCoder/Herald/internal/services/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openPG(t *testing.T) *pg.DB {
	t.Helper()
	c := LoadCfg()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := pg.New(ctx, pg.Config{DSN: c.DBDSN, QueryTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func Test_Postgres_PreferencesRoundTrip(t *testing.T) {
	db := openPG(t)
	repo := pg.NewPreferenceRepo(db)
	ctx := context.Background()

	user := RandUser("pg")
	_, err := repo.Get(ctx, user)
	require.ErrorIs(t, err, preference.ErrNotFound)

	p := preference.Default(user)
	p.Channels[notification.ChannelPush] = false
	p.Contact.Email = user + "@example.test"
	p.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.Set(ctx, p))

	got, err := repo.Get(ctx, user)
	require.NoError(t, err)
	assert.False(t, got.Channels[notification.ChannelPush])
	assert.Equal(t, p.Contact.Email, got.Contact.Email)
}

func Test_Postgres_TransactorRollsBack(t *testing.T) {
	db := openPG(t)
	tx := pg.NewTransactor(db, zaptest.NewLogger(t))
	repo := pg.NewDeliveryRepo(db)
	ctx := context.Background()

	id := RandUser("n")
	now := time.Now().UTC()
	boom := errors.New("boom")
	err := tx.WithTx(ctx, func(ctx context.Context) error {
		rec := &delivery.Record{
			NotificationID: id, Channel: notification.ChannelEmail,
			Status: delivery.StatusPending, PendingAt: &now, UpdatedAt: now,
		}
		if err := repo.Save(ctx, rec); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.Get(ctx, id, notification.ChannelEmail)
	require.ErrorIs(t, err, delivery.ErrNotFound)

	require.NoError(t, tx.WithTx(ctx, func(ctx context.Context) error {
		return repo.Save(ctx, &delivery.Record{
			NotificationID: id, Channel: notification.ChannelEmail,
			Status: delivery.StatusPending, PendingAt: &now, UpdatedAt: now,
		})
	}))
	rec, err := repo.Get(ctx, id, notification.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusPending, rec.Status)
}

func Test_Postgres_ConcurrentFirstWritesCreateOnce(t *testing.T) {
	db := openPG(t)
	log := zaptest.NewLogger(t)
	tr := tracker.New(pg.NewDeliveryRepo(db), nil, pg.NewTransactor(db, log), notification.SystemClock{}, log)
	ctx := context.Background()

	id := RandUser("n")
	const writers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied []delivery.Applied
	)
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, a, err := tr.Record(ctx, id, notification.ChannelPush, delivery.StatusPending, nil)
			assert.NoError(t, err)
			mu.Lock()
			applied = append(applied, a)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	created := 0
	for _, a := range applied {
		if a == delivery.AppliedCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)

	var events int
	require.NoError(t, db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM delivery_events WHERE notification_id = $1`, id).Scan(&events))
	assert.Equal(t, 1, events)
}
