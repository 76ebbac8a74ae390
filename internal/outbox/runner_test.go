package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/NordCoder/Herald/internal/domain/delivery"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/domain/outbox"
	"github.com/NordCoder/Herald/internal/obs/retry"
	"github.com/NordCoder/Herald/internal/repository/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEvents struct {
	got  []delivery.StatusChanged
	fail error
}

func (f *fakeEvents) PublishStatusChanged(_ context.Context, ev delivery.StatusChanged) error {
	if f.fail != nil {
		return f.fail
	}
	f.got = append(f.got, ev)
	return nil
}

func newRepo(t *testing.T) *sqlite.OutboxRepo {
	t.Helper()
	db, err := sqlite.Open(context.Background(), sqlite.Config{Path: sqlite.Memory})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlite.NewOutboxRepo(db)
}

func enqueue(t *testing.T, repo outbox.Repository, ev delivery.StatusChanged) {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(context.Background(), ev.IdempotencyKey(), outbox.KindDeliveryStatus, b))
}

func TestRunnerRelaysDeliveryStatus(t *testing.T) {
	repo := newRepo(t)
	pub := &fakeEvents{}
	ev := delivery.StatusChanged{
		NotificationID: "n1", Channel: notification.ChannelEmail,
		Status: delivery.StatusSent, Applied: delivery.AppliedCreated, At: time.Now().UTC(),
	}
	enqueue(t, repo, ev)

	r := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(pub, retry.Policy{Attempts: 1}), Config{BatchSize: 10})
	assert.Equal(t, 1, r.Tick(context.Background()))
	require.Len(t, pub.got, 1)
	assert.Equal(t, "n1", pub.got[0].NotificationID)
	assert.Equal(t, delivery.StatusSent, pub.got[0].Status)

	assert.Equal(t, 0, r.Tick(context.Background()), "relayed messages are not picked again")
}

func TestRunnerKeepsFailedMessages(t *testing.T) {
	repo := newRepo(t)
	pub := &fakeEvents{fail: errors.New("broker down")}
	enqueue(t, repo, delivery.StatusChanged{NotificationID: "n1", Channel: notification.ChannelSMS, Status: delivery.StatusFailed})

	r := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(pub, retry.Policy{Attempts: 1}), Config{BatchSize: 10, InProgressTTL: time.Nanosecond})
	assert.Equal(t, 0, r.Tick(context.Background()))

	pub.fail = nil
	time.Sleep(time.Millisecond)
	assert.Equal(t, 1, r.Tick(context.Background()), "message is retried after the in-progress ttl")
}

func TestGlobalHandlerUnknownKind(t *testing.T) {
	_, err := MakeGlobalOutboxHandler(&fakeEvents{}, retry.Policy{})(outbox.Kind(42))
	assert.Error(t, err)
}
