package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/delivery"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/domain/outbox"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var mWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tracker_status_writes_total",
	Help: "Delivery status writes by status and effect.",
}, []string{"channel", "status", "applied"})

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Tracker owns delivery records. A status write, its time-index event and the outbox
// message announcing it commit together.
type Tracker struct {
	repo   delivery.Repo
	outbox outbox.Repository
	tx     Transactor
	clock  notification.Clock
	log    *zap.Logger
}

func New(repo delivery.Repo, ob outbox.Repository, tx Transactor, clock notification.Clock, log *zap.Logger) *Tracker {
	if clock == nil {
		clock = notification.SystemClock{}
	}
	return &Tracker{repo: repo, outbox: ob, tx: tx, clock: clock, log: log.With(zap.String("component", "tracker"))}
}

// Record applies status to the (notificationID, ch) record, creating it on first write.
// Repeating a status or moving backwards is not an error: the current record is returned
// with AppliedIgnored.
func (t *Tracker) Record(ctx context.Context, notificationID string, ch notification.Channel, status delivery.Status, meta *delivery.Meta) (delivery.Record, delivery.Applied, error) {
	if notificationID == "" || !ch.Valid() {
		return delivery.Record{}, delivery.AppliedIgnored, fmt.Errorf("%w: notification id and channel are required", notification.ErrInvalid)
	}
	if !status.Valid() {
		return delivery.Record{}, delivery.AppliedIgnored, fmt.Errorf("%w: %q", delivery.ErrUnknownStatus, status)
	}

	var (
		rec     delivery.Record
		applied delivery.Applied
	)
	err := t.tx.WithTx(ctx, func(ctx context.Context) error {
		cur, err := t.repo.Get(ctx, notificationID, ch)
		switch {
		case errors.Is(err, delivery.ErrNotFound):
			cur = &delivery.Record{NotificationID: notificationID, Channel: ch}
		case err != nil:
			return fmt.Errorf("get record: %w", err)
		}

		now := t.clock.Now()
		applied, err = cur.Apply(status, now, meta)
		rec = *cur
		if errors.Is(err, delivery.ErrStaleTransition) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := t.repo.Save(ctx, cur); err != nil {
			return fmt.Errorf("save record: %w", err)
		}
		ev := delivery.Event{NotificationID: notificationID, Channel: ch, Status: status, At: now}
		if meta != nil {
			ev.Reason = meta.Reason
		}
		if err := t.repo.AppendEvent(ctx, ev); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		return t.announce(ctx, cur, applied, now)
	})
	if err != nil {
		return delivery.Record{}, delivery.AppliedIgnored, err
	}

	mWrites.WithLabelValues(string(ch), string(status), string(applied)).Inc()
	if applied == delivery.AppliedIgnored {
		t.log.Debug("status write ignored",
			zap.String("notification_id", notificationID), zap.String("channel", string(ch)),
			zap.String("current", string(rec.Status)), zap.String("requested", string(status)))
	}
	return rec, applied, nil
}

func (t *Tracker) announce(ctx context.Context, rec *delivery.Record, applied delivery.Applied, at time.Time) error {
	if t.outbox == nil {
		return nil
	}
	ev := delivery.StatusChanged{
		NotificationID: rec.NotificationID,
		Channel:        rec.Channel,
		Status:         rec.Status,
		Applied:        applied,
		Reason:         rec.FailureReason,
		RetryCount:     rec.RetryCount,
		At:             at,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	if err := t.outbox.Enqueue(ctx, ev.IdempotencyKey(), outbox.KindDeliveryStatus, data); err != nil {
		return fmt.Errorf("enqueue status event: %w", err)
	}
	return nil
}

func (t *Tracker) Query(ctx context.Context, notificationID string) (map[notification.Channel]delivery.Record, error) {
	recs, err := t.repo.ListByNotification(ctx, notificationID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	out := make(map[notification.Channel]delivery.Record, len(recs))
	for _, r := range recs {
		out[r.Channel] = r
	}
	return out, nil
}

// Stats counts status events in [from, to).
func (t *Tracker) Stats(ctx context.Context, from, to time.Time) (map[delivery.Status]int64, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: empty stats window", notification.ErrInvalid)
	}
	counts, err := t.repo.CountByStatus(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	for _, s := range delivery.Statuses {
		if _, ok := counts[s]; !ok {
			counts[s] = 0
		}
	}
	return counts, nil
}

// Prune drops time-index events older than before.
func (t *Tracker) Prune(ctx context.Context, before time.Time) (int64, error) {
	n, err := t.repo.PruneEvents(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return n, nil
}
