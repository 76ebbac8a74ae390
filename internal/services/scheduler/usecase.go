package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/domain/schedule"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Deliverer is the immediate send path. It reports whether the notification went out.
type Deliverer interface {
	Deliver(ctx context.Context, n notification.Notification) bool
}

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Item is one notification of a batch handed to ScheduleAll.
type Item struct {
	N     notification.Notification
	DueAt time.Time
}

// Usecase owns the pending set. The sweep is the only thing that fires entries.
type Usecase struct {
	Repo      schedule.Repo
	Deliverer Deliverer
	// Tx makes ScheduleAll all-or-nothing. Without it entries are inserted one by one.
	Tx        Transactor
	Clock     notification.Clock
	Log       *zap.Logger
}

func NewUC(repo schedule.Repo, clock notification.Clock, log *zap.Logger) *Usecase {
	if clock == nil {
		clock = notification.SystemClock{}
	}
	return &Usecase{Repo: repo, Clock: clock, Log: log.With(zap.String("component", "scheduler"))}
}

// Schedule persists n to fire at dueAt. The entry is durable once this returns nil.
func (u *Usecase) Schedule(ctx context.Context, n notification.Notification, dueAt time.Time) (string, error) {
	b := n.Common()
	if b.ID == "" {
		return "", fmt.Errorf("%w: notification id must be assigned before scheduling", notification.ErrInvalid)
	}
	payload, err := notification.Marshal(n)
	if err != nil {
		return "", fmt.Errorf("encode notification: %w", err)
	}
	e := &schedule.Entry{
		ID:             uuid.NewString(),
		NotificationID: b.ID,
		UserID:         b.UserID,
		Channel:        n.Channel(),
		DueAt:          dueAt.UTC(),
		Payload:        payload,
		CreatedAt:      u.Clock.Now(),
	}
	if err := u.Repo.Insert(ctx, e); err != nil {
		return "", fmt.Errorf("insert schedule: %w", err)
	}
	u.Log.Debug("scheduled",
		zap.String("schedule_id", e.ID), zap.String("notification_id", b.ID),
		zap.String("channel", string(e.Channel)), zap.Time("due_at", e.DueAt))
	return e.ID, nil
}

// ScheduleAll persists every item or none of them, so a request retried after a store
// error never leaves part of its fan-out behind. IDs are returned in item order.
func (u *Usecase) ScheduleAll(ctx context.Context, items []Item) ([]string, error) {
	ids := make([]string, 0, len(items))
	run := func(ctx context.Context) error {
		ids = ids[:0]
		for _, it := range items {
			id, err := u.Schedule(ctx, it.N, it.DueAt)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	}
	if u.Tx == nil || len(items) < 2 {
		if err := run(ctx); err != nil {
			return nil, err
		}
		return ids, nil
	}
	if err := u.Tx.WithTx(ctx, run); err != nil {
		return nil, err
	}
	return ids, nil
}

// Cancel removes a pending entry. It reports false when the sweep already claimed it or
// it never existed.
func (u *Usecase) Cancel(ctx context.Context, id string) (bool, error) {
	ok, err := u.Repo.Remove(ctx, id)
	if err != nil {
		return false, fmt.Errorf("remove schedule: %w", err)
	}
	return ok, nil
}

func (u *Usecase) Pending(ctx context.Context, userID string) ([]schedule.Entry, error) {
	list, err := u.Repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return list, nil
}

// Tick claims due entries and hands each to the Deliverer.
func (u *Usecase) Tick(ctx context.Context, limit int) (int, int, int, error) {
	if limit <= 0 {
		limit = 100
	}
	if u.Deliverer == nil {
		return 0, 0, 0, errors.New("scheduler has no deliverer")
	}

	tr := otel.Tracer("scheduler.uc")
	ctxTick, span := tr.Start(ctx, "scheduler.tick",
		trace.WithAttributes(attribute.Int("batch.limit", limit)),
	)
	defer span.End()

	due, err := u.Repo.ClaimDue(ctxTick, u.Clock.Now(), limit)
	if err != nil {
		span.RecordError(err)
		return 0, 0, 1, fmt.Errorf("claim due: %w", err)
	}
	span.SetAttributes(attribute.Int("batch.claimed", len(due)))
	if len(due) == 0 {
		return 0, 0, 0, nil
	}

	sent, failed := 0, 0
	for _, e := range due {
		ctxItem, sp := tr.Start(ctxTick, "scheduler.deliver",
			trace.WithAttributes(
				attribute.String("schedule.id", e.ID),
				attribute.String("notification.id", e.NotificationID),
				attribute.String("notification.channel", string(e.Channel)),
			),
		)
		n, err := notification.Unmarshal(e.Payload)
		if err != nil {
			failed++
			sp.RecordError(err)
			u.Log.Error("drop undecodable schedule entry", zap.String("schedule_id", e.ID), zap.Error(err))
			sp.End()
			continue
		}
		if u.Deliverer.Deliver(ctxItem, n) {
			sent++
			sp.SetAttributes(attribute.String("deliver.status", "sent"))
		} else {
			failed++
			sp.SetAttributes(attribute.String("deliver.status", "not_sent"))
		}
		sp.End()
	}

	span.SetAttributes(
		attribute.Int("batch.sent", sent),
		attribute.Int("batch.not_sent", failed),
	)
	return len(due), sent, failed, nil
}
