package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/delivery"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/jackc/pgx/v5"
)

type DeliveryRepo struct{ db *DB }

func NewDeliveryRepo(db *DB) *DeliveryRepo { return &DeliveryRepo{db: db} }

var _ delivery.Repo = (*DeliveryRepo)(nil)

const deliveryCols = `notification_id, channel, status, pending_at, sent_at, delivered_at, read_at, failed_at,
       failure_reason, retry_count, metadata, updated_at`

const (
	// Row locks cover nothing before the first write, so the key itself is locked.
	qDeliveryLock = `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2));`

	qDeliveryGet = `SELECT ` + deliveryCols + `
FROM delivery_records
WHERE notification_id = $1 AND channel = $2
FOR UPDATE;`

	qDeliveryByNotification = `SELECT ` + deliveryCols + `
FROM delivery_records
WHERE notification_id = $1
ORDER BY channel;`

	qDeliverySave = `
INSERT INTO delivery_records (` + deliveryCols + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (notification_id, channel) DO UPDATE SET
    status = EXCLUDED.status,
    pending_at = EXCLUDED.pending_at,
    sent_at = EXCLUDED.sent_at,
    delivered_at = EXCLUDED.delivered_at,
    read_at = EXCLUDED.read_at,
    failed_at = EXCLUDED.failed_at,
    failure_reason = EXCLUDED.failure_reason,
    retry_count = EXCLUDED.retry_count,
    metadata = EXCLUDED.metadata,
    updated_at = EXCLUDED.updated_at;`

	qDeliveryEvent = `
INSERT INTO delivery_events (notification_id, channel, status, reason, at)
VALUES ($1, $2, $3, $4, $5);`

	qDeliveryCount = `
SELECT status, count(*)
FROM delivery_events
WHERE at >= $1 AND at < $2
GROUP BY status;`

	qDeliveryPrune = `DELETE FROM delivery_events WHERE at < $1;`
)

// Get reads the record for update. Inside a transaction it first takes a lock on the
// (notification, channel) key that is held until commit, so concurrent first writes
// queue up instead of both creating the record.
func (r *DeliveryRepo) Get(ctx context.Context, notificationID string, ch notification.Channel) (*delivery.Record, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	q := r.db.execQueryer(ctx)
	if _, err := extractTx(ctx); err == nil {
		if _, err := q.Exec(ctx, qDeliveryLock, notificationID, string(ch)); err != nil {
			return nil, fmt.Errorf("lock delivery record: %w", err)
		}
	}
	rec, err := scanRecord(q.QueryRow(ctx, qDeliveryGet, notificationID, string(ch)))
	if err != nil {
		if isNoRows(err) {
			return nil, delivery.ErrNotFound
		}
		return nil, fmt.Errorf("get delivery record: %w", err)
	}
	return rec, nil
}

func (r *DeliveryRepo) ListByNotification(ctx context.Context, notificationID string) ([]delivery.Record, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qDeliveryByNotification, notificationID)
	if err != nil {
		return nil, fmt.Errorf("list delivery records: %w", err)
	}
	defer rows.Close()

	var out []delivery.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *DeliveryRepo) Save(ctx context.Context, rec *delivery.Record) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	meta := rec.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	_, err := r.db.execQueryer(ctx).Exec(ctx, qDeliverySave,
		rec.NotificationID, string(rec.Channel), string(rec.Status),
		rec.PendingAt, rec.SentAt, rec.DeliveredAt, rec.ReadAt, rec.FailedAt,
		rec.FailureReason, rec.RetryCount, meta, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save delivery record: %w", err)
	}
	return nil
}

func (r *DeliveryRepo) AppendEvent(ctx context.Context, e delivery.Event) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.execQueryer(ctx).Exec(ctx, qDeliveryEvent,
		e.NotificationID, string(e.Channel), string(e.Status), e.Reason, e.At)
	if err != nil {
		return fmt.Errorf("append delivery event: %w", err)
	}
	return nil
}

func (r *DeliveryRepo) CountByStatus(ctx context.Context, from, to time.Time) (map[delivery.Status]int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qDeliveryCount, from, to)
	if err != nil {
		return nil, fmt.Errorf("count delivery events: %w", err)
	}
	defer rows.Close()

	out := make(map[delivery.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan delivery count: %w", err)
		}
		out[delivery.Status(status)] = n
	}
	return out, rows.Err()
}

func (r *DeliveryRepo) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qDeliveryPrune, before)
	if err != nil {
		return 0, fmt.Errorf("prune delivery events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (*delivery.Record, error) {
	var rec delivery.Record
	var ch, status string
	if err := row.Scan(&rec.NotificationID, &ch, &status,
		&rec.PendingAt, &rec.SentAt, &rec.DeliveredAt, &rec.ReadAt, &rec.FailedAt,
		&rec.FailureReason, &rec.RetryCount, &rec.Metadata, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Channel = notification.Channel(ch)
	rec.Status = delivery.Status(status)
	return &rec, nil
}
