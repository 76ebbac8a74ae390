package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/delivery"
	"github.com/NordCoder/Herald/internal/domain/notification"
)

type DeliveryRepo struct{ db *DB }

func NewDeliveryRepo(db *DB) *DeliveryRepo { return &DeliveryRepo{db: db} }

var _ delivery.Repo = (*DeliveryRepo)(nil)

const deliveryCols = `notification_id, channel, status, pending_at, sent_at, delivered_at, read_at, failed_at,
    failure_reason, retry_count, metadata, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *DeliveryRepo) Get(ctx context.Context, notificationID string, ch notification.Channel) (*delivery.Record, error) {
	row := r.db.q(ctx).QueryRowContext(ctx,
		`SELECT `+deliveryCols+` FROM delivery_records WHERE notification_id = ? AND channel = ?`,
		notificationID, string(ch))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, delivery.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery record: %w", err)
	}
	return rec, nil
}

func (r *DeliveryRepo) ListByNotification(ctx context.Context, notificationID string) ([]delivery.Record, error) {
	rows, err := r.db.q(ctx).QueryContext(ctx,
		`SELECT `+deliveryCols+` FROM delivery_records WHERE notification_id = ? ORDER BY channel`, notificationID)
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
	meta := rec.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode delivery metadata: %w", err)
	}
	_, err = r.db.q(ctx).ExecContext(ctx, `
INSERT INTO delivery_records (`+deliveryCols+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (notification_id, channel) DO UPDATE SET
    status = excluded.status,
    pending_at = excluded.pending_at,
    sent_at = excluded.sent_at,
    delivered_at = excluded.delivered_at,
    read_at = excluded.read_at,
    failed_at = excluded.failed_at,
    failure_reason = excluded.failure_reason,
    retry_count = excluded.retry_count,
    metadata = excluded.metadata,
    updated_at = excluded.updated_at`,
		rec.NotificationID, string(rec.Channel), string(rec.Status),
		nullTS(rec.PendingAt), nullTS(rec.SentAt), nullTS(rec.DeliveredAt), nullTS(rec.ReadAt), nullTS(rec.FailedAt),
		rec.FailureReason, rec.RetryCount, string(metaJSON), ts(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save delivery record: %w", err)
	}
	return nil
}

func (r *DeliveryRepo) AppendEvent(ctx context.Context, e delivery.Event) error {
	_, err := r.db.q(ctx).ExecContext(ctx,
		`INSERT INTO delivery_events (notification_id, channel, status, reason, at) VALUES (?, ?, ?, ?, ?)`,
		e.NotificationID, string(e.Channel), string(e.Status), e.Reason, ts(e.At))
	if err != nil {
		return fmt.Errorf("append delivery event: %w", err)
	}
	return nil
}

func (r *DeliveryRepo) CountByStatus(ctx context.Context, from, to time.Time) (map[delivery.Status]int64, error) {
	rows, err := r.db.q(ctx).QueryContext(ctx,
		`SELECT status, count(*) FROM delivery_events WHERE at >= ? AND at < ? GROUP BY status`, ts(from), ts(to))
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
	res, err := r.db.q(ctx).ExecContext(ctx, `DELETE FROM delivery_events WHERE at < ?`, ts(before))
	if err != nil {
		return 0, fmt.Errorf("prune delivery events: %w", err)
	}
	return res.RowsAffected()
}

func scanRecord(row rowScanner) (*delivery.Record, error) {
	var rec delivery.Record
	var ch, status, meta string
	var pending, sent, delivered, read, failed sql.NullInt64
	var updated int64
	if err := row.Scan(&rec.NotificationID, &ch, &status, &pending, &sent, &delivered, &read, &failed,
		&rec.FailureReason, &rec.RetryCount, &meta, &updated); err != nil {
		return nil, err
	}
	rec.Channel = notification.Channel(ch)
	rec.Status = delivery.Status(status)
	rec.PendingAt = fromNullTS(pending)
	rec.SentAt = fromNullTS(sent)
	rec.DeliveredAt = fromNullTS(delivered)
	rec.ReadAt = fromNullTS(read)
	rec.FailedAt = fromNullTS(failed)
	rec.UpdatedAt = fromTS(updated)
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode delivery metadata: %w", err)
		}
	}
	return &rec, nil
}
