package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/outbox"
)

type OutboxRepo struct{ db *DB }

func NewOutboxRepo(db *DB) *OutboxRepo { return &OutboxRepo{db: db} }

var _ outbox.Repository = (*OutboxRepo)(nil)

func (r *OutboxRepo) Enqueue(ctx context.Context, key string, kind outbox.Kind, data []byte) error {
	tc := traceCarrier(ctx)
	now := ts(time.Now())
	_, err := r.db.q(ctx).ExecContext(ctx, `
INSERT INTO outbox (idempotency_key, kind, data, status, traceparent, tracestate, baggage, created_at, updated_at)
VALUES (?, ?, ?, 'CREATED', ?, ?, ?, ?, ?)
ON CONFLICT (idempotency_key) DO NOTHING`,
		key, int(kind), data, tc.Get("traceparent"), tc.Get("tracestate"), tc.Get("baggage"), now, now)
	if err != nil {
		return fmt.Errorf("outbox enqueue: %w", err)
	}
	return nil
}

func (r *OutboxRepo) PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]outbox.Message, error) {
	if batch <= 0 {
		return nil, errors.New("batch must be > 0")
	}
	now := time.Now()
	rows, err := r.db.q(ctx).QueryContext(ctx, `
UPDATE outbox SET status = 'IN_PROGRESS', updated_at = ?
WHERE idempotency_key IN (
    SELECT idempotency_key FROM outbox
    WHERE status = 'CREATED' OR (status = 'IN_PROGRESS' AND updated_at < ?)
    ORDER BY created_at
    LIMIT ?
)
RETURNING idempotency_key, kind, data, status, created_at, updated_at, traceparent, tracestate, baggage`,
		ts(now), ts(now.Add(-inProgressTTL)), batch)
	if err != nil {
		return nil, fmt.Errorf("outbox pick: %w", err)
	}
	defer rows.Close()

	var out []outbox.Message
	for rows.Next() {
		var m outbox.Message
		var kind int
		var status string
		var created, updated int64
		if err := rows.Scan(&m.IdempotencyKey, &kind, &m.Data, &status, &created, &updated,
			&m.Traceparent, &m.Tracestate, &m.Baggage); err != nil {
			return nil, fmt.Errorf("outbox scan: %w", err)
		}
		m.Kind = outbox.Kind(kind)
		m.Status = outbox.Status(status)
		m.CreatedAt = fromTS(created)
		m.UpdatedAt = fromTS(updated)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *OutboxRepo) MarkSuccess(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, 0, len(keys)+1)
	args = append(args, ts(time.Now()))
	for _, k := range keys {
		args = append(args, k)
	}
	_, err := r.db.q(ctx).ExecContext(ctx,
		`UPDATE outbox SET status = 'SUCCESS', updated_at = ? WHERE idempotency_key IN (`+placeholders(len(keys))+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("outbox mark success: %w", err)
	}
	return nil
}

func (r *OutboxRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.q(ctx).ExecContext(ctx,
		`DELETE FROM outbox WHERE status = 'SUCCESS' AND updated_at < ?`, ts(before))
	if err != nil {
		return 0, fmt.Errorf("outbox prune: %w", err)
	}
	return res.RowsAffected()
}
