package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/domain/schedule"
	"github.com/jackc/pgx/v5"
)

type ScheduleRepo struct{ db *DB }

func NewScheduleRepo(db *DB) *ScheduleRepo { return &ScheduleRepo{db: db} }

var _ schedule.Repo = (*ScheduleRepo)(nil)

const (
	qSchedInsert = `
INSERT INTO scheduled_notifications (id, notification_id, user_id, channel, due_at, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	qSchedRemove = `DELETE FROM scheduled_notifications WHERE id = $1;`

	// Rows locked by a concurrent claim are skipped, so two sweepers never share an entry.
	qSchedClaim = `
DELETE FROM scheduled_notifications
WHERE id IN (
    SELECT id FROM scheduled_notifications
    WHERE due_at <= $1
    ORDER BY due_at
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
RETURNING id, notification_id, user_id, channel, due_at, payload, created_at;`

	qSchedByUser = `
SELECT id, notification_id, user_id, channel, due_at, payload, created_at
FROM scheduled_notifications
WHERE user_id = $1
ORDER BY due_at;`
)

func (r *ScheduleRepo) Insert(ctx context.Context, e *schedule.Entry) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.execQueryer(ctx).Exec(ctx, qSchedInsert,
		e.ID, e.NotificationID, e.UserID, string(e.Channel), e.DueAt, e.Payload, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert scheduled entry: %w", err)
	}
	return nil
}

func (r *ScheduleRepo) Remove(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qSchedRemove, id)
	if err != nil {
		return false, fmt.Errorf("remove scheduled entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ScheduleRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]schedule.Entry, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qSchedClaim, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due: %w", err)
	}
	out, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (r *ScheduleRepo) ListByUser(ctx context.Context, userID string) ([]schedule.Entry, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qSchedByUser, userID)
	if err != nil {
		return nil, fmt.Errorf("list scheduled: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]schedule.Entry, error) {
	defer rows.Close()
	var out []schedule.Entry
	for rows.Next() {
		var e schedule.Entry
		var ch string
		if err := rows.Scan(&e.ID, &e.NotificationID, &e.UserID, &ch, &e.DueAt, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan scheduled entry: %w", err)
		}
		e.Channel = notification.Channel(ch)
		out = append(out, e)
	}
	return out, rows.Err()
}
