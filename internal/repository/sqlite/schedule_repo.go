package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/domain/schedule"
)

type ScheduleRepo struct{ db *DB }

func NewScheduleRepo(db *DB) *ScheduleRepo { return &ScheduleRepo{db: db} }

var _ schedule.Repo = (*ScheduleRepo)(nil)

const schedCols = `id, notification_id, user_id, channel, due_at, payload, created_at`

func (r *ScheduleRepo) Insert(ctx context.Context, e *schedule.Entry) error {
	_, err := r.db.q(ctx).ExecContext(ctx,
		`INSERT INTO scheduled_notifications (`+schedCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.NotificationID, e.UserID, string(e.Channel), ts(e.DueAt), e.Payload, ts(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert scheduled entry: %w", err)
	}
	return nil
}

func (r *ScheduleRepo) Remove(ctx context.Context, id string) (bool, error) {
	res, err := r.db.q(ctx).ExecContext(ctx, `DELETE FROM scheduled_notifications WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove scheduled entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove scheduled entry: %w", err)
	}
	return n == 1, nil
}

func (r *ScheduleRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]schedule.Entry, error) {
	rows, err := r.db.q(ctx).QueryContext(ctx, `
DELETE FROM scheduled_notifications
WHERE id IN (
    SELECT id FROM scheduled_notifications WHERE due_at <= ? ORDER BY due_at LIMIT ?
)
RETURNING `+schedCols, ts(now), limit)
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
	rows, err := r.db.q(ctx).QueryContext(ctx,
		`SELECT `+schedCols+` FROM scheduled_notifications WHERE user_id = ? ORDER BY due_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list scheduled: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]schedule.Entry, error) {
	defer rows.Close()
	var out []schedule.Entry
	for rows.Next() {
		var e schedule.Entry
		var ch string
		var due, created int64
		if err := rows.Scan(&e.ID, &e.NotificationID, &e.UserID, &ch, &due, &e.Payload, &created); err != nil {
			return nil, fmt.Errorf("scan scheduled entry: %w", err)
		}
		e.Channel = notification.Channel(ch)
		e.DueAt = fromTS(due)
		e.CreatedAt = fromTS(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
