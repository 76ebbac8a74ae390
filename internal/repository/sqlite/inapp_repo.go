package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/inapp"
)

type InAppLogRepo struct{ db *DB }

func NewInAppLogRepo(db *DB) *InAppLogRepo { return &InAppLogRepo{db: db} }

var _ inapp.Log = (*InAppLogRepo)(nil)

func (r *InAppLogRepo) Append(ctx context.Context, e *inapp.Entry, maxLen int) (int64, error) {
	var pos int64
	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.q(ctx)
		if err := q.QueryRowContext(ctx,
			`UPDATE inapp_log_seq SET last = last + 1 WHERE id = 1 RETURNING last`).Scan(&pos); err != nil {
			return fmt.Errorf("bus next position: %w", err)
		}
		e.Position = pos
		body, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode bus entry: %w", err)
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO inapp_log (position, notification_id, user_id, body, published_at) VALUES (?, ?, ?, ?, ?)`,
			pos, e.NotificationID, e.UserID, string(body), ts(e.PublishedAt)); err != nil {
			return fmt.Errorf("bus insert: %w", err)
		}
		if maxLen > 0 {
			if _, err := q.ExecContext(ctx, `DELETE FROM inapp_log WHERE position <= ?`, pos-int64(maxLen)); err != nil {
				return fmt.Errorf("bus trim: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return pos, nil
}

func (r *InAppLogRepo) Range(ctx context.Context, after int64, limit int) ([]inapp.Entry, error) {
	rows, err := r.db.q(ctx).QueryContext(ctx,
		`SELECT position, body, published_at FROM inapp_log WHERE position > ? ORDER BY position LIMIT ?`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("bus range: %w", err)
	}
	defer rows.Close()

	var out []inapp.Entry
	for rows.Next() {
		var pos, published int64
		var body string
		if err := rows.Scan(&pos, &body, &published); err != nil {
			return nil, fmt.Errorf("bus scan: %w", err)
		}
		var e inapp.Entry
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, fmt.Errorf("decode bus entry %d: %w", pos, err)
		}
		e.Position = pos
		e.PublishedAt = fromTS(published)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *InAppLogRepo) Bounds(ctx context.Context) (int64, int64, error) {
	var earliest, latest int64
	err := r.db.q(ctx).QueryRowContext(ctx, `
SELECT COALESCE((SELECT min(position) FROM inapp_log), 0),
       COALESCE((SELECT last FROM inapp_log_seq WHERE id = 1), 0)`).Scan(&earliest, &latest)
	if err != nil {
		return 0, 0, fmt.Errorf("bus bounds: %w", err)
	}
	return earliest, latest, nil
}

func (r *InAppLogRepo) Offset(ctx context.Context, group string) (int64, bool, error) {
	var pos int64
	err := r.db.q(ctx).QueryRowContext(ctx, `SELECT position FROM inapp_consumer_groups WHERE name = ?`, group).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("bus offset: %w", err)
	}
	return pos, true, nil
}

func (r *InAppLogRepo) Commit(ctx context.Context, group string, pos int64) error {
	_, err := r.db.q(ctx).ExecContext(ctx, `
INSERT INTO inapp_consumer_groups (name, position, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (name) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at`,
		group, pos, ts(time.Now()))
	if err != nil {
		return fmt.Errorf("bus commit: %w", err)
	}
	return nil
}
