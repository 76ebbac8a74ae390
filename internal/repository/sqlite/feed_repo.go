package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/inapp"
	"github.com/NordCoder/Herald/internal/domain/notification"
)

type FeedRepo struct{ db *DB }

func NewFeedRepo(db *DB) *FeedRepo { return &FeedRepo{db: db} }

var _ inapp.FeedRepo = (*FeedRepo)(nil)

func (r *FeedRepo) Add(ctx context.Context, it *inapp.FeedItem) error {
	data := it.Data
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode feed data: %w", err)
	}
	_, err = r.db.q(ctx).ExecContext(ctx, `
INSERT INTO inapp_feed (id, user_id, type, title, message, data, priority, is_read, read_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)
ON CONFLICT (user_id, id) DO NOTHING`,
		it.ID, it.UserID, string(it.Type), it.Title, it.Message, string(dataJSON), string(it.Priority), ts(it.CreatedAt))
	if err != nil {
		return fmt.Errorf("add feed item: %w", err)
	}
	return nil
}

func (r *FeedRepo) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]inapp.FeedItem, error) {
	rows, err := r.db.q(ctx).QueryContext(ctx, `
SELECT id, user_id, type, title, message, data, priority, is_read, read_at, created_at
FROM inapp_feed
WHERE user_id = ? AND (? = 0 OR is_read = 0)
ORDER BY created_at DESC
LIMIT ?`, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list feed: %w", err)
	}
	defer rows.Close()

	var out []inapp.FeedItem
	for rows.Next() {
		var it inapp.FeedItem
		var typ, prio, data string
		var readAt sql.NullInt64
		var created int64
		if err := rows.Scan(&it.ID, &it.UserID, &typ, &it.Title, &it.Message, &data, &prio,
			&it.Read, &readAt, &created); err != nil {
			return nil, fmt.Errorf("scan feed item: %w", err)
		}
		if data != "" && data != "{}" {
			if err := json.Unmarshal([]byte(data), &it.Data); err != nil {
				return nil, fmt.Errorf("decode feed data: %w", err)
			}
		}
		it.Type = notification.Type(typ)
		it.Priority = notification.Priority(prio)
		it.ReadAt = fromNullTS(readAt)
		it.CreatedAt = fromTS(created)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *FeedRepo) MarkRead(ctx context.Context, userID, id string, at time.Time) error {
	res, err := r.db.q(ctx).ExecContext(ctx,
		`UPDATE inapp_feed SET is_read = 1, read_at = COALESCE(read_at, ?) WHERE user_id = ? AND id = ?`,
		ts(at), userID, id)
	if err != nil {
		return fmt.Errorf("mark feed item read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark feed item read: %w", err)
	}
	if n == 0 {
		return inapp.ErrFeedNotFound
	}
	return nil
}

func (r *FeedRepo) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.db.q(ctx).ExecContext(ctx,
		`UPDATE inapp_feed SET is_read = 1, read_at = ? WHERE user_id = ? AND is_read = 0`, ts(at), userID)
	if err != nil {
		return 0, fmt.Errorf("mark feed read: %w", err)
	}
	return res.RowsAffected()
}
