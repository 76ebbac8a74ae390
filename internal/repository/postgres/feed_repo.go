package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/inapp"
	"github.com/NordCoder/Herald/internal/domain/notification"
)

type FeedRepo struct{ db *DB }

func NewFeedRepo(db *DB) *FeedRepo { return &FeedRepo{db: db} }

var _ inapp.FeedRepo = (*FeedRepo)(nil)

const (
	qFeedAdd = `
INSERT INTO inapp_feed (id, user_id, type, title, message, data, priority, is_read, read_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, false, NULL, $8)
ON CONFLICT (user_id, id) DO NOTHING;`

	qFeedList = `
SELECT id, user_id, type, title, message, data, priority, is_read, read_at, created_at
FROM inapp_feed
WHERE user_id = $1 AND ($2 = false OR is_read = false)
ORDER BY created_at DESC
LIMIT $3;`

	qFeedRead    = `UPDATE inapp_feed SET is_read = true, read_at = COALESCE(read_at, $3) WHERE user_id = $1 AND id = $2;`
	qFeedReadAll = `UPDATE inapp_feed SET is_read = true, read_at = $2 WHERE user_id = $1 AND is_read = false;`
)

func (r *FeedRepo) Add(ctx context.Context, it *inapp.FeedItem) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	data := it.Data
	if data == nil {
		data = map[string]any{}
	}
	_, err := r.db.execQueryer(ctx).Exec(ctx, qFeedAdd,
		it.ID, it.UserID, string(it.Type), it.Title, it.Message, data, string(it.Priority), it.CreatedAt)
	if err != nil {
		return fmt.Errorf("add feed item: %w", err)
	}
	return nil
}

func (r *FeedRepo) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]inapp.FeedItem, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qFeedList, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list feed: %w", err)
	}
	defer rows.Close()

	var out []inapp.FeedItem
	for rows.Next() {
		var it inapp.FeedItem
		var typ, prio string
		if err := rows.Scan(&it.ID, &it.UserID, &typ, &it.Title, &it.Message, &it.Data, &prio,
			&it.Read, &it.ReadAt, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feed item: %w", err)
		}
		it.Type = notification.Type(typ)
		it.Priority = notification.Priority(prio)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *FeedRepo) MarkRead(ctx context.Context, userID, id string, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qFeedRead, userID, id, at)
	if err != nil {
		return fmt.Errorf("mark feed item read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return inapp.ErrFeedNotFound
	}
	return nil
}

func (r *FeedRepo) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qFeedReadAll, userID, at)
	if err != nil {
		return 0, fmt.Errorf("mark feed read: %w", err)
	}
	return tag.RowsAffected(), nil
}
