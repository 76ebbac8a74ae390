package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/inapp"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// InAppLogRepo stores the in-app bus. A single-row sequence table hands out positions;
// its row lock serialises appends so positions commit in order and stay gap-free.
type InAppLogRepo struct {
	db  *DB
	log *zap.Logger
}

func NewInAppLogRepo(db *DB, log *zap.Logger) *InAppLogRepo {
	return &InAppLogRepo{db: db, log: log.With(zap.String("component", "postgres.inapp_log"))}
}

var _ inapp.Log = (*InAppLogRepo)(nil)

const (
	qBusNextPos = `UPDATE inapp_log_seq SET last = last + 1 WHERE id = 1 RETURNING last;`
	qBusInsert  = `
INSERT INTO inapp_log (position, notification_id, user_id, body, published_at)
VALUES ($1, $2, $3, $4, $5);`
	qBusTrim   = `DELETE FROM inapp_log WHERE position <= $1;`
	qBusRange  = `SELECT position, body, published_at FROM inapp_log WHERE position > $1 ORDER BY position LIMIT $2;`
	qBusBounds = `
SELECT COALESCE((SELECT min(position) FROM inapp_log), 0),
       COALESCE((SELECT last FROM inapp_log_seq WHERE id = 1), 0);`
	qBusOffset = `SELECT position FROM inapp_consumer_groups WHERE name = $1;`
	qBusCommit = `
INSERT INTO inapp_consumer_groups (name, position, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET position = EXCLUDED.position, updated_at = now();`
)

func (r *InAppLogRepo) Append(ctx context.Context, e *inapp.Entry, maxLen int) (pos int64, err error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("bus append begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				r.log.Warn("bus append rollback", zap.Error(rbErr))
			}
		}
	}()

	if err = tx.QueryRow(ctx, qBusNextPos).Scan(&pos); err != nil {
		return 0, fmt.Errorf("bus next position: %w", err)
	}
	e.Position = pos
	body, err := json.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("encode bus entry: %w", err)
	}
	if _, err = tx.Exec(ctx, qBusInsert, pos, e.NotificationID, e.UserID, body, e.PublishedAt); err != nil {
		return 0, fmt.Errorf("bus insert: %w", err)
	}
	if maxLen > 0 {
		if _, err = tx.Exec(ctx, qBusTrim, pos-int64(maxLen)); err != nil {
			return 0, fmt.Errorf("bus trim: %w", err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("bus append commit: %w", err)
	}
	return pos, nil
}

func (r *InAppLogRepo) Range(ctx context.Context, after int64, limit int) ([]inapp.Entry, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qBusRange, after, limit)
	if err != nil {
		return nil, fmt.Errorf("bus range: %w", err)
	}
	defer rows.Close()

	var out []inapp.Entry
	for rows.Next() {
		var pos int64
		var body []byte
		var published time.Time
		if err := rows.Scan(&pos, &body, &published); err != nil {
			return nil, fmt.Errorf("bus scan: %w", err)
		}
		var e inapp.Entry
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, fmt.Errorf("decode bus entry %d: %w", pos, err)
		}
		e.Position = pos
		e.PublishedAt = published
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *InAppLogRepo) Bounds(ctx context.Context) (int64, int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var earliest, latest int64
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qBusBounds).Scan(&earliest, &latest); err != nil {
		return 0, 0, fmt.Errorf("bus bounds: %w", err)
	}
	return earliest, latest, nil
}

func (r *InAppLogRepo) Offset(ctx context.Context, group string) (int64, bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var pos int64
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qBusOffset, group).Scan(&pos); err != nil {
		if isNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("bus offset: %w", err)
	}
	return pos, true, nil
}

func (r *InAppLogRepo) Commit(ctx context.Context, group string, pos int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qBusCommit, group, pos); err != nil {
		return fmt.Errorf("bus commit: %w", err)
	}
	return nil
}
