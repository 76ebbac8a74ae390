package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NordCoder/Herald/internal/domain/preference"
)

type PreferenceRepo struct{ db *DB }

func NewPreferenceRepo(db *DB) *PreferenceRepo { return &PreferenceRepo{db: db} }

var _ preference.Repo = (*PreferenceRepo)(nil)

func (r *PreferenceRepo) Get(ctx context.Context, userID string) (*preference.Preferences, error) {
	var body string
	err := r.db.q(ctx).QueryRowContext(ctx,
		`SELECT body FROM notification_preferences WHERE user_id = ?`, userID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, preference.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	var p preference.Preferences
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("decode preferences %s: %w", userID, err)
	}
	return &p, nil
}

func (r *PreferenceRepo) Set(ctx context.Context, p *preference.Preferences) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	_, err = r.db.q(ctx).ExecContext(ctx, `
INSERT INTO notification_preferences (user_id, body, updated_at) VALUES (?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		p.UserID, string(body), ts(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("set preferences: %w", err)
	}
	return nil
}
