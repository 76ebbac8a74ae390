package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NordCoder/Herald/internal/domain/preference"
)

type PreferenceRepo struct{ db *DB }

func NewPreferenceRepo(db *DB) *PreferenceRepo { return &PreferenceRepo{db: db} }

var _ preference.Repo = (*PreferenceRepo)(nil)

const (
	qPrefGet = `SELECT body FROM notification_preferences WHERE user_id = $1;`

	qPrefSet = `
INSERT INTO notification_preferences (user_id, body, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE
SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at;`
)

func (r *PreferenceRepo) Get(ctx context.Context, userID string) (*preference.Preferences, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var body []byte
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qPrefGet, userID).Scan(&body); err != nil {
		if isNoRows(err) {
			return nil, preference.ErrNotFound
		}
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	var p preference.Preferences
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode preferences %s: %w", userID, err)
	}
	return &p, nil
}

func (r *PreferenceRepo) Set(ctx context.Context, p *preference.Preferences) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qPrefSet, p.UserID, body, p.UpdatedAt); err != nil {
		return fmt.Errorf("set preferences: %w", err)
	}
	return nil
}
