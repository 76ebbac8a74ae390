package preference

import "context"

// Repo is the durable preference store. Get returns ErrNotFound for unknown users.
type Repo interface {
	Get(ctx context.Context, userID string) (*Preferences, error)
	Set(ctx context.Context, p *Preferences) error
}
