package delivery

import (
	"context"
	"time"

	"github.com/NordCoder/Herald/internal/domain/notification"
)

type Repo interface {
	// Get returns ErrNotFound when the pair has no record. Inside a transaction the row is locked.
	Get(ctx context.Context, notificationID string, ch notification.Channel) (*Record, error)
	ListByNotification(ctx context.Context, notificationID string) ([]Record, error)
	Save(ctx context.Context, r *Record) error

	AppendEvent(ctx context.Context, e Event) error
	CountByStatus(ctx context.Context, from, to time.Time) (map[Status]int64, error)
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}
