package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/NordCoder/Herald/internal/domain/notification"
)

var ErrNotFound = errors.New("scheduled entry not found")

// Entry is a notification parked until DueAt. Payload holds the encoded notification.
type Entry struct {
	ID             string               `json:"id"`
	NotificationID string               `json:"notification_id"`
	UserID         string               `json:"user_id"`
	Channel        notification.Channel `json:"channel"`
	DueAt          time.Time            `json:"due_at"`
	Payload        []byte               `json:"-"`
	CreatedAt      time.Time            `json:"created_at"`
}

// Repo is a durable set ordered by DueAt. Remove and ClaimDue both delete atomically,
// so an entry is handed out at most once.
type Repo interface {
	Insert(ctx context.Context, e *Entry) error
	Remove(ctx context.Context, id string) (bool, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Entry, error)
	ListByUser(ctx context.Context, userID string) ([]Entry, error)
}
