package inapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/notification"
)

var (
	ErrResync       = errors.New("position evicted, resync required")
	ErrFeedNotFound = errors.New("feed item not found")
)

// GapError is returned when a reader asks for positions already trimmed from the log.
type GapError struct {
	Requested int64
	Earliest  int64
}

func (e *GapError) Error() string {
	return fmt.Sprintf("inapp: position %d evicted, earliest retained is %d", e.Requested, e.Earliest)
}

func (e *GapError) Unwrap() error { return ErrResync }

type Entry struct {
	Position       int64                 `json:"position"`
	NotificationID string                `json:"notification_id"`
	UserID         string                `json:"user_id"`
	Type           notification.Type     `json:"type"`
	Title          string                `json:"title"`
	Message        string                `json:"message"`
	Data           map[string]any        `json:"data,omitempty"`
	Priority       notification.Priority `json:"priority"`
	CreatedAt      time.Time             `json:"created_at"`
	PublishedAt    time.Time             `json:"published_at"`
}

func EntryOf(n *notification.InApp) Entry {
	return Entry{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           n.Type,
		Title:          n.Title,
		Message:        n.Message,
		Data:           n.Data,
		Priority:       n.Priority,
		CreatedAt:      n.CreatedAt,
	}
}

// Log is an append-only, capped sequence with per-group read offsets.
// Positions are contiguous, strictly increasing and never reused.
type Log interface {
	// Append assigns the next position and trims the log to the newest maxLen entries.
	Append(ctx context.Context, e *Entry, maxLen int) (int64, error)
	// Range returns up to limit entries with position > after, oldest first.
	Range(ctx context.Context, after int64, limit int) ([]Entry, error)
	// Bounds returns the earliest retained and latest assigned positions, zeros when empty.
	Bounds(ctx context.Context) (earliest, latest int64, err error)
	Offset(ctx context.Context, group string) (pos int64, found bool, err error)
	Commit(ctx context.Context, group string, pos int64) error
}

// FeedItem is the per-user in-app inbox row written by the in-app channel.
type FeedItem struct {
	ID        string                `json:"id"`
	UserID    string                `json:"user_id"`
	Type      notification.Type     `json:"type"`
	Title     string                `json:"title"`
	Message   string                `json:"message"`
	Data      map[string]any        `json:"data,omitempty"`
	Priority  notification.Priority `json:"priority"`
	Read      bool                  `json:"read"`
	ReadAt    *time.Time            `json:"read_at,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

type FeedRepo interface {
	Add(ctx context.Context, item *FeedItem) error
	List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]FeedItem, error)
	MarkRead(ctx context.Context, userID, id string, at time.Time) error
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
}
