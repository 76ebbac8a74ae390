package channels

import (
	"context"
	"fmt"

	"github.com/NordCoder/Herald/internal/domain/inapp"
	"github.com/NordCoder/Herald/internal/domain/notification"
)

// InAppAdapter stores the notification in the user's feed.
type InAppAdapter struct {
	feed inapp.FeedRepo
}

func NewInAppAdapter(feed inapp.FeedRepo) *InAppAdapter { return &InAppAdapter{feed: feed} }

func (a *InAppAdapter) Send(ctx context.Context, n notification.Notification) error {
	in, ok := n.(*notification.InApp)
	if !ok {
		return fmt.Errorf("%w: in-app adapter got %s", notification.ErrUnknownChannel, n.Channel())
	}
	return a.feed.Add(ctx, &inapp.FeedItem{
		ID:        in.ID,
		UserID:    in.UserID,
		Type:      in.Type,
		Title:     in.Title,
		Message:   in.Message,
		Data:      in.Data,
		Priority:  in.Priority,
		Read:      in.Read,
		ReadAt:    in.ReadAt,
		CreatedAt: in.CreatedAt,
	})
}
