package delivery

import (
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/notification"
)

// StatusChanged is relayed through the outbox to the delivery status topic.
type StatusChanged struct {
	NotificationID string               `json:"notification_id"`
	Channel        notification.Channel `json:"channel"`
	Status         Status               `json:"status"`
	Applied        Applied              `json:"applied"`
	Reason         string               `json:"reason,omitempty"`
	RetryCount     int                  `json:"retry_count"`
	At             time.Time            `json:"at"`
}

func (e StatusChanged) IdempotencyKey() string {
	return fmt.Sprintf("delivery:%s:%s:%s:%d", e.NotificationID, e.Channel, e.Status, e.RetryCount)
}
