package kafka

import (
	"context"

	"github.com/NordCoder/Herald/internal/domain/delivery"
)

type DeliveryEvents interface {
	PublishStatusChanged(ctx context.Context, ev delivery.StatusChanged) error
}
