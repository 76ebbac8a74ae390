package kafka

import (
	"context"

	"github.com/NordCoder/Herald/internal/domain/delivery"
	"github.com/NordCoder/Herald/internal/domain/kafka"
)

type DeliveryEventsKafka struct {
	p *Producer
}

func NewDeliveryEventsKafka(p *Producer) *DeliveryEventsKafka { return &DeliveryEventsKafka{p: p} }

var _ kafka.DeliveryEvents = (*DeliveryEventsKafka)(nil)

// PublishStatusChanged keys by notification id so all channels of one notification share a partition.
func (e *DeliveryEventsKafka) PublishStatusChanged(ctx context.Context, ev delivery.StatusChanged) error {
	return e.p.PublishJSON(ctx, []byte(ev.NotificationID), ev)
}
