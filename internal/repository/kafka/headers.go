package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// injectHeaders carries the trace context of ctx across the broker.
func injectHeaders(ctx context.Context) []kafka.Header {
	c := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, c)
	hs := make([]kafka.Header, 0, len(c))
	for k, v := range c {
		hs = append(hs, kafka.Header{Key: k, Value: []byte(v)})
	}
	return hs
}

func extractHeaders(ctx context.Context, hs []kafka.Header) context.Context {
	c := make(propagation.MapCarrier, len(hs))
	for _, h := range hs {
		c[h.Key] = string(h.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, c)
}
