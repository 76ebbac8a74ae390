package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func isNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

func interval(d time.Duration) string { return fmt.Sprintf("%f seconds", d.Seconds()) }

// traceCarrier captures the caller's trace context so an asynchronous relay can continue it.
func traceCarrier(ctx context.Context) propagation.MapCarrier {
	c := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, c)
	return c
}
