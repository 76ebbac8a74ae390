package notification

import (
	"context"
	"time"
)

// Adapter hands a notification of one channel to its provider.
type Adapter interface {
	Send(ctx context.Context, n Notification) error
}

type AdapterFunc func(ctx context.Context, n Notification) error

func (f AdapterFunc) Send(ctx context.Context, n Notification) error { return f(ctx, n) }

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
