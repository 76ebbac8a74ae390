package channels

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ErrSendFailed = errors.New("channel send failed")

var (
	mSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_sends_total", Help: "Adapter sends by channel and result.",
	}, []string{"channel", "result"})
	mSendDur = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "channel_send_duration_seconds", Help: "Adapter send latency including rate-limit waits.",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})
)

// Set holds one adapter per channel.
type Set struct {
	Email notification.Adapter
	Push  notification.Adapter
	SMS   notification.Adapter
	InApp notification.Adapter
}

// For picks the adapter for the variant of n.
func (s Set) For(n notification.Notification) (notification.Adapter, error) {
	var a notification.Adapter
	switch n.(type) {
	case *notification.Email:
		a = s.Email
	case *notification.Push:
		a = s.Push
	case *notification.SMS:
		a = s.SMS
	case *notification.InApp:
		a = s.InApp
	default:
		return nil, fmt.Errorf("%w: %T", notification.ErrUnknownChannel, n)
	}
	if a == nil {
		return nil, fmt.Errorf("%w: no adapter configured for %s", ErrSendFailed, n.Channel())
	}
	return a, nil
}

// Send routes n and turns adapter panics into errors.
func (s Set) Send(ctx context.Context, n notification.Notification) (err error) {
	a, err := s.For(n)
	if err != nil {
		return err
	}
	ch := string(n.Channel())
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s adapter panic: %v", ErrSendFailed, ch, r)
		}
		mSendDur.WithLabelValues(ch).Observe(time.Since(start).Seconds())
		if err != nil {
			mSends.WithLabelValues(ch, "error").Inc()
			return
		}
		mSends.WithLabelValues(ch, "ok").Inc()
	}()
	if err := a.Send(ctx, n); err != nil {
		if errors.Is(err, ErrSendFailed) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrSendFailed, ch, err)
	}
	return nil
}
