package channels

import (
	"context"
	"fmt"

	"github.com/NordCoder/Herald/internal/domain/notification"
	"golang.org/x/time/rate"
)

type limited struct {
	next notification.Adapter
	lim  *rate.Limiter
}

// Limited throttles next to cfg.RatePerSec. A zero rate leaves next untouched.
func Limited(next notification.Adapter, cfg LimitConfig) notification.Adapter {
	if next == nil || cfg.RatePerSec <= 0 {
		return next
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &limited{next: next, lim: rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)}
}

func (l *limited) Send(ctx context.Context, n notification.Notification) error {
	if err := l.lim.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit wait: %w", ErrSendFailed, err)
	}
	return l.next.Send(ctx, n)
}
