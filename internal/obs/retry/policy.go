package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrPermanent marks a failure that another attempt cannot fix.
var ErrPermanent = errors.New("permanent failure")

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrPermanent, err)
}

func transient(err error) bool {
	return err != nil && !errors.Is(err, ErrPermanent) && !errors.Is(err, context.Canceled)
}

func DefaultKafkaPolicy(log *zap.Logger) Policy {
	return Policy{
		Name:      "outbox",
		Attempts:  6,
		Backoff:   ExpoJitter{Base: 200 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.2},
		Retryable: transient,
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("outbox retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("outbox retries exhausted", zap.Error(err))
			}
		},
	}
}

// ProviderPolicy is used by channel adapters calling an external provider inside a request.
// It stays short so a slow provider cannot hold the dispatcher for long.
func ProviderPolicy(name string, attempts int, log *zap.Logger) Policy {
	if attempts <= 0 {
		attempts = 3
	}
	return Policy{
		Name:      name,
		Attempts:  attempts,
		Backoff:   ExpoJitter{Base: 100 * time.Millisecond, Max: 2 * time.Second, Jitter: 0.2},
		MaxHint:   5 * time.Second,
		Retryable: transient,
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Debug("provider retry", zap.String("provider", name), zap.Int("attempt", i+1), zap.Error(err))
			}
		},
	}
}
