package dispatcher

import (
	"context"
	"errors"

	"github.com/NordCoder/Herald/internal/domain/notification"
	kafkax "github.com/NordCoder/Herald/internal/repository/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var mIntake = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dispatcher_intake_messages_total", Help: "Intake requests consumed by result.",
}, []string{"result"})

// Controller feeds the intake topic into the dispatcher.
type Controller struct {
	Log *zap.Logger
	Sub *kafkax.Consumer
	UC  *Dispatcher
}

func (c *Controller) Run(ctx context.Context) error {
	return c.Sub.Consume(ctx, kafkax.JSONHandler(c.Handle))
}

// Handle dispatches one request. Malformed requests are poison and skipped; a
// scheduling-store error is returned so the message is redelivered.
func (c *Controller) Handle(ctx context.Context, _ []byte, req *Request) error {
	ns, err := req.Build(c.UC.clock.Now())
	if err != nil {
		mIntake.WithLabelValues("rejected").Inc()
		c.Log.Warn("intake: invalid request", zap.String("user_id", req.UserID), zap.Error(err))
		return errors.Join(kafkax.ErrPoison, err)
	}
	results, err := c.UC.SendMany(ctx, ns)
	if err != nil {
		if errors.Is(err, notification.ErrInvalid) {
			mIntake.WithLabelValues("rejected").Inc()
			return errors.Join(kafkax.ErrPoison, err)
		}
		mIntake.WithLabelValues("error").Inc()
		return err
	}
	mIntake.WithLabelValues("ok").Inc()
	for _, r := range results {
		c.Log.Debug("intake dispatched",
			zap.String("notification_id", r.NotificationID), zap.String("channel", string(r.Channel)),
			zap.String("outcome", string(r.Outcome)), zap.String("reason", r.Reason))
	}
	return nil
}
