package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/NordCoder/Herald/internal/domain/delivery"
	"github.com/NordCoder/Herald/internal/domain/inapp"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/domain/preference"
	"github.com/NordCoder/Herald/internal/obs"
	"github.com/NordCoder/Herald/internal/services/scheduler"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeSent       Outcome = "sent"
	OutcomeScheduled  Outcome = "scheduled"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeExpired    Outcome = "expired"
	OutcomeRejected   Outcome = "rejected"
	OutcomeFailed     Outcome = "failed"
)

type Result struct {
	NotificationID string               `json:"notification_id"`
	Channel        notification.Channel `json:"channel"`
	Outcome        Outcome              `json:"outcome"`
	ScheduleID     string               `json:"schedule_id,omitempty"`
	Reason         string               `json:"reason,omitempty"`
}

func (r Result) Sent() bool { return r.Outcome == OutcomeSent }

var mOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dispatcher_outcomes_total", Help: "Dispatch results by channel and outcome.",
}, []string{"channel", "outcome"})

type PreferenceReader interface {
	// Lookup returns nil preferences for users without a record.
	Lookup(ctx context.Context, userID string) (*preference.Preferences, error)
}

type Scheduler interface {
	ScheduleAll(ctx context.Context, items []scheduler.Item) ([]string, error)
}

type Tracker interface {
	Record(ctx context.Context, notificationID string, ch notification.Channel, status delivery.Status, meta *delivery.Meta) (delivery.Record, delivery.Applied, error)
}

type Publisher interface {
	Publish(ctx context.Context, e inapp.Entry) (int64, error)
}

// Router hands a notification to its channel adapter.
type Router interface {
	Send(ctx context.Context, n notification.Notification) error
}

type Dispatcher struct {
	prefs     PreferenceReader
	scheduler Scheduler
	tracker   Tracker
	bus       Publisher
	router    Router
	clock     notification.Clock
	log       *zap.Logger

	badZones sync.Map
}

func New(prefs PreferenceReader, sched Scheduler, tracker Tracker, bus Publisher, router Router, clock notification.Clock, log *zap.Logger) *Dispatcher {
	if clock == nil {
		clock = notification.SystemClock{}
	}
	return &Dispatcher{
		prefs:     prefs,
		scheduler: sched,
		tracker:   tracker,
		bus:       bus,
		router:    router,
		clock:     clock,
		log:       log.With(zap.String("component", "dispatcher")),
	}
}

// Send delivers n now or parks it until ScheduledFor. The error is non-nil for
// configuration errors (wrapping notification.ErrInvalid) and scheduling-store failures;
// adapter failures are reported through the Result.
func (d *Dispatcher) Send(ctx context.Context, n notification.Notification) (Result, error) {
	results, err := d.SendMany(ctx, []notification.Notification{n})
	if len(results) == 1 {
		return results[0], err
	}
	res := Result{Outcome: OutcomeRejected}
	if n != nil {
		res.NotificationID, res.Channel = n.Common().ID, n.Channel()
		if err != nil {
			res.Reason = err.Error()
		}
	}
	return res, err
}

// SendMany sends every notification of a fan-out request. Supplied fields are checked for
// all channels before anything is scheduled or sent, and the future ones are scheduled
// together, so an error leaves nothing behind for a retry to duplicate. A channel rejected
// at send time only fails the call when every channel was rejected.
func (d *Dispatcher) SendMany(ctx context.Context, ns []notification.Notification) ([]Result, error) {
	results := make([]Result, len(ns))
	for i, n := range ns {
		if n == nil {
			return nil, fmt.Errorf("%w: nil notification", notification.ErrInvalid)
		}
		b := d.prepare(n)
		results[i] = Result{NotificationID: b.ID, Channel: n.Channel()}
		if err := notification.CheckSupplied(n); err != nil {
			results[i].Outcome, results[i].Reason = OutcomeRejected, err.Error()
			d.count(results[i])
			return nil, fmt.Errorf("%s: %w", n.Channel(), err)
		}
	}

	now := d.clock.Now()
	var (
		later []scheduler.Item
		slots []int
	)
	for i, n := range ns {
		if due := n.Common().ScheduledFor; due != nil && due.After(now) {
			later = append(later, scheduler.Item{N: n, DueAt: *due})
			slots = append(slots, i)
		}
	}
	if len(later) > 0 {
		ids, err := d.scheduler.ScheduleAll(ctx, later)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", ns[0].Common().ID, err)
		}
		for k, i := range slots {
			results[i].Outcome, results[i].ScheduleID = OutcomeScheduled, ids[k]
			d.count(results[i])
		}
	}

	var rejected []error
	for i, n := range ns {
		if results[i].Outcome == OutcomeScheduled {
			continue
		}
		res, err := d.sendNow(ctx, n)
		results[i] = res
		if err != nil {
			rejected = append(rejected, fmt.Errorf("%s: %w", n.Channel(), err))
		}
	}
	if len(rejected) == len(ns) {
		return results, errors.Join(rejected...)
	}
	return results, nil
}

// Deliver is the sweep's entry point.
func (d *Dispatcher) Deliver(ctx context.Context, n notification.Notification) bool {
	return d.SendNow(ctx, n).Sent()
}

// SendNow runs the immediate path: preferences, filter, expiry, contact resolution,
// validation, adapter, tracking and, for in-app, the bus.
func (d *Dispatcher) SendNow(ctx context.Context, n notification.Notification) Result {
	res, _ := d.sendNow(ctx, n)
	return res
}

// sendNow also returns the validation error behind an OutcomeRejected result.
func (d *Dispatcher) sendNow(ctx context.Context, n notification.Notification) (res Result, err error) {
	b := d.prepare(n)
	ch := n.Channel()
	res = Result{NotificationID: b.ID, Channel: ch}

	tr := otel.Tracer("dispatcher")
	ctx, span := tr.Start(ctx, "dispatcher.send", trace.WithAttributes(
		attribute.String("notification.id", b.ID),
		attribute.String("notification.channel", string(ch)),
		attribute.String("notification.type", string(b.Type)),
	))
	defer func() {
		span.SetAttributes(attribute.String("dispatch.outcome", string(res.Outcome)))
		span.End()
		d.count(res)
	}()
	log := obs.WithTrace(ctx, d.log).With(zap.String("notification_id", b.ID), zap.String("channel", string(ch)))

	prefs, lookupErr := d.prefs.Lookup(ctx, b.UserID)
	if err := lookupErr; err != nil {
		log.Warn("preference lookup failed, sending without preferences", zap.String("user_id", b.UserID), zap.Error(err))
		prefs = nil
	}
	if prefs != nil {
		if _, err := prefs.Schedule.Location(); err != nil {
			if _, seen := d.badZones.LoadOrStore(prefs.Schedule.Timezone, struct{}{}); !seen {
				log.Warn("unknown timezone, using UTC", zap.String("timezone", prefs.Schedule.Timezone))
			}
		}
	}

	now := d.clock.Now()
	if dec := preference.ShouldSend(n, prefs, now); !dec.Send {
		res.Outcome, res.Reason = OutcomeSuppressed, string(dec.Reason)
		log.Debug("suppressed", zap.String("reason", res.Reason))
		return res, nil
	}

	if b.Expired(now) {
		res.Outcome, res.Reason = OutcomeExpired, "expired"
		d.record(ctx, log, b.ID, ch, delivery.StatusFailed, res.Reason)
		return res, nil
	}

	resolveContact(n, prefs)
	if err := n.Validate(); err != nil {
		res.Outcome, res.Reason = OutcomeRejected, "invalid: "+err.Error()
		d.record(ctx, log, b.ID, ch, delivery.StatusFailed, res.Reason)
		return res, err
	}

	d.record(ctx, log, b.ID, ch, delivery.StatusPending, "")
	if err := d.router.Send(ctx, n); err != nil {
		span.RecordError(err)
		res.Outcome, res.Reason = OutcomeFailed, err.Error()
		log.Warn("adapter failed", zap.Error(err))
		d.record(ctx, log, b.ID, ch, delivery.StatusFailed, res.Reason)
		return res, nil
	}
	d.record(ctx, log, b.ID, ch, delivery.StatusSent, "")
	res.Outcome = OutcomeSent

	if in, ok := n.(*notification.InApp); ok && d.bus != nil {
		if _, err := d.bus.Publish(ctx, inapp.EntryOf(in)); err != nil {
			log.Warn("in-app bus publish failed", zap.Error(err))
		}
	}
	return res, nil
}

// prepare fills the defaults every path relies on.
func (d *Dispatcher) prepare(n notification.Notification) *notification.Base {
	b := n.Common()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = d.clock.Now()
	}
	if b.Priority == "" {
		b.Priority = notification.PriorityMedium
	}
	return b
}

func (d *Dispatcher) record(ctx context.Context, log *zap.Logger, id string, ch notification.Channel, status delivery.Status, reason string) {
	var meta *delivery.Meta
	if reason != "" {
		meta = &delivery.Meta{Reason: reason}
	}
	if _, _, err := d.tracker.Record(ctx, id, ch, status, meta); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("delivery record failed", zap.String("status", string(status)), zap.Error(err))
	}
}

func (d *Dispatcher) count(res Result) {
	mOutcomes.WithLabelValues(string(res.Channel), string(res.Outcome)).Inc()
}

// resolveContact fills missing addresses from the user's contact details.
func resolveContact(n notification.Notification, p *preference.Preferences) {
	if p == nil {
		return
	}
	switch v := n.(type) {
	case *notification.Email:
		if v.To == "" {
			v.To = p.Contact.Email
		}
	case *notification.SMS:
		if v.PhoneNumber == "" {
			v.PhoneNumber = p.Contact.Phone
		}
	case *notification.Push:
		if len(v.DeviceTokens) == 0 {
			v.DeviceTokens = p.DeviceTokens()
		}
	}
}
