package delivery

import (
	"errors"
	"time"

	"github.com/NordCoder/Herald/internal/domain/notification"
)

var (
	ErrNotFound        = errors.New("delivery record not found")
	ErrUnknownStatus   = errors.New("unknown delivery status")
	ErrStaleTransition = errors.New("stale delivery transition")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

var Statuses = []Status{StatusPending, StatusSent, StatusDelivered, StatusRead, StatusFailed}

func (s Status) Valid() bool { return s.rank() > 0 }

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusSent:
		return 2
	case StatusDelivered:
		return 3
	case StatusRead:
		return 4
	case StatusFailed:
		return 5
	}
	return 0
}

// Applied tells what a status write did to the record.
type Applied string

const (
	AppliedCreated  Applied = "created"
	AppliedAdvanced Applied = "advanced"
	AppliedRetried  Applied = "retried"
	AppliedIgnored  Applied = "ignored"
)

func (a Applied) Changed() bool { return a != AppliedIgnored }

// Meta travels with a status write.
type Meta struct {
	Reason string
	Fields map[string]string
}

type Record struct {
	NotificationID string               `json:"notification_id"`
	Channel        notification.Channel `json:"channel"`
	Status         Status               `json:"status"`
	PendingAt      *time.Time           `json:"pending_at,omitempty"`
	SentAt         *time.Time           `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time           `json:"delivered_at,omitempty"`
	ReadAt         *time.Time           `json:"read_at,omitempty"`
	FailedAt       *time.Time           `json:"failed_at,omitempty"`
	FailureReason  string               `json:"failure_reason,omitempty"`
	RetryCount     int                  `json:"retry_count"`
	Metadata       map[string]string    `json:"metadata,omitempty"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// Event is one entry of the per-status time index.
type Event struct {
	NotificationID string
	Channel        notification.Channel
	Status         Status
	Reason         string
	At             time.Time
}

// Transition decides how a record in cur reacts to next. An empty cur means no record yet.
//
// pending -> sent -> delivered -> read only moves forward (skips allowed). failed is
// reachable from every non-terminal status. read is terminal. failed is left only by a
// new pending write, which counts as a retry. Everything else is ErrStaleTransition.
func Transition(cur, next Status) (Applied, error) {
	if !next.Valid() {
		return AppliedIgnored, ErrUnknownStatus
	}
	switch {
	case cur == "":
		return AppliedCreated, nil
	case cur == next:
		return AppliedIgnored, ErrStaleTransition
	case cur == StatusFailed:
		if next == StatusPending {
			return AppliedRetried, nil
		}
		return AppliedIgnored, ErrStaleTransition
	case cur == StatusRead:
		return AppliedIgnored, ErrStaleTransition
	case next == StatusFailed:
		return AppliedAdvanced, nil
	case next.rank() > cur.rank():
		return AppliedAdvanced, nil
	}
	return AppliedIgnored, ErrStaleTransition
}

// Apply moves rec to next at the given time and returns what happened. rec is left
// untouched when the write is ignored.
func (r *Record) Apply(next Status, at time.Time, meta *Meta) (Applied, error) {
	applied, err := Transition(r.Status, next)
	if err != nil {
		return applied, err
	}
	if applied == AppliedRetried {
		r.RetryCount++
		r.FailureReason = ""
	}
	r.Status = next
	ts := at
	switch next {
	case StatusPending:
		r.PendingAt = &ts
	case StatusSent:
		r.SentAt = &ts
	case StatusDelivered:
		r.DeliveredAt = &ts
	case StatusRead:
		r.ReadAt = &ts
	case StatusFailed:
		r.FailedAt = &ts
		if meta != nil {
			r.FailureReason = meta.Reason
		}
	}
	if meta != nil && len(meta.Fields) > 0 {
		if r.Metadata == nil {
			r.Metadata = make(map[string]string, len(meta.Fields))
		}
		for k, v := range meta.Fields {
			r.Metadata[k] = v
		}
	}
	r.UpdatedAt = at
	return applied, nil
}
