package notification

import (
	"errors"
	"fmt"
	"net/mail"
	"time"
)

var (
	ErrInvalid        = errors.New("invalid notification")
	ErrUnknownChannel = errors.New("unknown channel")
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

var Channels = []Channel{ChannelEmail, ChannelPush, ChannelSMS, ChannelInApp}

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelPush, ChannelSMS, ChannelInApp:
		return true
	}
	return false
}

func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
	return c, nil
}

type Type string

const (
	TypeReminder        Type = "reminder"
	TypeAlert           Type = "alert"
	TypeAchievement     Type = "achievement"
	TypeSystem          Type = "system"
	TypeMealReminder    Type = "meal_reminder"
	TypeWorkoutReminder Type = "workout_reminder"
	TypeGoalProgress    Type = "goal_progress"
	TypeSocial          Type = "social"
)

func (t Type) Valid() bool {
	switch t {
	case TypeReminder, TypeAlert, TypeAchievement, TypeSystem,
		TypeMealReminder, TypeWorkoutReminder, TypeGoalProgress, TypeSocial:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type TemplateRef struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data,omitempty"`
}

// Base holds the fields every channel variant carries.
type Base struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Type         Type           `json:"type"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Data         map[string]any `json:"data,omitempty"`
	Priority     Priority       `json:"priority"`
	CreatedAt    time.Time      `json:"created_at"`
	ScheduledFor *time.Time     `json:"scheduled_for,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	Template     *TemplateRef   `json:"template,omitempty"`
}

func (b *Base) Common() *Base { return b }

// Expired reports whether the notification must no longer be delivered at now.
func (b *Base) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}

// Validate checks the fields shared by all variants.
func (b *Base) Validate() error {
	if b.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalid)
	}
	if !b.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalid, b.Type)
	}
	if b.Priority != "" && !b.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalid, b.Priority)
	}
	return nil
}

// Notification is implemented by exactly the four channel variants below.
type Notification interface {
	Common() *Base
	Channel() Channel
	Validate() error
	sealed()
}

type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"url"`
}

type Email struct {
	Base
	To          string       `json:"to"`
	Subject     string       `json:"subject,omitempty"`
	HTML        string       `json:"html,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

func (*Email) Channel() Channel { return ChannelEmail }
func (*Email) sealed()          {}

func (e *Email) Validate() error {
	if err := e.Base.Validate(); err != nil {
		return err
	}
	if e.To == "" {
		return fmt.Errorf("%w: email recipient is required", ErrInvalid)
	}
	return nil
}

type Push struct {
	Base
	DeviceTokens []string      `json:"device_tokens"`
	Icon         string        `json:"icon,omitempty"`
	Image        string        `json:"image,omitempty"`
	Sound        string        `json:"sound,omitempty"`
	Badge        *int          `json:"badge,omitempty"`
	TTL          time.Duration `json:"ttl,omitempty"`
}

func (*Push) Channel() Channel { return ChannelPush }
func (*Push) sealed()          {}

func (p *Push) Validate() error {
	if err := p.Base.Validate(); err != nil {
		return err
	}
	if len(p.DeviceTokens) == 0 {
		return fmt.Errorf("%w: push needs at least one device token", ErrInvalid)
	}
	for _, t := range p.DeviceTokens {
		if t == "" {
			return fmt.Errorf("%w: empty device token", ErrInvalid)
		}
	}
	return nil
}

type SMS struct {
	Base
	PhoneNumber string `json:"phone_number"`
}

func (*SMS) Channel() Channel { return ChannelSMS }
func (*SMS) sealed()          {}

func (s *SMS) Validate() error {
	if err := s.Base.Validate(); err != nil {
		return err
	}
	if s.PhoneNumber == "" {
		return fmt.Errorf("%w: phone number is required", ErrInvalid)
	}
	if !ValidPhone(s.PhoneNumber) {
		return fmt.Errorf("%w: malformed phone number %q", ErrInvalid, s.PhoneNumber)
	}
	return nil
}

// ValidPhone accepts "+" followed by 8 to 15 digits.
func ValidPhone(s string) bool {
	if len(s) < 9 || len(s) > 16 || s[0] != '+' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type InApp struct {
	Base
	Read   bool       `json:"read"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}

func (*InApp) Channel() Channel { return ChannelInApp }
func (*InApp) sealed()          {}

func (i *InApp) Validate() error { return i.Base.Validate() }

// CheckSupplied validates what the caller supplied. Empty contact fields pass because they
// are resolved from preferences at send time, where Validate runs again.
func CheckSupplied(n Notification) error {
	if n == nil {
		return fmt.Errorf("%w: nil notification", ErrInvalid)
	}
	if err := n.Common().Validate(); err != nil {
		return err
	}
	switch v := n.(type) {
	case *Email:
		if v.To != "" {
			if _, err := mail.ParseAddress(v.To); err != nil {
				return fmt.Errorf("%w: malformed email recipient %q", ErrInvalid, v.To)
			}
		}
	case *Push:
		for _, t := range v.DeviceTokens {
			if t == "" {
				return fmt.Errorf("%w: empty device token", ErrInvalid)
			}
		}
	case *SMS:
		if v.PhoneNumber != "" && !ValidPhone(v.PhoneNumber) {
			return fmt.Errorf("%w: malformed phone number %q", ErrInvalid, v.PhoneNumber)
		}
	}
	return nil
}

// New returns an empty variant for the channel.
func New(ch Channel) (Notification, error) {
	switch ch {
	case ChannelEmail:
		return &Email{}, nil
	case ChannelPush:
		return &Push{}, nil
	case ChannelSMS:
		return &SMS{}, nil
	case ChannelInApp:
		return &InApp{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
}
