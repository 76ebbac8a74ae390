package dispatcher

import (
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/google/uuid"
)

// Request is the wire shape of a send request, shared by the HTTP API and the intake topic.
// One request fans out into one notification per channel, all sharing the same id.
type Request struct {
	ID           string                    `json:"id,omitempty"`
	UserID       string                    `json:"user_id"`
	Channel      string                    `json:"channel,omitempty"`
	Channels     []string                  `json:"channels,omitempty"`
	Type         notification.Type         `json:"type"`
	Title        string                    `json:"title"`
	Message      string                    `json:"message"`
	Data         map[string]any            `json:"data,omitempty"`
	Priority     notification.Priority     `json:"priority,omitempty"`
	ScheduledFor *time.Time                `json:"scheduled_for,omitempty"`
	ExpiresAt    *time.Time                `json:"expires_at,omitempty"`
	Template     *notification.TemplateRef `json:"template,omitempty"`

	Email *EmailFields `json:"email,omitempty"`
	Push  *PushFields  `json:"push,omitempty"`
	SMS   *SMSFields   `json:"sms,omitempty"`
}

type EmailFields struct {
	To          string                    `json:"to"`
	Subject     string                    `json:"subject"`
	HTML        string                    `json:"html"`
	Attachments []notification.Attachment `json:"attachments"`
}

type PushFields struct {
	DeviceTokens []string `json:"device_tokens"`
	Icon         string   `json:"icon"`
	Image        string   `json:"image"`
	Sound        string   `json:"sound"`
	Badge        *int     `json:"badge"`
	TTLSeconds   int      `json:"ttl_seconds"`
}

type SMSFields struct {
	PhoneNumber string `json:"phone_number"`
}

func (r *Request) channels() ([]notification.Channel, error) {
	names := r.Channels
	if r.Channel != "" {
		names = append([]string{r.Channel}, names...)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: channel or channels is required", notification.ErrInvalid)
	}
	seen := make(map[notification.Channel]bool, len(names))
	out := make([]notification.Channel, 0, len(names))
	for _, name := range names {
		ch, err := notification.ParseChannel(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", notification.ErrInvalid, err)
		}
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	return out, nil
}

// Build turns the request into channel variants. Contact fields left empty are resolved
// from preferences at send time.
func (r *Request) Build(now time.Time) ([]notification.Notification, error) {
	chs, err := r.channels()
	if err != nil {
		return nil, err
	}
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	base := notification.Base{
		ID:           id,
		UserID:       r.UserID,
		Type:         r.Type,
		Title:        r.Title,
		Message:      r.Message,
		Data:         r.Data,
		Priority:     r.Priority,
		CreatedAt:    now,
		ScheduledFor: r.ScheduledFor,
		ExpiresAt:    r.ExpiresAt,
		Template:     r.Template,
	}
	if base.Priority == "" {
		base.Priority = notification.PriorityMedium
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}

	out := make([]notification.Notification, 0, len(chs))
	for _, ch := range chs {
		switch ch {
		case notification.ChannelEmail:
			e := &notification.Email{Base: base}
			if r.Email != nil {
				e.To, e.Subject, e.HTML, e.Attachments = r.Email.To, r.Email.Subject, r.Email.HTML, r.Email.Attachments
			}
			out = append(out, e)
		case notification.ChannelPush:
			p := &notification.Push{Base: base}
			if r.Push != nil {
				p.DeviceTokens, p.Icon, p.Image, p.Sound, p.Badge = r.Push.DeviceTokens, r.Push.Icon, r.Push.Image, r.Push.Sound, r.Push.Badge
				p.TTL = time.Duration(r.Push.TTLSeconds) * time.Second
			}
			out = append(out, p)
		case notification.ChannelSMS:
			s := &notification.SMS{Base: base}
			if r.SMS != nil {
				s.PhoneNumber = r.SMS.PhoneNumber
			}
			out = append(out, s)
		case notification.ChannelInApp:
			out = append(out, &notification.InApp{Base: base})
		}
	}
	return out, nil
}
