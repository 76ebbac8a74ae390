package preference

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/notification"
)

var (
	ErrNotFound = errors.New("preferences not found")
	ErrInvalid  = errors.New("invalid preferences")
)

// TimeOfDay is a wall-clock time in minutes since midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay { return TimeOfDay(hour*60 + minute) }

func TimeOfDayOf(t time.Time) TimeOfDay { return NewTimeOfDay(t.Hour(), t.Minute()) }

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: time of day %q: want HH:MM", ErrInvalid, s)
	}
	return TimeOfDayOf(t), nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60) }

func (t TimeOfDay) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

type TypeRule struct {
	Enabled  bool                   `json:"enabled"`
	Channels []notification.Channel `json:"channels,omitempty"`
}

// Allows reports whether the rule lets ch through. An empty allow-list means any channel.
func (r TypeRule) Allows(ch notification.Channel) bool {
	if len(r.Channels) == 0 {
		return true
	}
	for _, c := range r.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

type Schedule struct {
	QuietStart   *TimeOfDay `json:"quiet_start,omitempty"`
	QuietEnd     *TimeOfDay `json:"quiet_end,omitempty"`
	WeekdaysOnly bool       `json:"weekdays_only"`
	Timezone     string     `json:"timezone,omitempty"`
}

// Location resolves the schedule timezone, falling back to UTC.
func (s Schedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC, err
	}
	return loc, nil
}

type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformIOS, PlatformAndroid, PlatformWeb:
		return true
	}
	return false
}

type Device struct {
	Token        string    `json:"token"`
	Platform     Platform  `json:"platform"`
	RegisteredAt time.Time `json:"registered_at"`
}

type Contact struct {
	Email   string   `json:"email,omitempty"`
	Phone   string   `json:"phone,omitempty"`
	Devices []Device `json:"devices,omitempty"`
}

type Preferences struct {
	UserID    string                         `json:"user_id"`
	Channels  map[notification.Channel]bool  `json:"channels,omitempty"`
	Types     map[notification.Type]TypeRule `json:"types,omitempty"`
	Schedule  Schedule                       `json:"schedule"`
	Contact   Contact                        `json:"contact"`
	UpdatedAt time.Time                      `json:"updated_at"`
}

// Default is what an absent record behaves like: every channel enabled, no rules.
func Default(userID string) *Preferences {
	p := &Preferences{UserID: userID, Channels: make(map[notification.Channel]bool, len(notification.Channels))}
	for _, ch := range notification.Channels {
		p.Channels[ch] = true
	}
	return p
}

// ChannelEnabled treats a missing key as enabled; only an explicit false disables.
func (p *Preferences) ChannelEnabled(ch notification.Channel) bool {
	enabled, ok := p.Channels[ch]
	return !ok || enabled
}

func (p *Preferences) DeviceTokens() []string {
	out := make([]string, 0, len(p.Contact.Devices))
	for _, d := range p.Contact.Devices {
		out = append(out, d.Token)
	}
	return out
}

// AddDevice registers token once. Re-registering an existing token updates its platform
// and reports false.
func (p *Preferences) AddDevice(token string, platform Platform, at time.Time) bool {
	for i := range p.Contact.Devices {
		if p.Contact.Devices[i].Token == token {
			p.Contact.Devices[i].Platform = platform
			return false
		}
	}
	p.Contact.Devices = append(p.Contact.Devices, Device{Token: token, Platform: platform, RegisteredAt: at})
	return true
}

func (p *Preferences) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalid)
	}
	for ch := range p.Channels {
		if !ch.Valid() {
			return fmt.Errorf("%w: unknown channel %q", ErrInvalid, ch)
		}
	}
	for t, rule := range p.Types {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown type %q", ErrInvalid, t)
		}
		for _, ch := range rule.Channels {
			if !ch.Valid() {
				return fmt.Errorf("%w: type %s: unknown channel %q", ErrInvalid, t, ch)
			}
		}
	}
	if (p.Schedule.QuietStart == nil) != (p.Schedule.QuietEnd == nil) {
		return fmt.Errorf("%w: quiet_start and quiet_end must be set together", ErrInvalid)
	}
	for _, q := range []*TimeOfDay{p.Schedule.QuietStart, p.Schedule.QuietEnd} {
		if q != nil && (*q < 0 || *q >= 24*60) {
			return fmt.Errorf("%w: quiet hours out of range", ErrInvalid)
		}
	}
	if _, err := p.Schedule.Location(); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalid, p.Schedule.Timezone, err)
	}
	if p.Contact.Phone != "" && !notification.ValidPhone(p.Contact.Phone) {
		return fmt.Errorf("%w: malformed phone %q", ErrInvalid, p.Contact.Phone)
	}
	for _, d := range p.Contact.Devices {
		if d.Token == "" || !d.Platform.Valid() {
			return fmt.Errorf("%w: device %q/%q", ErrInvalid, d.Token, d.Platform)
		}
	}
	return nil
}

// Clone returns a deep copy so cached values cannot be mutated by callers.
func (p *Preferences) Clone() *Preferences {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Channels != nil {
		cp.Channels = make(map[notification.Channel]bool, len(p.Channels))
		for k, v := range p.Channels {
			cp.Channels[k] = v
		}
	}
	if p.Types != nil {
		cp.Types = make(map[notification.Type]TypeRule, len(p.Types))
		for k, v := range p.Types {
			v.Channels = append([]notification.Channel(nil), v.Channels...)
			cp.Types[k] = v
		}
	}
	if p.Schedule.QuietStart != nil {
		s := *p.Schedule.QuietStart
		cp.Schedule.QuietStart = &s
	}
	if p.Schedule.QuietEnd != nil {
		e := *p.Schedule.QuietEnd
		cp.Schedule.QuietEnd = &e
	}
	cp.Contact.Devices = append([]Device(nil), p.Contact.Devices...)
	return &cp
}
