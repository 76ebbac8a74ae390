package preference

import (
	"time"

	"github.com/NordCoder/Herald/internal/domain/notification"
)

type Reason string

const (
	ReasonOK                  Reason = "ok"
	ReasonChannelDisabled     Reason = "channel_disabled"
	ReasonTypeDisabled        Reason = "type_disabled"
	ReasonTypeChannelExcluded Reason = "type_channel_excluded"
	ReasonQuietHours          Reason = "quiet_hours"
	ReasonWeekend             Reason = "weekend"
)

type Decision struct {
	Send   bool
	Reason Reason
}

func allow() Decision { return Decision{Send: true, Reason: ReasonOK} }
func suppress(r Reason) Decision { return Decision{Reason: r} }

// ShouldSend decides whether n may go out at now under p. A nil p allows everything.
// Urgent notifications skip the quiet-hours and weekday checks but never the enablement ones.
func ShouldSend(n notification.Notification, p *Preferences, now time.Time) Decision {
	if p == nil {
		return allow()
	}
	ch := n.Channel()
	b := n.Common()

	if !p.ChannelEnabled(ch) {
		return suppress(ReasonChannelDisabled)
	}
	if rule, ok := p.Types[b.Type]; ok {
		if !rule.Enabled {
			return suppress(ReasonTypeDisabled)
		}
		if !rule.Allows(ch) {
			return suppress(ReasonTypeChannelExcluded)
		}
	}
	if b.Priority == notification.PriorityUrgent {
		return allow()
	}

	// an unknown zone already resolved to UTC
	loc, _ := p.Schedule.Location()
	local := now.In(loc)

	if s, e := p.Schedule.QuietStart, p.Schedule.QuietEnd; s != nil && e != nil && InWindow(TimeOfDayOf(local), *s, *e) {
		return suppress(ReasonQuietHours)
	}
	if p.Schedule.WeekdaysOnly {
		if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return suppress(ReasonWeekend)
		}
	}
	return allow()
}

// InWindow tests t against [start, end). start > end wraps midnight; start == end is empty.
func InWindow(t, start, end TimeOfDay) bool {
	switch {
	case start == end:
		return false
	case start < end:
		return start <= t && t < end
	default:
		return t >= start || t < end
	}
}
