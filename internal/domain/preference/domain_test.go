package preference

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeOfDayJSON(t *testing.T) {
	var s Schedule
	require.NoError(t, json.Unmarshal([]byte(`{"quiet_start":"22:00","quiet_end":"08:30"}`), &s))
	assert.Equal(t, NewTimeOfDay(22, 0), *s.QuietStart)
	assert.Equal(t, NewTimeOfDay(8, 30), *s.QuietEnd)

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"quiet_end":"08:30"`)

	assert.Error(t, json.Unmarshal([]byte(`{"quiet_start":"25:00"}`), &s))
}

func TestChannelEnabledMissingKey(t *testing.T) {
	p := &Preferences{UserID: "u", Channels: map[notification.Channel]bool{notification.ChannelSMS: false}}
	assert.True(t, p.ChannelEnabled(notification.ChannelEmail))
	assert.False(t, p.ChannelEnabled(notification.ChannelSMS))
}

func TestAddDeviceDedup(t *testing.T) {
	p := Default("u")
	now := time.Now()
	assert.True(t, p.AddDevice("tok", PlatformIOS, now))
	assert.False(t, p.AddDevice("tok", PlatformAndroid, now))
	require.Len(t, p.Contact.Devices, 1)
	assert.Equal(t, PlatformAndroid, p.Contact.Devices[0].Platform)
	assert.Equal(t, []string{"tok"}, p.DeviceTokens())
}

func TestValidate(t *testing.T) {
	start := NewTimeOfDay(22, 0)

	p := Default("u")
	p.Schedule.QuietStart = &start
	assert.ErrorIs(t, p.Validate(), ErrInvalid)

	p = Default("u")
	p.Schedule.Timezone = "Mars/Olympus"
	assert.ErrorIs(t, p.Validate(), ErrInvalid)

	p = Default("u")
	p.Types = map[notification.Type]TypeRule{notification.TypeSocial: {Channels: []notification.Channel{"fax"}}}
	assert.ErrorIs(t, p.Validate(), ErrInvalid)

	p = Default("u")
	p.Schedule.Timezone = "Europe/Berlin"
	assert.NoError(t, p.Validate())
}

func TestCloneIsDeep(t *testing.T) {
	start, end := NewTimeOfDay(22, 0), NewTimeOfDay(7, 0)
	p := Default("u")
	p.Schedule.QuietStart, p.Schedule.QuietEnd = &start, &end
	p.AddDevice("a", PlatformWeb, time.Now())

	cp := p.Clone()
	cp.Channels[notification.ChannelEmail] = false
	*cp.Schedule.QuietStart = 0
	cp.Contact.Devices[0].Token = "b"

	assert.True(t, p.Channels[notification.ChannelEmail])
	assert.Equal(t, NewTimeOfDay(22, 0), *p.Schedule.QuietStart)
	assert.Equal(t, "a", p.Contact.Devices[0].Token)
}
