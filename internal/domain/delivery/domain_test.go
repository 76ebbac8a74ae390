package delivery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		cur, next Status
		want      Applied
	}{
		{"", StatusPending, AppliedCreated},
		{"", StatusSent, AppliedCreated},
		{StatusPending, StatusSent, AppliedAdvanced},
		{StatusSent, StatusRead, AppliedAdvanced},
		{StatusDelivered, StatusFailed, AppliedAdvanced},
		{StatusPending, StatusFailed, AppliedAdvanced},
		{StatusSent, StatusSent, AppliedIgnored},
		{StatusDelivered, StatusSent, AppliedIgnored},
		{StatusRead, StatusFailed, AppliedIgnored},
		{StatusRead, StatusPending, AppliedIgnored},
		{StatusFailed, StatusSent, AppliedIgnored},
		{StatusFailed, StatusPending, AppliedRetried},
	}
	for _, tt := range tests {
		t.Run(string(tt.cur)+"->"+string(tt.next), func(t *testing.T) {
			got, err := Transition(tt.cur, tt.next)
			assert.Equal(t, tt.want, got)
			if tt.want == AppliedIgnored {
				assert.ErrorIs(t, err, ErrStaleTransition)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err := Transition(StatusPending, "bounced")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestApplyRetryAndMetadata(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := &Record{NotificationID: "n", Channel: "email"}

	a, err := r.Apply(StatusPending, t0, nil)
	require.NoError(t, err)
	assert.Equal(t, AppliedCreated, a)

	a, err = r.Apply(StatusFailed, t0.Add(time.Second), &Meta{Reason: "smtp down", Fields: map[string]string{"provider": "smtp"}})
	require.NoError(t, err)
	assert.Equal(t, AppliedAdvanced, a)
	assert.Equal(t, "smtp down", r.FailureReason)
	assert.Equal(t, "smtp", r.Metadata["provider"])

	a, err = r.Apply(StatusPending, t0.Add(2*time.Second), nil)
	require.NoError(t, err)
	assert.Equal(t, AppliedRetried, a)
	assert.Equal(t, 1, r.RetryCount)
	assert.Empty(t, r.FailureReason)
	assert.Equal(t, StatusPending, r.Status)

	before := *r
	a, err = r.Apply(StatusPending, t0.Add(3*time.Second), nil)
	assert.ErrorIs(t, err, ErrStaleTransition)
	assert.Equal(t, AppliedIgnored, a)
	assert.Equal(t, before.UpdatedAt, r.UpdatedAt)
}
