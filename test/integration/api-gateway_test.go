//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sendResp struct {
	Accepted       bool   `json:"accepted"`
	NotificationID string `json:"notification_id"`
	Results        []struct {
		Channel    string `json:"channel"`
		Outcome    string `json:"outcome"`
		ScheduleID string `json:"schedule_id"`
	} `json:"results"`
}

func Test_APIGateway_InAppSendIsTrackedInPostgres(t *testing.T) {
	c := LoadCfg()
	WaitHealthz(t, c.AGBaseURL+"/healthz", 60*time.Second)
	db := DBOpen(t, c.DBDSN)
	defer db.Close()

	user := RandUser("it")
	body := HTTPDoJSON(t, http.MethodPost, c.AGBaseURL+"/v1/notifications", MustJSON(t, map[string]any{
		"user_id":  user,
		"channel":  "in_app",
		"type":     "system",
		"title":    "hello",
		"message":  "integration",
		"priority": "medium",
	}), http.StatusAccepted)

	var resp sendResp
	require.NoError(t, json.Unmarshal(body, &resp))
	require.True(t, resp.Accepted)
	require.Len(t, resp.Results, 1)
	require.Equal(t, "sent", resp.Results[0].Outcome)

	var status string
	WaitRow(t, db, 10*time.Second,
		`SELECT status FROM delivery_records WHERE notification_id = $1 AND channel = 'in_app'`,
		[]any{resp.NotificationID}, &status)
	require.Equal(t, "sent", status)

	var feedCount int
	WaitRow(t, db, 10*time.Second,
		`SELECT count(*) FROM inapp_feed WHERE user_id = $1`, []any{user}, &feedCount)
	require.Equal(t, 1, feedCount)

	HTTPDoJSON(t, http.MethodPost, c.AGBaseURL+"/v1/notifications/"+resp.NotificationID+"/deliveries/in_app",
		MustJSON(t, map[string]string{"status": "delivered"}), http.StatusOK)
	WaitRow(t, db, 10*time.Second,
		`SELECT status FROM delivery_records WHERE notification_id = $1 AND channel = 'in_app'`,
		[]any{resp.NotificationID}, &status)
	require.Equal(t, "delivered", status)
}

func Test_APIGateway_PreferencesPersist(t *testing.T) {
	c := LoadCfg()
	WaitHealthz(t, c.AGBaseURL+"/healthz", 60*time.Second)
	db := DBOpen(t, c.DBDSN)
	defer db.Close()

	user := RandUser("it")
	HTTPDoJSON(t, http.MethodPut, c.AGBaseURL+"/v1/users/"+user+"/preferences", MustJSON(t, map[string]any{
		"channels": map[string]bool{"sms": false},
	}), http.StatusOK)

	var raw []byte
	WaitRow(t, db, 5*time.Second,
		`SELECT body FROM notification_preferences WHERE user_id = $1`, []any{user}, &raw)
	require.Contains(t, string(raw), user)

	body := HTTPDoJSON(t, http.MethodPost, c.AGBaseURL+"/v1/notifications", MustJSON(t, map[string]any{
		"user_id": user,
		"channel": "sms",
		"type":    "alert",
		"title":   "t",
		"message": "m",
		"sms":     map[string]string{"phone_number": "+15550000000"},
	}), http.StatusAccepted)
	var resp sendResp
	require.NoError(t, json.Unmarshal(body, &resp))
	require.False(t, resp.Accepted)
	require.Equal(t, "suppressed", resp.Results[0].Outcome)
}

func Test_APIGateway_ScheduleLandsInPostgres(t *testing.T) {
	c := LoadCfg()
	WaitHealthz(t, c.AGBaseURL+"/healthz", 60*time.Second)
	db := DBOpen(t, c.DBDSN)
	defer db.Close()

	user := RandUser("it")
	due := time.Now().Add(time.Hour).UTC()
	body := HTTPDoJSON(t, http.MethodPost, c.AGBaseURL+"/v1/notifications", MustJSON(t, map[string]any{
		"user_id":       user,
		"channel":       "in_app",
		"type":          "reminder",
		"title":         "later",
		"message":       "m",
		"scheduled_for": due,
	}), http.StatusAccepted)
	var resp sendResp
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Equal(t, "scheduled", resp.Results[0].Outcome)
	require.NotEmpty(t, resp.Results[0].ScheduleID)

	var n int
	WaitRow(t, db, 5*time.Second,
		`SELECT count(*) FROM scheduled_notifications WHERE id = $1`, []any{resp.Results[0].ScheduleID}, &n)
	require.Equal(t, 1, n)

	HTTPDoJSON(t, http.MethodDelete, c.AGBaseURL+"/v1/schedules/"+resp.Results[0].ScheduleID, nil, http.StatusOK)
	require.NoError(t, db.QueryRow(
		`SELECT count(*) FROM scheduled_notifications WHERE id = $1`, resp.Results[0].ScheduleID).Scan(&n))
	require.Zero(t, n)
}
