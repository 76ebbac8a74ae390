//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type cfg struct {
	APIBase   string
	WaitFired time.Duration
}

func loadCfg() cfg {
	c := cfg{
		APIBase:   getenv("E2E_API_BASE", "http://localhost:8080"),
		WaitFired: 40 * time.Second,
	}
	if v := os.Getenv("E2E_WAIT_FIRED"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.WaitFired = d
		}
	}
	return c
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

type result struct {
	NotificationID string `json:"notification_id"`
	Channel        string `json:"channel"`
	Outcome        string `json:"outcome"`
	ScheduleID     string `json:"schedule_id"`
}

type sendResp struct {
	Accepted       bool     `json:"accepted"`
	NotificationID string   `json:"notification_id"`
	Results        []result `json:"results"`
}

type record struct {
	Channel string `json:"channel"`
	Status  string `json:"status"`
}

type inboxPage struct {
	Entries []struct {
		Position       int64  `json:"position"`
		NotificationID string `json:"notification_id"`
		UserID         string `json:"user_id"`
	} `json:"entries"`
	Next int64 `json:"next"`
}

type feedItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Read  bool   `json:"read"`
}

// --- helpers

func doJSON(t *testing.T, method, url string, in any, want int, out any) {
	t.Helper()
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	all, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		t.Fatalf("%s %s => %d: %s", method, url, resp.StatusCode, string(all))
	}
	if out != nil {
		if err := json.Unmarshal(all, out); err != nil {
			t.Fatalf("unmarshal %s: %v; body=%s", url, err, string(all))
		}
	}
}

func waitHealthy(t *testing.T, base string) {
	t.Helper()
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(time.Second)
	}
	t.Fatalf("api-gateway at %s never became healthy", base)
}

// drainInbox advances a fresh group to the tail of the log.
func drainInbox(t *testing.T, base, group string) {
	t.Helper()
	prev := int64(-1)
	for {
		var p inboxPage
		doJSON(t, http.MethodGet, base+"/v1/inbox/"+group+"?limit=1000", nil, http.StatusOK, &p)
		if p.Next == prev {
			return
		}
		prev = p.Next
	}
}

func uniq(prefix string) string { return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano()) }

// --- flows

func Test_SendInApp_ReachesInboxAndFeed(t *testing.T) {
	c := loadCfg()
	waitHealthy(t, c.APIBase)

	user := uniq("e2e")
	group := uniq("grp")

	drainInbox(t, c.APIBase, group)

	var sr sendResp
	doJSON(t, http.MethodPost, c.APIBase+"/v1/notifications", map[string]any{
		"user_id":  user,
		"channels": []string{"in_app"},
		"type":     "goal_progress",
		"title":    "Halfway there",
		"message":  "50% of weekly goal",
		"priority": "medium",
	}, http.StatusAccepted, &sr)
	require.True(t, sr.Accepted)
	require.Equal(t, "sent", sr.Results[0].Outcome)

	var page inboxPage
	doJSON(t, http.MethodGet, c.APIBase+"/v1/inbox/"+group+"?user_id="+user, nil, http.StatusOK, &page)
	require.Len(t, page.Entries, 1)
	require.Equal(t, sr.NotificationID, page.Entries[0].NotificationID)

	var feed []feedItem
	doJSON(t, http.MethodGet, c.APIBase+"/v1/users/"+user+"/feed?unread=true", nil, http.StatusOK, &feed)
	require.Len(t, feed, 1)
	require.Equal(t, "Halfway there", feed[0].Title)

	doJSON(t, http.MethodPut, c.APIBase+"/v1/users/"+user+"/feed/"+feed[0].ID+"/read", nil, http.StatusNoContent, nil)
	doJSON(t, http.MethodGet, c.APIBase+"/v1/users/"+user+"/feed?unread=true", nil, http.StatusOK, &feed)
	require.Empty(t, feed)

	var recs map[string]record
	doJSON(t, http.MethodGet, c.APIBase+"/v1/notifications/"+sr.NotificationID+"/deliveries", nil, http.StatusOK, &recs)
	require.Len(t, recs, 1)
	require.Equal(t, "sent", recs["in_app"].Status)
}

func Test_ScheduledNotification_FiresOnTime(t *testing.T) {
	c := loadCfg()
	waitHealthy(t, c.APIBase)

	user := uniq("e2e")
	var sr sendResp
	doJSON(t, http.MethodPost, c.APIBase+"/v1/notifications", map[string]any{
		"user_id":       user,
		"channel":       "in_app",
		"type":          "meal_reminder",
		"title":         "Lunch",
		"message":       "log your meal",
		"scheduled_for": time.Now().Add(3 * time.Second).UTC(),
	}, http.StatusAccepted, &sr)
	require.Equal(t, "scheduled", sr.Results[0].Outcome)

	deadline := time.Now().Add(c.WaitFired)
	for time.Now().Before(deadline) {
		var recs map[string]record
		doJSON(t, http.MethodGet, c.APIBase+"/v1/notifications/"+sr.NotificationID+"/deliveries", nil, http.StatusOK, &recs)
		if recs["in_app"].Status == "sent" {
			var pending []map[string]any
			doJSON(t, http.MethodGet, c.APIBase+"/v1/users/"+user+"/schedules", nil, http.StatusOK, &pending)
			require.Empty(t, pending)
			return
		}
		time.Sleep(time.Second)
	}
	t.Fatalf("scheduled notification %s was not delivered within %s", sr.NotificationID, c.WaitFired)
}

func Test_CancelledSchedule_NeverFires(t *testing.T) {
	c := loadCfg()
	waitHealthy(t, c.APIBase)

	user := uniq("e2e")
	var sr sendResp
	doJSON(t, http.MethodPost, c.APIBase+"/v1/notifications", map[string]any{
		"user_id":       user,
		"channel":       "in_app",
		"type":          "workout_reminder",
		"title":         "Leg day",
		"message":       "m",
		"scheduled_for": time.Now().Add(5 * time.Second).UTC(),
	}, http.StatusAccepted, &sr)
	require.Equal(t, "scheduled", sr.Results[0].Outcome)

	var cancelled map[string]bool
	doJSON(t, http.MethodDelete, c.APIBase+"/v1/schedules/"+sr.Results[0].ScheduleID, nil, http.StatusOK, &cancelled)
	require.True(t, cancelled["cancelled"])

	time.Sleep(8 * time.Second)
	var recs map[string]record
	doJSON(t, http.MethodGet, c.APIBase+"/v1/notifications/"+sr.NotificationID+"/deliveries", nil, http.StatusOK, &recs)
	require.Empty(t, recs)
}
