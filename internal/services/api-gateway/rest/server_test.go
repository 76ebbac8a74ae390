package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NordCoder/Herald/internal/domain/delivery"
	"github.com/NordCoder/Herald/internal/domain/inapp"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/repository/sqlite"
	"github.com/NordCoder/Herald/internal/services/channels"
	"github.com/NordCoder/Herald/internal/services/dispatcher"
	"github.com/NordCoder/Herald/internal/services/inappbus"
	prefsvc "github.com/NordCoder/Herald/internal/services/preference"
	"github.com/NordCoder/Herald/internal/services/scheduler"
	"github.com/NordCoder/Herald/internal/services/tracker"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	h   http.Handler
	bus *inappbus.Bus
	db  *sqlite.DB
}

func newHarness(t *testing.T, busLen int) *harness {
	t.Helper()
	db, err := sqlite.Open(context.Background(), sqlite.Config{Path: sqlite.Memory})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := zap.NewNop()
	clock := fixedClock{t: now}
	feed := sqlite.NewFeedRepo(db)
	noop := notification.AdapterFunc(func(context.Context, notification.Notification) error { return nil })

	prefs := prefsvc.NewService(prefsvc.NewCache(sqlite.NewPreferenceRepo(db), time.Hour), clock, log)
	tr := tracker.New(sqlite.NewDeliveryRepo(db), sqlite.NewOutboxRepo(db), db, clock, log)
	bus := inappbus.New(sqlite.NewInAppLogRepo(db), inappbus.Config{MaxLen: busLen}, clock, log)
	sched := scheduler.NewUC(sqlite.NewScheduleRepo(db), clock, log)
	sched.Tx = db
	router := channels.Set{Email: noop, Push: noop, SMS: noop, InApp: channels.NewInAppAdapter(feed)}
	d := dispatcher.New(prefs, sched, tr, bus, router, clock, log)
	sched.Deliverer = d

	srv := NewServer(log, Deps{
		Dispatcher: d, Preferences: prefs, Scheduler: sched, Tracker: tr, Bus: bus, Feed: feed,
		Clock: clock, Health: db.Ping,
	}, nil)
	return &harness{h: srv.Handler(), bus: bus, db: db}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestSendFanOutAndTrack(t *testing.T) {
	h := newHarness(t, 100)

	rec := h.do(t, http.MethodPost, "/v1/notifications", map[string]any{
		"user_id":  "u1",
		"channels": []string{"in_app", "email"},
		"type":     "goal_progress",
		"title":    "Halfway",
		"message":  "5 of 10 workouts done",
		"email":    map[string]any{"to": "u1@example.com"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decodeBody[sendResponse](t, rec)
	assert.True(t, resp.Accepted)
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		assert.Equal(t, dispatcher.OutcomeSent, r.Outcome)
		assert.Equal(t, resp.NotificationID, r.NotificationID)
	}

	rec = h.do(t, http.MethodGet, "/v1/notifications/"+resp.NotificationID+"/deliveries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	recs := decodeBody[map[notification.Channel]delivery.Record](t, rec)
	assert.Equal(t, delivery.StatusSent, recs[notification.ChannelInApp].Status)
	assert.Equal(t, delivery.StatusSent, recs[notification.ChannelEmail].Status)

	rec = h.do(t, http.MethodGet, "/v1/users/u1/feed?unread=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeBody[[]inapp.FeedItem](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, "Halfway", items[0].Title)

	rec = h.do(t, http.MethodPut, "/v1/users/u1/feed/"+items[0].ID+"/read", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(t, http.MethodPut, "/v1/users/u1/feed/missing/read", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(t, http.MethodGet, "/v1/users/u1/feed?unread=true", nil)
	assert.Empty(t, decodeBody[[]inapp.FeedItem](t, rec))
}

func TestSendRejectsBadRequests(t *testing.T) {
	h := newHarness(t, 100)

	cases := map[string]any{
		"malformed json":  `{"user_id":`,
		"unknown channel": map[string]any{"user_id": "u1", "channel": "pigeon", "type": "alert", "title": "t", "message": "m"},
		"unknown type":    map[string]any{"user_id": "u1", "channel": "push", "type": "gossip", "title": "t", "message": "m"},
		"no user":         map[string]any{"channel": "push", "type": "alert", "title": "t", "message": "m"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/v1/notifications", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestSendRejectsMalformedContactNowAndLater(t *testing.T) {
	h := newHarness(t, 100)

	bodies := map[string]map[string]any{
		"immediate": {
			"user_id": "u1", "channel": "sms", "type": "reminder", "title": "t", "message": "m",
			"sms": map[string]any{"phone_number": "not-a-phone"},
		},
		"scheduled": {
			"user_id": "u1", "channel": "sms", "type": "reminder", "title": "t", "message": "m",
			"sms":           map[string]any{"phone_number": "not-a-phone"},
			"scheduled_for": now.Add(time.Hour),
		},
		"email": {
			"user_id": "u1", "channels": []string{"in_app", "email"}, "type": "reminder", "title": "t", "message": "m",
			"email":         map[string]any{"to": "nobody"},
			"scheduled_for": now.Add(time.Hour),
		},
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/v1/notifications", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	rec := h.do(t, http.MethodGet, "/v1/users/u1/schedules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	rec = h.do(t, http.MethodGet, "/v1/users/u1/feed", nil)
	assert.Empty(t, decodeBody[[]inapp.FeedItem](t, rec))
}

func TestReceiptsAndStats(t *testing.T) {
	h := newHarness(t, 100)
	rec := h.do(t, http.MethodPost, "/v1/notifications", map[string]any{
		"user_id": "u1", "channel": "push", "type": "alert", "title": "t", "message": "m",
		"push": map[string]any{"device_tokens": []string{"tok"}},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	id := decodeBody[sendResponse](t, rec).NotificationID

	rec = h.do(t, http.MethodPost, "/v1/notifications/"+id+"/deliveries/push", receiptRequest{Status: delivery.StatusDelivered})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rr := decodeBody[receiptResponse](t, rec)
	assert.Equal(t, delivery.AppliedAdvanced, rr.Applied)
	assert.Equal(t, delivery.StatusDelivered, rr.Record.Status)

	rec = h.do(t, http.MethodPost, "/v1/notifications/"+id+"/deliveries/push", receiptRequest{Status: delivery.StatusDelivered})
	assert.Equal(t, delivery.AppliedIgnored, decodeBody[receiptResponse](t, rec).Applied)

	rec = h.do(t, http.MethodPost, "/v1/notifications/"+id+"/deliveries/push", receiptRequest{Status: delivery.StatusSent})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(t, http.MethodPost, "/v1/notifications/"+id+"/deliveries/fax", receiptRequest{Status: delivery.StatusRead})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	from, to := now.Add(-time.Hour).Format(time.RFC3339), now.Add(time.Hour).Format(time.RFC3339)
	rec = h.do(t, http.MethodGet, "/v1/stats/deliveries?from="+from+"&to="+to, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decodeBody[statsResponse](t, rec)
	assert.Equal(t, int64(1), stats.Counts[delivery.StatusPending])
	assert.Equal(t, int64(1), stats.Counts[delivery.StatusSent])
	assert.Equal(t, int64(1), stats.Counts[delivery.StatusDelivered])
	assert.Zero(t, stats.Counts[delivery.StatusFailed])

	rec = h.do(t, http.MethodGet, "/v1/stats/deliveries?from="+to+"&to="+from, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(t, http.MethodGet, "/v1/stats/deliveries?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreferencesAndDevices(t *testing.T) {
	h := newHarness(t, 100)

	rec := h.do(t, http.MethodGet, "/v1/users/u1/preferences", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"default":true`)

	rec = h.do(t, http.MethodPut, "/v1/users/u1/preferences", map[string]any{
		"user_id":  "someone-else",
		"channels": map[string]bool{"sms": false},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/v1/users/u1/preferences", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"default"`)
	assert.Contains(t, rec.Body.String(), `"user_id":"u1"`)
	assert.Contains(t, rec.Body.String(), `"sms":false`)

	rec = h.do(t, http.MethodPost, "/v1/users/u1/devices", deviceRequest{Token: "tok-1", Platform: "ios"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]bool{"added": true}, decodeBody[map[string]bool](t, rec))
	rec = h.do(t, http.MethodPost, "/v1/users/u1/devices", deviceRequest{Token: "tok-1", Platform: "ios"})
	assert.Equal(t, map[string]bool{"added": false}, decodeBody[map[string]bool](t, rec))

	rec = h.do(t, http.MethodPost, "/v1/users/u1/devices", deviceRequest{Token: "tok-2", Platform: "blackberry"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// sms is disabled now, so the dispatcher suppresses it
	rec = h.do(t, http.MethodPost, "/v1/notifications", map[string]any{
		"user_id": "u1", "channel": "sms", "type": "alert", "title": "t", "message": "m",
		"sms": map[string]any{"phone_number": "+15551234567"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeBody[sendResponse](t, rec)
	assert.False(t, resp.Accepted)
	assert.Equal(t, dispatcher.OutcomeSuppressed, resp.Results[0].Outcome)
}

func TestScheduleListAndCancel(t *testing.T) {
	h := newHarness(t, 100)

	rec := h.do(t, http.MethodPost, "/v1/notifications", map[string]any{
		"user_id": "u1", "channel": "in_app", "type": "workout_reminder", "title": "Leg day", "message": "m",
		"scheduled_for": now.Add(5 * time.Minute),
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decodeBody[sendResponse](t, rec)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, dispatcher.OutcomeScheduled, resp.Results[0].Outcome)
	sid := resp.Results[0].ScheduleID
	require.NotEmpty(t, sid)

	rec = h.do(t, http.MethodGet, "/v1/users/u1/schedules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), sid)

	rec = h.do(t, http.MethodDelete, "/v1/schedules/"+sid, nil)
	assert.Equal(t, map[string]bool{"cancelled": true}, decodeBody[map[string]bool](t, rec))
	rec = h.do(t, http.MethodDelete, "/v1/schedules/"+sid, nil)
	assert.Equal(t, map[string]bool{"cancelled": false}, decodeBody[map[string]bool](t, rec))

	rec = h.do(t, http.MethodGet, "/v1/users/u1/schedules", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestInboxPagingAndGap(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	for _, u := range []string{"a", "b", "a"} {
		_, err := h.bus.Publish(ctx, inapp.Entry{UserID: u, Title: "hi"})
		require.NoError(t, err)
	}

	rec := h.do(t, http.MethodGet, "/v1/inbox/web?after=0", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, int64(2), decodeBody[gapBody](t, rec).Earliest)

	rec = h.do(t, http.MethodGet, "/v1/inbox/web?after=1&user_id=a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[inappbus.Page](t, rec)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, int64(3), page.Entries[0].Position)
	assert.Equal(t, int64(3), page.Next)

	// a fresh group continues from the earliest retained entry
	rec = h.do(t, http.MethodGet, "/v1/inbox/mobile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[inappbus.Page](t, rec).Entries, 2)

	rec = h.do(t, http.MethodGet, "/v1/inbox/web?after=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInboxWebsocketStream(t *testing.T) {
	h := newHarness(t, 100)
	srv := httptest.NewServer(h.h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/inbox/live/ws?user_id=u1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()
	_, err = h.bus.Publish(ctx, inapp.Entry{UserID: "other", Title: "skip"})
	require.NoError(t, err)
	_, err = h.bus.Publish(ctx, inapp.Entry{UserID: "u1", Title: "hello"})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f wsFrame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "entry", f.Type)
	require.NotNil(t, f.Entry)
	assert.Equal(t, "hello", f.Entry.Title)
}

func TestInboxWebsocketSeesOtherPublishers(t *testing.T) {
	h := newHarness(t, 100)
	srv := httptest.NewServer(h.h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/inbox/live/ws?user_id=u1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// a second bus over the same log stands in for the dispatcher binary; its publish
	// never reaches the server's subscribers
	other := inappbus.New(sqlite.NewInAppLogRepo(h.db), inappbus.Config{MaxLen: 100}, fixedClock{t: now}, zap.NewNop())
	_, err = other.Publish(context.Background(), inapp.Entry{UserID: "u1", Title: "from elsewhere"})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wsPollPeriod+3*time.Second)))
	var f wsFrame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "entry", f.Type)
	require.NotNil(t, f.Entry)
	assert.Equal(t, "from elsewhere", f.Entry.Title)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, 100)
	rec := h.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
