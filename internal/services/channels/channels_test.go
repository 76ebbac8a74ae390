package channels

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/repository/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func base(id string) notification.Base {
	return notification.Base{ID: id, UserID: "u1", Type: notification.TypeAlert, Title: "Heads up", Message: "hello", Priority: notification.PriorityHigh}
}

func TestPushAdapterPostsPayload(t *testing.T) {
	var got pushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	badge := 3
	a := NewPushAdapter(ProviderConfig{Endpoint: srv.URL, APIKey: "k"}, srv.Client(), zap.NewNop())
	err := a.Send(context.Background(), &notification.Push{Base: base("n1"), DeviceTokens: []string{"t1", "t2"}, Badge: &badge, TTL: time.Minute})
	require.NoError(t, err)

	assert.Equal(t, []string{"t1", "t2"}, got.Tokens)
	assert.Equal(t, "high", got.Priority)
	assert.EqualValues(t, 60, got.TTLSeconds)
	assert.Equal(t, "n1", got.Reference)
	require.NotNil(t, got.Badge)
	assert.Equal(t, 3, *got.Badge)
}

func TestProviderRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewSMSAdapter(ProviderConfig{Endpoint: srv.URL, Attempts: 3}, srv.Client(), zap.NewNop())
	require.NoError(t, a.Send(context.Background(), &notification.SMS{Base: base("n1"), PhoneNumber: "+15550001111"}))
	assert.EqualValues(t, 2, calls.Load())
}

func TestProviderClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad number", http.StatusBadRequest)
	}))
	defer srv.Close()

	a := NewSMSAdapter(ProviderConfig{Endpoint: srv.URL, Attempts: 5}, srv.Client(), zap.NewNop())
	err := a.Send(context.Background(), &notification.SMS{Base: base("n1"), PhoneNumber: "+15550001111"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad number")
	assert.EqualValues(t, 1, calls.Load())
}

func TestSMSText(t *testing.T) {
	s := &notification.SMS{Base: base("n1")}
	assert.Equal(t, "Heads up: hello", smsText(s))

	s.Title = ""
	s.Message = strings.Repeat("x", 1000)
	assert.Len(t, []rune(smsText(s)), smsMaxRunes)
}

type fakeMail struct {
	from, to string
	msg      []byte
	err      error
}

func (f *fakeMail) SendMail(_ context.Context, from, to string, msg []byte) error {
	f.from, f.to, f.msg = from, to, msg
	return f.err
}

func TestEmailAdapterComposes(t *testing.T) {
	mail := &fakeMail{}
	a := NewEmailAdapter(mail, SMTPConfig{From: "herald@example.com", SubjPrefix: "[Herald]"}, zap.NewNop())

	err := a.Send(context.Background(), &notification.Email{
		Base: base("n1"), To: "u1@example.com",
		Attachments: []notification.Attachment{{Filename: "report.pdf", URL: "https://cdn.example.com/r.pdf"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", mail.to)
	msg := string(mail.msg)
	assert.Contains(t, msg, "Subject: [Herald] Heads up")
	assert.Contains(t, msg, "text/plain")
	assert.Contains(t, msg, "report.pdf: https://cdn.example.com/r.pdf")

	err = a.Send(context.Background(), &notification.Email{Base: base("n2"), To: "u1@example.com", Subject: "Weekly", HTML: "<b>hi</b>"})
	require.NoError(t, err)
	msg = string(mail.msg)
	assert.Contains(t, msg, "multipart/alternative")
	assert.Contains(t, msg, "<b>hi</b>")
	assert.Contains(t, msg, "Subject: [Herald] Weekly")
}

func TestSetRecoversPanicsAndWrapsErrors(t *testing.T) {
	set := Set{
		Email: notification.AdapterFunc(func(context.Context, notification.Notification) error { panic("boom") }),
		SMS:   notification.AdapterFunc(func(context.Context, notification.Notification) error { return errors.New("gateway down") }),
	}

	err := set.Send(context.Background(), &notification.Email{Base: base("n1"), To: "x@example.com"})
	require.ErrorIs(t, err, ErrSendFailed)
	assert.Contains(t, err.Error(), "panic")

	err = set.Send(context.Background(), &notification.SMS{Base: base("n1"), PhoneNumber: "+15550001111"})
	require.ErrorIs(t, err, ErrSendFailed)

	err = set.Send(context.Background(), &notification.Push{Base: base("n1"), DeviceTokens: []string{"t"}})
	require.ErrorIs(t, err, ErrSendFailed, "missing adapter")
}

func TestLimitedHonoursContext(t *testing.T) {
	var sent atomic.Int32
	a := Limited(notification.AdapterFunc(func(context.Context, notification.Notification) error {
		sent.Add(1)
		return nil
	}), LimitConfig{RatePerSec: 0.001, Burst: 1})

	n := &notification.InApp{Base: base("n1")}
	require.NoError(t, a.Send(context.Background(), n))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, a.Send(ctx, n), ErrSendFailed)
	assert.EqualValues(t, 1, sent.Load())

	plain := notification.AdapterFunc(func(context.Context, notification.Notification) error { return nil })
	assert.NotNil(t, Limited(plain, LimitConfig{}))
}

func TestInAppAdapterWritesFeed(t *testing.T) {
	db, err := sqlite.Open(context.Background(), sqlite.Config{Path: sqlite.Memory})
	require.NoError(t, err)
	defer db.Close()
	feed := sqlite.NewFeedRepo(db)

	n := &notification.InApp{Base: base("n1")}
	n.CreatedAt = time.Now().UTC()
	require.NoError(t, NewInAppAdapter(feed).Send(context.Background(), n))

	items, err := feed.List(context.Background(), "u1", true, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Heads up", items[0].Title)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3"))
	assert.Zero(t, retryAfter(""))
	assert.Zero(t, retryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
	assert.Zero(t, retryAfter("-1"))
}
