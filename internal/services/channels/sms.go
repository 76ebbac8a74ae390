package channels

import (
	"context"
	"fmt"
	"net/http"

	"github.com/NordCoder/Herald/internal/domain/notification"
	"go.uber.org/zap"
)

// smsMaxRunes keeps a message within a few concatenated segments.
const smsMaxRunes = 480

type smsRequest struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	Text      string `json:"text"`
	Reference string `json:"reference"`
}

type SMSAdapter struct {
	p      provider
	sender string
	log    *zap.Logger
}

func NewSMSAdapter(cfg ProviderConfig, client *http.Client, log *zap.Logger) *SMSAdapter {
	log = log.With(zap.String("component", "channels.sms"))
	return &SMSAdapter{p: newProvider("sms", cfg, client, log), sender: cfg.Sender, log: log}
}

func (a *SMSAdapter) Send(ctx context.Context, n notification.Notification) error {
	s, ok := n.(*notification.SMS)
	if !ok {
		return fmt.Errorf("%w: sms adapter got %s", notification.ErrUnknownChannel, n.Channel())
	}
	err := a.p.post(ctx, smsRequest{From: a.sender, To: s.PhoneNumber, Text: smsText(s), Reference: s.ID})
	if err != nil {
		return err
	}
	a.log.Debug("sms sent", zap.String("notification_id", s.ID))
	return nil
}

func smsText(s *notification.SMS) string {
	text := s.Message
	if s.Title != "" {
		text = s.Title + ": " + s.Message
	}
	if r := []rune(text); len(r) > smsMaxRunes {
		text = string(r[:smsMaxRunes-1]) + "…"
	}
	return text
}
