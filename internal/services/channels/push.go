package channels

import (
	"context"
	"fmt"
	"net/http"

	"github.com/NordCoder/Herald/internal/domain/notification"
	"go.uber.org/zap"
)

type pushRequest struct {
	Tokens     []string       `json:"tokens"`
	Title      string         `json:"title"`
	Body       string         `json:"body"`
	Data       map[string]any `json:"data,omitempty"`
	Icon       string         `json:"icon,omitempty"`
	Image      string         `json:"image,omitempty"`
	Sound      string         `json:"sound,omitempty"`
	Badge      *int           `json:"badge,omitempty"`
	TTLSeconds int64          `json:"ttl_seconds,omitempty"`
	Priority   string         `json:"priority"`
	Reference  string         `json:"reference"`
}

type PushAdapter struct {
	p   provider
	log *zap.Logger
}

// NewPushAdapter builds the adapter; client may be nil.
func NewPushAdapter(cfg ProviderConfig, client *http.Client, log *zap.Logger) *PushAdapter {
	log = log.With(zap.String("component", "channels.push"))
	return &PushAdapter{p: newProvider("push", cfg, client, log), log: log}
}

func (a *PushAdapter) Send(ctx context.Context, n notification.Notification) error {
	p, ok := n.(*notification.Push)
	if !ok {
		return fmt.Errorf("%w: push adapter got %s", notification.ErrUnknownChannel, n.Channel())
	}
	prio := "normal"
	if p.Priority == notification.PriorityHigh || p.Priority == notification.PriorityUrgent {
		prio = "high"
	}
	err := a.p.post(ctx, pushRequest{
		Tokens:     p.DeviceTokens,
		Title:      p.Title,
		Body:       p.Message,
		Data:       p.Data,
		Icon:       p.Icon,
		Image:      p.Image,
		Sound:      p.Sound,
		Badge:      p.Badge,
		TTLSeconds: int64(p.TTL.Seconds()),
		Priority:   prio,
		Reference:  p.ID,
	})
	if err != nil {
		return err
	}
	a.log.Debug("push sent", zap.String("notification_id", p.ID), zap.Int("tokens", len(p.DeviceTokens)))
	return nil
}
