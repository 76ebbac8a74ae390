package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/NordCoder/Herald/internal/obs/retry"
	"go.uber.org/zap"
)

// provider posts JSON to an HTTP gateway. 4xx answers other than 429 are permanent.
type provider struct {
	name     string
	endpoint string
	apiKey   string
	client   *http.Client
	policy   retry.Policy
}

func newProvider(name string, cfg ProviderConfig, client *http.Client, log *zap.Logger) provider {
	if client == nil {
		client = NewHTTPClient(cfg)
	}
	return provider{
		name:     name,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   client,
		policy:   retry.ProviderPolicy(name, cfg.Attempts, log),
	}
}

func (p provider) post(ctx context.Context, body any) error {
	if p.endpoint == "" {
		return fmt.Errorf("%w: %s endpoint is not configured", ErrSendFailed, p.name)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", p.name, err)
	}
	return retry.Do(ctx, func() error { return p.once(ctx, payload) }, p.policy)
}

func (p provider) once(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", p.name, err)
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		err := fmt.Errorf("%s: status %d: %s", p.name, resp.StatusCode, bytes.TrimSpace(msg))
		return retry.After(err, retryAfter(resp.Header.Get("Retry-After")))
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s: status %d: %s", p.name, resp.StatusCode, bytes.TrimSpace(msg))
	default:
		return retry.Permanent(fmt.Errorf("%s: status %d: %s", p.name, resp.StatusCode, bytes.TrimSpace(msg)))
	}
}

// retryAfter reads the delay-seconds form only; HTTP dates fall back to the backoff.
func retryAfter(v string) time.Duration {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
