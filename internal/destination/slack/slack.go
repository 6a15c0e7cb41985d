// Package slack delivers formatted notifications to Slack incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/notipushq/notipus/internal/enrichment"
	"github.com/notipushq/notipus/internal/event"
	"github.com/notipushq/notipus/internal/plugin"
)

type Plugin struct {
	client     *http.Client
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	log        *zap.Logger
}

var _ plugin.Destination = (*Plugin)(nil)

func New(timeout time.Duration, maxRetries int, log *zap.Logger) *Plugin {
	return &Plugin{
		client:     &http.Client{Timeout: timeout},
		timeout:    timeout,
		maxRetries: maxRetries,
		backoff:    500 * time.Millisecond,
		log:        log.Named("destination.slack"),
	}
}

func (p *Plugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "slack",
		DisplayName: "Slack",
		Version:     "1.0.0",
		Type:        plugin.TypeDestination,
		Priority:    100,
	}
}

func (p *Plugin) Available() bool { return true }

func (p *Plugin) Configure(cfg plugin.Config) error {
	if retries, ok := cfg["max_retries"].(int); ok && retries >= 0 {
		p.maxRetries = retries
	}
	return nil
}

// Send posts the payload to the tenant's incoming webhook. 4xx responses are
// permanent: the payload or webhook URL is wrong and retrying cannot fix
// either. 5xx and transport errors are retried with backoff.
func (p *Plugin) Send(ctx context.Context, payload []byte, creds plugin.Credentials) error {
	if creds.WebhookURL == "" {
		return &event.Permanent{Err: fmt.Errorf("%w: no slack webhook url configured", event.ErrDelivery)}
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", event.ErrDelivery, ctx.Err())
			case <-time.After(p.backoff << (attempt - 1)):
			}
		}

		err := p.post(ctx, payload, creds.WebhookURL)
		if err == nil {
			return nil
		}
		if event.IsPermanent(err) {
			return err
		}
		lastErr = err
		p.log.Warn("slack delivery attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return lastErr
}

func (p *Plugin) post(ctx context.Context, payload []byte, webhookURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return &event.Permanent{Err: fmt.Errorf("%w: %v", event.ErrDelivery, err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", event.ErrDelivery, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &event.Permanent{Err: fmt.Errorf("%w: slack returned %d: %s", event.ErrDelivery, resp.StatusCode, body)}
	default:
		return fmt.Errorf("%w: slack returned %d", event.ErrDelivery, resp.StatusCode)
	}
}

var errNilEvent = errors.New("nil event")

// Format renders the event as Block Kit JSON. Enrichment is optional; a nil
// company just means no context block.
func (p *Plugin) Format(evt *event.NormalizedEvent, company *enrichment.CompanyInfo) ([]byte, error) {
	if evt == nil {
		return nil, errNilEvent
	}
	return render(evt, company)
}
