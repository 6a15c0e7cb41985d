// Package chargify parses Chargify (Maxio Advanced Billing) webhooks.
package chargify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/notipushq/notipus/internal/clock"
	"github.com/notipushq/notipus/internal/event"
	"github.com/notipushq/notipus/internal/plugin"
)

const (
	headerSignature = "X-Chargify-Webhook-Signature-Hmac-Sha-256"
	headerWebhookID = "X-Chargify-Webhook-Id"
	headerTimestamp = "X-Chargify-Webhook-Timestamp"

	// Legacy MD5 signature header. Requests carrying only this are
	// rejected; MD5 is not an acceptable MAC.
	headerLegacySignature = "X-Chargify-Webhook-Signature"
)

var eventTypes = map[string]string{
	"payment_success":           event.TypePaymentSucceeded,
	"payment_failure":           event.TypePaymentFailed,
	"renewal_success":           event.TypeSubscriptionRenewed,
	"renewal_failure":           event.TypeSubscriptionRenewalFailed,
	"subscription_state_change": event.TypeSubscriptionStateChanged,
	"signup_success":            event.TypeSignupSucceeded,
}

// Chargify amounts are always USD cents.
const currency = "USD"

type Plugin struct {
	tolerance time.Duration
	clk       clock.Clock
	log       *zap.Logger
}

var _ plugin.Source = (*Plugin)(nil)

func New(tolerance time.Duration, clk clock.Clock, log *zap.Logger) *Plugin {
	return &Plugin{
		tolerance: tolerance,
		clk:       clk,
		log:       log.Named("source.chargify"),
	}
}

func (p *Plugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "chargify",
		DisplayName: "Chargify",
		Version:     "1.0.0",
		Type:        plugin.TypeSource,
		Priority:    90,
	}
}

func (p *Plugin) Available() bool               { return true }
func (p *Plugin) Configure(plugin.Config) error { return nil }

// Verify checks the hex HMAC-SHA256 digest over the raw form body. The
// timestamp, when present, is validated before the signature result is
// trusted, so a captured request cannot be replayed after the window.
func (p *Plugin) Verify(_ context.Context, req plugin.VerifyRequest) error {
	if req.Secret == "" {
		return event.ErrMissingSecret
	}

	if ts := req.Headers.Get(headerTimestamp); ts != "" {
		if err := p.checkTimestamp(ts); err != nil {
			return err
		}
	}

	header := req.Headers.Get(headerSignature)
	if header == "" {
		if req.Headers.Get(headerLegacySignature) != "" {
			p.log.Warn("rejecting legacy md5-signed webhook")
		}
		return event.ErrInvalidSignature
	}

	provided, err := hex.DecodeString(strings.ToLower(header))
	if err != nil {
		return event.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(req.Secret))
	mac.Write(req.Payload)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return event.ErrInvalidSignature
	}
	return nil
}

func (p *Plugin) checkTimestamp(raw string) error {
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// An unparseable timestamp gets no benefit of the doubt.
		return event.ErrStaleRequest
	}
	age := p.clk.Now().Sub(ts.UTC())
	if age < 0 {
		age = -age
	}
	if age > p.tolerance {
		return event.ErrStaleRequest
	}
	return nil
}

// Parse decodes the form-encoded body. Chargify nests everything under
// payload[subscription][...] style keys.
func (p *Plugin) Parse(_ context.Context, payload []byte, headers http.Header) (*event.NormalizedEvent, error) {
	form, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", event.ErrMalformedPayload, err)
	}

	rawEvent := form.Get("event")
	if rawEvent == "" {
		return nil, fmt.Errorf("%w: missing event field", event.ErrMalformedPayload)
	}

	eventType, ok := eventTypes[rawEvent]
	if !ok {
		return nil, fmt.Errorf("%w: event %q", event.ErrUnsupportedEvent, rawEvent)
	}

	webhookID := headers.Get(headerWebhookID)
	if webhookID == "" {
		webhookID = form.Get("id")
	}
	if webhookID == "" {
		return nil, fmt.Errorf("%w: missing webhook id", event.ErrMalformedPayload)
	}

	evt := &event.NormalizedEvent{
		Provider:      "chargify",
		Type:          eventType,
		EventID:       webhookID,
		CustomerName:  customerName(form),
		CustomerEmail: firstNonEmpty(form.Get("payload[subscription][customer][email]"), event.UnknownValue),
		Reference:     subscriptionRef(form),
		Checksum:      event.PayloadChecksum(payload),
		OccurredAt:    parseTime(headers.Get(headerTimestamp)),
	}

	if minor, ok := amountCents(form); ok {
		evt.Amount = &event.Money{MinorUnits: minor, Currency: currency}
	}

	return evt, nil
}

func customerName(form url.Values) string {
	name := strings.TrimSpace(
		form.Get("payload[subscription][customer][first_name]") + " " +
			form.Get("payload[subscription][customer][last_name]"))
	if name == "" {
		if org := form.Get("payload[subscription][customer][organization]"); org != "" {
			return org
		}
		return event.UnknownValue
	}
	return name
}

func subscriptionRef(form url.Values) string {
	if id := form.Get("payload[subscription][id]"); id != "" {
		return "sub_" + id
	}
	return event.UnknownValue
}

// amountCents prefers the transaction amount, falling back to lifetime
// revenue the way renewal events report it. Values are already minor units.
func amountCents(form url.Values) (int64, bool) {
	for _, key := range []string{
		"payload[transaction][amount_in_cents]",
		"payload[subscription][total_revenue_in_cents]",
	} {
		raw := form.Get(key)
		if raw == "" {
			continue
		}
		cents, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		return cents, true
	}
	return 0, false
}

func firstNonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
