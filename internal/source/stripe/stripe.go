// Package stripe parses Stripe billing webhooks.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/notipushq/notipus/internal/clock"
	"github.com/notipushq/notipus/internal/event"
	"github.com/notipushq/notipus/internal/plugin"
)

const headerSignature = "Stripe-Signature"

var eventTypes = map[string]string{
	"invoice.paid":                         event.TypeInvoicePaid,
	"invoice.payment_succeeded":            event.TypeInvoicePaid,
	"invoice.payment_failed":               event.TypeInvoicePaymentFailed,
	"customer.subscription.created":        event.TypeSubscriptionCreated,
	"customer.subscription.updated":        event.TypeSubscriptionUpdated,
	"customer.subscription.deleted":        event.TypeSubscriptionCanceled,
	"customer.subscription.trial_will_end": event.TypeTrialEnding,
	"checkout.session.completed":           event.TypeCheckoutCompleted,
}

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
		log:       log.Named("source.stripe"),
	}
}

func (p *Plugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "stripe",
		DisplayName: "Stripe",
		Version:     "1.0.0",
		Type:        plugin.TypeSource,
		Priority:    80,
	}
}

func (p *Plugin) Available() bool               { return true }
func (p *Plugin) Configure(plugin.Config) error { return nil }

// Verify implements Stripe's signing scheme: the header carries a unix
// timestamp and one or more v1 signatures over "<timestamp>.<body>". The
// timestamp must fall inside the tolerance window; any v1 may match, which
// is how Stripe handles secret rotation.
func (p *Plugin) Verify(_ context.Context, req plugin.VerifyRequest) error {
	if req.Secret == "" {
		return event.ErrMissingSecret
	}
	header := req.Headers.Get(headerSignature)
	if header == "" {
		return event.ErrInvalidSignature
	}

	var timestamp string
	var signatures [][]byte
	for _, element := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(element), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			sig, err := hex.DecodeString(v)
			if err == nil {
				signatures = append(signatures, sig)
			}
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return event.ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return event.ErrInvalidSignature
	}
	age := p.clk.Now().Sub(time.Unix(unix, 0))
	if age < 0 {
		age = -age
	}
	if age > p.tolerance {
		return event.ErrStaleRequest
	}

	mac := hmac.New(sha256.New, []byte(req.Secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(req.Payload)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		if hmac.Equal(sig, expected) {
			return nil
		}
	}
	return event.ErrInvalidSignature
}

type envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object eventObject `json:"object"`
	} `json:"data"`
}

type eventObject struct {
	Customer      string `json:"customer"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	Currency      string `json:"currency"`
	AmountDue     *int64 `json:"amount_due"`
	AmountPaid    *int64 `json:"amount_paid"`
	AmountTotal   *int64 `json:"amount_total"`
	Number        string `json:"number"`
	Plan          *struct {
		Amount   *int64 `json:"amount"`
		Currency string `json:"currency"`
	} `json:"plan"`
	CustomerDetails *struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"customer_details"`
}

// Parse maps a Stripe event envelope onto a canonical event. Amounts are
// already in minor units.
func (p *Plugin) Parse(_ context.Context, payload []byte, _ http.Header) (*event.NormalizedEvent, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", event.ErrMalformedPayload, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", event.ErrMalformedPayload)
	}

	eventType, ok := eventTypes[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: type %q", event.ErrUnsupportedEvent, env.Type)
	}
	if env.ID == "" {
		return nil, fmt.Errorf("%w: missing event id", event.ErrMalformedPayload)
	}

	obj := env.Data.Object
	evt := &event.NormalizedEvent{
		Provider:      "stripe",
		Type:          eventType,
		EventID:       env.ID,
		CustomerName:  customerName(obj),
		CustomerEmail: customerEmail(obj),
		Reference:     reference(obj),
		Checksum:      event.PayloadChecksum(payload),
	}
	if env.Created > 0 {
		evt.OccurredAt = time.Unix(env.Created, 0).UTC()
	}

	if minor, cur, ok := amount(obj); ok {
		evt.Amount = &event.Money{MinorUnits: minor, Currency: strings.ToUpper(cur)}
	}

	return evt, nil
}

// amount picks the most specific figure present: invoices carry amount_due
// or amount_paid, checkout sessions amount_total, subscriptions the plan
// amount.
func amount(obj eventObject) (int64, string, bool) {
	currency := obj.Currency
	switch {
	case obj.AmountPaid != nil:
		return *obj.AmountPaid, currency, true
	case obj.AmountDue != nil:
		return *obj.AmountDue, currency, true
	case obj.AmountTotal != nil:
		return *obj.AmountTotal, currency, true
	case obj.Plan != nil && obj.Plan.Amount != nil:
		if obj.Plan.Currency != "" {
			currency = obj.Plan.Currency
		}
		return *obj.Plan.Amount, currency, true
	}
	return 0, "", false
}

func customerName(obj eventObject) string {
	if obj.CustomerName != "" {
		return obj.CustomerName
	}
	if obj.CustomerDetails != nil && obj.CustomerDetails.Name != "" {
		return obj.CustomerDetails.Name
	}
	return event.UnknownValue
}

func customerEmail(obj eventObject) string {
	if obj.CustomerEmail != "" {
		return obj.CustomerEmail
	}
	if obj.CustomerDetails != nil && obj.CustomerDetails.Email != "" {
		return obj.CustomerDetails.Email
	}
	return event.UnknownValue
}

func reference(obj eventObject) string {
	if obj.Number != "" {
		return obj.Number
	}
	if obj.Customer != "" {
		return obj.Customer
	}
	return event.UnknownValue
}
