// Package shopify parses Shopify order and customer webhooks.
package shopify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/notipushq/notipus/internal/event"
	"github.com/notipushq/notipus/internal/plugin"
)

const (
	headerHMAC  = "X-Shopify-Hmac-SHA256"
	headerTopic = "X-Shopify-Topic"
	headerTest  = "X-Shopify-Test"
)

// Topics outside this allow-list are acknowledged but never notified on.
var topicTypes = map[string]string{
	"orders/create":    event.TypeOrderCreated,
	"orders/paid":      event.TypeOrderPaid,
	"orders/cancelled": event.TypeOrderCancelled,
	"orders/fulfilled": event.TypeOrderFulfilled,
	"customers/update": event.TypeCustomerUpdated,
}

type Plugin struct {
	log *zap.Logger
}

var _ plugin.Source = (*Plugin)(nil)

func New(log *zap.Logger) *Plugin {
	return &Plugin{log: log.Named("source.shopify")}
}

func (p *Plugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "shopify",
		DisplayName: "Shopify",
		Version:     "1.0.0",
		Type:        plugin.TypeSource,
		Priority:    100,
	}
}

func (p *Plugin) Available() bool               { return true }
func (p *Plugin) Configure(plugin.Config) error { return nil }

// Verify checks the base64 HMAC-SHA256 digest Shopify signs the raw body
// with. Comparison is on the decoded MACs, in constant time.
func (p *Plugin) Verify(_ context.Context, req plugin.VerifyRequest) error {
	if req.Secret == "" {
		return event.ErrMissingSecret
	}
	header := req.Headers.Get(headerHMAC)
	if header == "" {
		return event.ErrInvalidSignature
	}

	provided, err := base64.StdEncoding.DecodeString(header)
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

type orderPayload struct {
	ID              json.Number `json:"id"`
	OrderNumber     json.Number `json:"order_number"`
	TotalPrice      string      `json:"total_price"`
	Currency        string      `json:"currency"`
	Email           string      `json:"email"`
	FirstName       string      `json:"first_name"`
	LastName        string      `json:"last_name"`
	CreatedAt       string      `json:"created_at"`
	FinancialStatus string      `json:"financial_status"`
	Customer        struct {
		ID        json.Number `json:"id"`
		Email     string      `json:"email"`
		FirstName string      `json:"first_name"`
		LastName  string      `json:"last_name"`
	} `json:"customer"`
}

// Parse maps a Shopify topic onto a canonical event. Test deliveries are
// flagged, not rejected; the pipeline acknowledges them without notifying.
func (p *Plugin) Parse(_ context.Context, payload []byte, headers http.Header) (*event.NormalizedEvent, error) {
	topic := headers.Get(headerTopic)
	if topic == "" {
		return nil, fmt.Errorf("%w: missing %s", event.ErrMalformedPayload, headerTopic)
	}

	isTest := topic == "test" || strings.EqualFold(headers.Get(headerTest), "true")
	if topic == "test" {
		return &event.NormalizedEvent{
			Provider: "shopify",
			Type:     event.UnknownValue,
			Checksum: event.PayloadChecksum(payload),
			Test:     true,
		}, nil
	}

	eventType, ok := topicTypes[topic]
	if !ok {
		return nil, fmt.Errorf("%w: topic %q", event.ErrUnsupportedEvent, topic)
	}

	var data orderPayload
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", event.ErrMalformedPayload, err)
	}
	if data.ID.String() == "" {
		return nil, fmt.Errorf("%w: missing object id", event.ErrMalformedPayload)
	}

	evt := &event.NormalizedEvent{
		Provider:      "shopify",
		Type:          eventType,
		EventID:       data.ID.String(),
		CustomerName:  customerName(data),
		CustomerEmail: customerEmail(data),
		Reference:     reference(data),
		Checksum:      event.PayloadChecksum(payload),
		OccurredAt:    parseTime(data.CreatedAt),
		Test:          isTest,
	}

	if data.TotalPrice != "" {
		currency := data.Currency
		if currency == "" {
			currency = "USD"
		}
		minor, err := event.ParseMajorUnits(data.TotalPrice, currency)
		if err != nil {
			return nil, fmt.Errorf("%w: total_price: %v", event.ErrMalformedPayload, err)
		}
		evt.Amount = &event.Money{MinorUnits: minor, Currency: strings.ToUpper(currency)}
	}

	return evt, nil
}

func customerName(data orderPayload) string {
	first, last := data.Customer.FirstName, data.Customer.LastName
	if first == "" && last == "" {
		first, last = data.FirstName, data.LastName
	}
	name := strings.TrimSpace(first + " " + last)
	if name == "" {
		return event.UnknownValue
	}
	return name
}

func customerEmail(data orderPayload) string {
	if data.Customer.Email != "" {
		return data.Customer.Email
	}
	if data.Email != "" {
		return data.Email
	}
	return event.UnknownValue
}

func reference(data orderPayload) string {
	if data.OrderNumber.String() != "" {
		return "#" + data.OrderNumber.String()
	}
	return event.UnknownValue
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
