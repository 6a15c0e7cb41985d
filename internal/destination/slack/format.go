package slack

import (
	"encoding/json"
	"fmt"

	"github.com/notipushq/notipus/internal/enrichment"
	"github.com/notipushq/notipus/internal/event"
)

type message struct {
	Text   string  `json:"text"`
	Blocks []block `json:"blocks"`
}

type block struct {
	Type     string    `json:"type"`
	Text     *textObj  `json:"text,omitempty"`
	Fields   []textObj `json:"fields,omitempty"`
	Elements []element `json:"elements,omitempty"`
}

type textObj struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type element struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	AltText  string `json:"alt_text,omitempty"`
}

type headline struct {
	emoji string
	title string
}

var headlines = map[string]headline{
	event.TypeOrderCreated:   {":shopping_trolley:", "New order"},
	event.TypeOrderPaid:      {":moneybag:", "Order paid"},
	event.TypeOrderCancelled: {":no_entry_sign:", "Order cancelled"},
	event.TypeOrderFulfilled: {":package:", "Order fulfilled"},

	event.TypeCustomerUpdated: {":bust_in_silhouette:", "Customer updated"},

	event.TypePaymentSucceeded: {":moneybag:", "Payment received"},
	event.TypePaymentFailed:    {":rotating_light:", "Payment failed"},
	event.TypePaymentRefunded:  {":leftwards_arrow_with_hook:", "Payment refunded"},

	event.TypeSubscriptionCreated:       {":sparkles:", "New subscription"},
	event.TypeSubscriptionUpdated:       {":arrows_counterclockwise:", "Subscription updated"},
	event.TypeSubscriptionCanceled:      {":wave:", "Subscription cancelled"},
	event.TypeSubscriptionRenewed:       {":arrows_counterclockwise:", "Subscription renewed"},
	event.TypeSubscriptionRenewalFailed: {":rotating_light:", "Renewal failed"},
	event.TypeSubscriptionStateChanged:  {":traffic_light:", "Subscription state changed"},

	event.TypeInvoicePaid:          {":moneybag:", "Invoice paid"},
	event.TypeInvoicePaymentFailed: {":rotating_light:", "Invoice payment failed"},

	event.TypeTrialEnding:       {":hourglass_flowing_sand:", "Trial ending soon"},
	event.TypeCheckoutCompleted: {":tada:", "Checkout completed"},
	event.TypeSignupSucceeded:   {":tada:", "New signup"},
}

func render(evt *event.NormalizedEvent, company *enrichment.CompanyInfo) ([]byte, error) {
	hl, ok := headlines[evt.Type]
	if !ok {
		hl = headline{":bell:", "Notification"}
	}

	header := fmt.Sprintf("%s %s", hl.emoji, hl.title)
	blocks := []block{
		{
			Type: "header",
			Text: &textObj{Type: "plain_text", Text: header, Emoji: true},
		},
		{
			Type:   "section",
			Fields: detailFields(evt),
		},
	}

	if ctx := contextBlock(evt, company); ctx != nil {
		blocks = append(blocks, *ctx)
	}

	return json.Marshal(message{Text: fallbackText(hl, evt), Blocks: blocks})
}

func detailFields(evt *event.NormalizedEvent) []textObj {
	fields := []textObj{
		{Type: "mrkdwn", Text: "*Customer:*\n" + evt.CustomerName},
	}
	if evt.CustomerEmail != "" && evt.CustomerEmail != event.UnknownValue {
		fields = append(fields, textObj{Type: "mrkdwn", Text: "*Email:*\n" + evt.CustomerEmail})
	}
	if evt.Amount != nil {
		fields = append(fields, textObj{Type: "mrkdwn", Text: "*Amount:*\n" + event.FormatMoney(*evt.Amount)})
	}
	if evt.Reference != "" && evt.Reference != event.UnknownValue {
		fields = append(fields, textObj{Type: "mrkdwn", Text: "*Reference:*\n" + evt.Reference})
	}
	return fields
}

func contextBlock(evt *event.NormalizedEvent, company *enrichment.CompanyInfo) *block {
	var elements []element
	if company != nil {
		if company.LogoURL != "" {
			elements = append(elements, element{Type: "image", ImageURL: company.LogoURL, AltText: company.Name})
		}
		line := company.Name
		if company.Industry != "" {
			line += " · " + company.Industry
		}
		if line != "" {
			elements = append(elements, element{Type: "mrkdwn", Text: line})
		}
	}
	elements = append(elements, element{Type: "mrkdwn", Text: "via " + evt.Provider})
	return &block{Type: "context", Elements: elements}
}

func fallbackText(hl headline, evt *event.NormalizedEvent) string {
	text := hl.title + " for " + evt.CustomerName
	if evt.Amount != nil {
		text += " (" + event.FormatMoney(*evt.Amount) + ")"
	}
	return text
}
