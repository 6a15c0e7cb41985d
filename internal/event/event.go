package event

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Canonical event types produced by source plugins. Every provider topic is
// mapped onto one of these before anything downstream sees the event.
const (
	TypeOrderCreated   = "order.created"
	TypeOrderPaid      = "order.paid"
	TypeOrderCancelled = "order.cancelled"
	TypeOrderFulfilled = "order.fulfilled"

	TypeCustomerUpdated = "customer.updated"

	TypePaymentSucceeded = "payment.succeeded"
	TypePaymentFailed    = "payment.failed"
	TypePaymentRefunded  = "payment.refunded"

	TypeSubscriptionCreated       = "subscription.created"
	TypeSubscriptionUpdated       = "subscription.updated"
	TypeSubscriptionCanceled      = "subscription.canceled"
	TypeSubscriptionRenewed       = "subscription.renewed"
	TypeSubscriptionRenewalFailed = "subscription.renewal_failed"
	TypeSubscriptionStateChanged  = "subscription.state_changed"

	TypeInvoicePaid          = "invoice.paid"
	TypeInvoicePaymentFailed = "invoice.payment_failed"

	TypeTrialEnding       = "trial.ending"
	TypeCheckoutCompleted = "checkout.completed"
	TypeSignupSucceeded   = "signup.succeeded"
)

// UnknownValue is substituted for optional fields a provider omitted.
// Partial information is still actionable; a missing email never fails
// the whole event.
const UnknownValue = "unknown"

// Money is a fixed-point amount in the currency's minor units.
type Money struct {
	MinorUnits int64
	Currency   string
}

// NormalizedEvent is the canonical event parsed from a verified webhook.
type NormalizedEvent struct {
	Provider      string
	Type          string
	TenantID      snowflake.ID
	EventID       string
	Amount        *Money
	CustomerName  string
	CustomerEmail string
	Reference     string
	Checksum      string
	OccurredAt    time.Time
	Test          bool
}

// IdempotencyKey identifies the event within a (tenant, provider) scope.
func (e *NormalizedEvent) IdempotencyKey() string {
	return e.Provider + ":" + e.EventID
}

// PayloadChecksum returns the sha256 hex digest of a raw webhook body.
func PayloadChecksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
