package event

import "errors"

// Error taxonomy for the ingestion and delivery pipeline. Handlers and the
// dispatcher branch on these with errors.Is; none of them carry secrets.
var (
	// ErrInvalidSignature means the request failed HMAC verification.
	ErrInvalidSignature = errors.New("invalid_signature")

	// ErrStaleRequest means the signed timestamp fell outside the
	// configured tolerance. Rejected before the HMAC result is trusted,
	// otherwise a captured request could be replayed indefinitely.
	ErrStaleRequest = errors.New("stale_request")

	// ErrMissingSecret means the tenant has no signing secret configured
	// for the provider. A configuration gap, not an attack.
	ErrMissingSecret = errors.New("missing_secret")

	// ErrUnsupportedEvent means the provider sent an event type outside
	// the plugin's allow-list. Acknowledged, logged, never retried.
	ErrUnsupportedEvent = errors.New("unsupported_event")

	// ErrMalformedPayload means the body could not be parsed at all.
	ErrMalformedPayload = errors.New("malformed_payload")

	// ErrQuotaExceeded suppresses outbound delivery; the inbound webhook
	// is still acknowledged.
	ErrQuotaExceeded = errors.New("quota_exceeded")

	// ErrCircuitOpen means the breaker refused to attempt delivery,
	// as opposed to a delivery that was tried and failed.
	ErrCircuitOpen = errors.New("circuit_open")

	// ErrDelivery means the destination rejected the payload or was
	// unreachable.
	ErrDelivery = errors.New("delivery_failed")

	// ErrDuplicateEvent means the idempotency key was already processed
	// within the dedup window. Treated as a no-op success.
	ErrDuplicateEvent = errors.New("duplicate_event")

	ErrUnknownTenant   = errors.New("unknown_tenant")
	ErrUnknownProvider = errors.New("unknown_provider")
)

// Permanent marks delivery errors that retrying cannot fix (4xx responses).
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// IsPermanent reports whether err is a non-retryable delivery failure.
func IsPermanent(err error) bool {
	var p *Permanent
	return errors.As(err, &p)
}
