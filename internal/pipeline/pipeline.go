// Package pipeline orchestrates a webhook's path from raw request to
// delivered notification.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notipushq/notipus/internal/activity"
	"github.com/notipushq/notipus/internal/breaker"
	"github.com/notipushq/notipus/internal/config"
	"github.com/notipushq/notipus/internal/dedup"
	"github.com/notipushq/notipus/internal/enrichment"
	"github.com/notipushq/notipus/internal/event"
	"github.com/notipushq/notipus/internal/metrics"
	"github.com/notipushq/notipus/internal/plugin"
	"github.com/notipushq/notipus/internal/ratelimit"
	"github.com/notipushq/notipus/internal/tenant"
	"github.com/notipushq/notipus/pkg/log/ctxlogger"
)

type Pipeline struct {
	cfg      config.Config
	tenants  tenant.Repository
	registry *plugin.Registry
	deduper  *dedup.Deduper
	limiter  *ratelimit.QuotaLimiter
	breaker  *breaker.Breaker
	resolver *enrichment.Resolver
	recorder *activity.Recorder
	metrics  *metrics.Pipeline
	log      *zap.Logger

	wg sync.WaitGroup
}

func New(
	cfg config.Config,
	tenants tenant.Repository,
	registry *plugin.Registry,
	deduper *dedup.Deduper,
	limiter *ratelimit.QuotaLimiter,
	brk *breaker.Breaker,
	resolver *enrichment.Resolver,
	recorder *activity.Recorder,
	m *metrics.Pipeline,
	log *zap.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		tenants:  tenants,
		registry: registry,
		deduper:  deduper,
		limiter:  limiter,
		breaker:  brk,
		resolver: resolver,
		recorder: recorder,
		metrics:  m,
		log:      log.Named("pipeline"),
	}
}

// Process takes a raw webhook through tenant resolution, verification,
// parsing, dedup and quota. Delivery is handed off to a detached goroutine;
// the inbound acknowledgement never waits on Slack.
//
// The returned error classifies why processing stopped. Suppressions
// (duplicate, quota) are errors here but acknowledged upstream.
func (p *Pipeline) Process(ctx context.Context, token, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(provider)
	p.metrics.IncReceived(provider)

	ten, err := p.tenants.FindByToken(ctx, token)
	if err != nil {
		p.metrics.IncRejected(provider, "unknown_tenant")
		return err
	}
	ctx = ctxlogger.ContextWithTenant(ctx, ten.Token)
	logger := ctxlogger.WithContext(ctx, p.log).With(zap.String("provider", provider))

	src := p.registry.Source(provider)
	if src == nil {
		p.metrics.IncRejected(provider, "unknown_provider")
		return event.ErrUnknownProvider
	}

	integ, err := p.tenants.GetIntegration(ctx, ten.ID, provider)
	if err != nil {
		p.metrics.IncRejected(provider, "unknown_provider")
		return err
	}

	if err := p.verify(ctx, src, payload, headers, integ.SigningSecret, logger); err != nil {
		p.metrics.IncRejected(provider, rejectReason(err))
		return err
	}

	evt, err := src.Parse(ctx, payload, headers)
	if err != nil {
		p.metrics.IncRejected(provider, rejectReason(err))
		return err
	}
	evt.TenantID = ten.ID

	if evt.Test {
		logger.Info("test webhook acknowledged", zap.String("event_type", evt.Type))
		return nil
	}
	p.metrics.IncProcessed(provider, evt.Type)

	if p.deduper.Seen(ctx, ten.ID, evt.IdempotencyKey()) {
		logger.Info("duplicate event suppressed", zap.String("idempotency_key", evt.IdempotencyKey()))
		p.record(ctx, ten, evt, activity.OutcomeDuplicate, "")
		return event.ErrDuplicateEvent
	}

	decision := p.limiter.Admit(ctx, ten.ID, ten.Quota())
	if !decision.Allowed {
		logger.Warn("quota exhausted, suppressing notification",
			zap.Int64("limit", decision.Limit),
			zap.Int64("used", decision.Used),
			zap.Time("reset_at", decision.ResetAt))
		p.metrics.IncSuppressed("quota")
		p.record(ctx, ten, evt, activity.OutcomeSuppressedQuota, "")
		return event.ErrQuotaExceeded
	}

	// Detach from the request context: the caller's deadline must not
	// cancel an in-flight Slack post.
	deliveryCtx := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.deliver(deliveryCtx, ten, evt)
	}()

	return nil
}

// Wait drains in-flight deliveries, bounded by ctx.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown with deliveries still in flight: %w", ctx.Err())
	}
}

func (p *Pipeline) verify(ctx context.Context, src plugin.Source, payload []byte, headers http.Header, secret string, logger *zap.Logger) error {
	if secret == "" {
		if p.cfg.VerificationBypassAllowed() {
			logger.Warn("accepting unverified webhook, no signing secret configured")
			return nil
		}
		return event.ErrMissingSecret
	}
	return src.Verify(ctx, plugin.VerifyRequest{Payload: payload, Headers: headers, Secret: secret})
}

// deliver fans the event out to every enabled destination, gated per
// destination by the circuit breaker.
func (p *Pipeline) deliver(ctx context.Context, ten *tenant.Tenant, evt *event.NormalizedEvent) {
	logger := ctxlogger.WithContext(ctx, p.log).With(
		zap.String("provider", evt.Provider),
		zap.String("event_type", evt.Type))

	company := p.enrich(ctx, evt)
	creds := plugin.Credentials{
		WebhookURL: ten.SlackWebhookURL,
		Channel:    ten.SlackChannel,
	}

	for _, dest := range p.registry.Destinations() {
		name := dest.Metadata().Name
		key := breaker.Key(ten.ID.String(), name)

		if err := p.breaker.Allow(ctx, key); err != nil {
			logger.Warn("circuit open, suppressing notification", zap.String("destination", name))
			p.metrics.IncSuppressed("breaker")
			p.record(ctx, ten, evt, activity.OutcomeSuppressedBreaker, name)
			continue
		}

		payload, err := dest.Format(evt, company)
		if err != nil {
			logger.Error("failed to format notification", zap.String("destination", name), zap.Error(err))
			p.record(ctx, ten, evt, activity.OutcomeFailed, name)
			continue
		}

		start := time.Now()
		sendCtx, cancel := context.WithTimeout(ctx, p.sendBudget())
		err = dest.Send(sendCtx, payload, creds)
		cancel()
		p.metrics.ObserveDeliveryDuration(name, time.Since(start))

		if err != nil {
			logger.Error("notification delivery failed",
				zap.String("destination", name),
				zap.Bool("permanent", event.IsPermanent(err)),
				zap.Error(err))
			p.breaker.RecordFailure(ctx, key)
			p.metrics.IncDeliveryFailure(name)
			p.record(ctx, ten, evt, activity.OutcomeFailed, name)
			continue
		}

		p.breaker.RecordSuccess(ctx, key)
		p.metrics.IncDelivered(name)
		p.record(ctx, ten, evt, activity.OutcomeDelivered, name)
		logger.Info("notification delivered", zap.String("destination", name))
	}
}

// sendBudget bounds one destination's Send including its internal retries.
func (p *Pipeline) sendBudget() time.Duration {
	return p.cfg.DeliveryTimeout * time.Duration(p.cfg.DeliveryMaxRetries+1)
}

func (p *Pipeline) enrich(ctx context.Context, evt *event.NormalizedEvent) *enrichment.CompanyInfo {
	domain := enrichment.CompanyDomainFromEmail(evt.CustomerEmail)
	if domain == "" {
		return nil
	}
	return p.resolver.Resolve(ctx, domain)
}

func (p *Pipeline) record(ctx context.Context, ten *tenant.Tenant, evt *event.NormalizedEvent, outcome, detail string) {
	rec := activity.Record{
		TenantID:       ten.ID,
		Provider:       evt.Provider,
		EventType:      evt.Type,
		IdempotencyKey: evt.IdempotencyKey(),
		Outcome:        outcome,
		Detail:         detail,
	}
	if evt.Amount != nil {
		rec.AmountMinor = evt.Amount.MinorUnits
		rec.Currency = evt.Amount.Currency
	}
	p.recorder.Record(ctx, rec)
}

func rejectReason(err error) string {
	switch {
	case err == nil:
		return "none"
	default:
		return strings.SplitN(err.Error(), ":", 2)[0]
	}
}
