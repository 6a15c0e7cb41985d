package ctxlogger

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type requestIDKey struct{}
type tenantKey struct{}

var serviceName atomic.Pointer[string]

// SetServiceName configures the service name added to every log entry.
func SetServiceName(name string) {
	serviceName.Store(&name)
}

// ContextWithRequestID annotates the context with the inbound request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID fetches the request id from the context, if present.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(requestIDKey{}).(string); ok {
		return val
	}
	return ""
}

// EnsureRequestID guarantees a request id on the context, generating one when missing.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	id := RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	return ContextWithRequestID(ctx, id), id
}

// ContextWithTenant annotates the context with the tenant token handling the request.
func ContextWithTenant(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tenantKey{}, token)
}

// FromContext returns a logger enriched with request metadata from context.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext enriches the provided logger using metadata in the context.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil {
		return base
	}

	fields := make([]zap.Field, 0, 3)
	if id := RequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if tenant, ok := ctx.Value(tenantKey{}).(string); ok && tenant != "" {
		fields = append(fields, zap.String("tenant", tenant))
	}
	if namePtr := serviceName.Load(); namePtr != nil {
		fields = append(fields, zap.String("service", *namePtr))
	}

	return base.With(fields...)
}
