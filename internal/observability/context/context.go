package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type providerKey struct{}

// WithRequestID stores the inbound request id on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id, empty when absent.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithProvider tags the context with the payment provider handling the request.
func WithProvider(ctx context.Context, provider string) context.Context {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return ctx
	}
	return context.WithValue(ctx, providerKey{}, provider)
}

func ProviderFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(providerKey{}).(string)
	return value
}
