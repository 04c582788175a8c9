package observability

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
)

type meterContextKey struct{}

// WithMeter stores a request meter on ctx. A nil meter is replaced by a new
// one bound to ctx.
func WithMeter(ctx context.Context, meter sentry.Meter) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter == nil {
		meter = sentry.NewMeter(ctx)
	}
	return context.WithValue(ctx, meterContextKey{}, meter.WithCtx(ctx))
}

func MeterFromContext(ctx context.Context) sentry.Meter {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter, ok := ctx.Value(meterContextKey{}).(sentry.Meter); ok && meter != nil {
		return meter.WithCtx(ctx)
	}
	return sentry.NewMeter(ctx).WithCtx(ctx)
}

// CountOutcome increments name by one, tagged with the outcome and any
// extra string pairs given as key, value, key, value.
func CountOutcome(ctx context.Context, name, outcome string, pairs ...string) {
	attrs := make([]attribute.Builder, 0, 1+len(pairs)/2)
	attrs = append(attrs, attribute.String("outcome", outcome))
	for i := 0; i+1 < len(pairs); i += 2 {
		attrs = append(attrs, attribute.String(pairs[i], pairs[i+1]))
	}
	MeterFromContext(ctx).Count(name, 1, sentry.WithAttributes(attrs...))
}
