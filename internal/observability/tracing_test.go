package observability

import (
	"context"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
)

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	client := NewHTTPClient(5 * time.Second)
	if client.Timeout != 5*time.Second {
		t.Fatalf("expected timeout to be applied, got %s", client.Timeout)
	}
	if client.Transport == nil {
		t.Fatalf("expected a tracing transport")
	}

	if NewHTTPClient(0).Timeout != 0 {
		t.Fatalf("expected zero timeout to leave the client unbounded")
	}
}

func TestStartSpan(t *testing.T) {
	t.Parallel()

	span, ctx := StartSpan(context.Background(), "service.cart.add_item", "AddItem")
	defer span.Finish()

	if sentry.SpanFromContext(ctx) != span {
		t.Fatalf("expected the span to be stored on the returned context")
	}
	if span.Op != "service.cart.add_item" {
		t.Fatalf("unexpected span op %q", span.Op)
	}
}

func TestMeterFromContext(t *testing.T) {
	t.Parallel()

	if MeterFromContext(context.Background()) == nil {
		t.Fatalf("expected a meter without one on the context")
	}
	ctx := WithMeter(context.Background(), nil)
	if MeterFromContext(ctx) == nil {
		t.Fatalf("expected the stored meter")
	}
	CountOutcome(ctx, "payment.charge", "declined", "currency", "usd")
}
