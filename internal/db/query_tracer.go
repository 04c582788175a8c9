package db

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
)

const slowQueryThreshold = 250 * time.Millisecond

type queryTraceContextKey struct{}

type queryTrace struct {
	span      *sentry.Span
	query     string
	startedAt time.Time
}

// queryTracer opens a Sentry span per statement when the caller is traced
// and logs statements slower than slowQueryThreshold.
type queryTracer struct {
	logger *slog.Logger
}

func newQueryTracer(logger *slog.Logger) *queryTracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &queryTracer{logger: logger.With("component", "db")}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	trace := &queryTrace{
		query:     normalizeQuery(data.SQL),
		startedAt: time.Now(),
	}

	if sentry.SpanFromContext(ctx) != nil {
		span := sentry.StartSpan(
			ctx,
			"db.query",
			sentry.WithDescription(trace.query),
			sentry.WithSpanOrigin(sentry.SpanOriginManual),
		)
		span.SetData("db.system", "postgresql")
		if operation := queryOperation(trace.query); operation != "" {
			span.SetData("db.operation", operation)
		}
		trace.span = span
		ctx = span.Context()
	}

	return context.WithValue(ctx, queryTraceContextKey{}, trace)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	trace, _ := ctx.Value(queryTraceContextKey{}).(*queryTrace)
	if trace == nil {
		return
	}

	if elapsed := time.Since(trace.startedAt); elapsed >= slowQueryThreshold {
		t.logger.WarnContext(ctx, "slow query",
			"operation", queryOperation(trace.query),
			"duration_ms", elapsed.Milliseconds(),
			"query", trace.query,
		)
	}

	span := trace.span
	if span == nil {
		return
	}

	if data.Err != nil {
		span.Status = sentry.SpanStatusInternalError
		span.SetData("db.error", data.Err.Error())
	} else {
		span.Status = sentry.SpanStatusOK
	}

	if rowsAffected := data.CommandTag.RowsAffected(); rowsAffected >= 0 {
		span.SetData("db.rows_affected", rowsAffected)
	}

	span.Finish()
}

func normalizeQuery(query string) string {
	normalized := strings.Join(strings.Fields(query), " ")
	if normalized == "" {
		return "sql.query"
	}

	const maxLen = 512
	if len(normalized) > maxLen {
		return normalized[:maxLen]
	}
	return normalized
}

func queryOperation(query string) string {
	operation, _, _ := strings.Cut(query, " ")
	return strings.ToUpper(operation)
}
