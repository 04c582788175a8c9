package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/session"
)

type requestIDKey struct{}

var sentryTracing = sentryhttp.New(sentryhttp.Options{Repanic: true})

// statusRecorder remembers the status and size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusRecorder) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Tracing starts a Sentry transaction per request so service spans and
// outbound Stripe calls nest under it.
func (h *Handlers) Tracing(next http.Handler) http.Handler {
	return sentryTracing.Handle(next)
}

// RequestLogger tags the request with an id, puts a request logger on the
// context and records the outcome once the handler returns.
func (h *Handlers) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := routeLabel(r)
		requestID := incomingRequestID(r)
		w.Header().Set("X-Request-ID", requestID)

		logger := h.logger.With(
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_ip", clientIP(r),
		)
		if route != "" {
			logger = logger.With("route", route)
		}
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.Scope().SetTag("request_id", requestID)
		}

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		ctx = logging.WithLogger(ctx, logger)

		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		status := recorder.statusCode()
		elapsed := time.Since(start)
		h.observeRequest(ctx, r.Method, route, status, elapsed)

		level := slogLevelFor(route, status)
		logger.Log(ctx, level, "request completed",
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"bytes", recorder.bytes,
		)
	})
}

func (h *Handlers) observeRequest(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unknown"
	}
	meter := observability.MeterFromContext(ctx)
	attrs := sentry.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.String("http.status_class", fmt.Sprintf("%dxx", status/100)),
	)
	meter.Count("http.server.requests", 1, attrs)
	meter.Distribution("http.server.duration", float64(elapsed.Milliseconds()), sentry.WithUnit(sentry.UnitMillisecond), attrs)
	if status >= http.StatusInternalServerError {
		meter.Count("http.server.errors", 1, attrs)
	}
	h.metrics.ObserveHTTPRequest(method, route, strconv.Itoa(status), elapsed)
}

// Recover turns a handler panic into a 500 JSON response. The panic is
// reported to Sentry before the response is written.
func (h *Handlers) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}
			if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
				hub.RecoverWithContext(r.Context(), recovered)
			}
			h.loggerFromContext(r.Context()).Error("handler panicked",
				"panic", fmt.Sprint(recovered),
				"stack", string(debug.Stack()),
			)
			h.writeJSON(w, r, http.StatusInternalServerError, errorResponse{
				Error: "A serious error occurred. We have been notified.",
				Code:  "internal",
			})
		}()
		next.ServeHTTP(w, r)
	})
}

// MetricsContext puts a meter on the context that already carries the
// request's route and shopper.
func (h *Handlers) MetricsContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		attrs := []attribute.Builder{
			attribute.String("http.method", r.Method),
			attribute.String("network.client.ip", clientIP(r)),
		}
		if requestID, ok := ctx.Value(requestIDKey{}).(string); ok {
			attrs = append(attrs, attribute.String("http.request_id", requestID))
		}
		if route := routeLabel(r); route != "" {
			attrs = append(attrs, attribute.String("http.route", route))
		}
		if sess := session.GetSessionFromContext(ctx); sess != nil && sess.ShopperID != "" {
			attrs = append(attrs, attribute.String("user.id", sess.ShopperID))
		}

		meter := sentry.NewMeter(ctx).WithCtx(ctx)
		meter.SetAttributes(attrs...)
		next.ServeHTTP(w, r.WithContext(observability.WithMeter(ctx, meter)))
	})
}

// Probes log at debug so they do not drown out shopper traffic.
func slogLevelFor(route string, status int) slog.Level {
	switch {
	case route == "health" || route == "metrics":
		return slog.LevelDebug
	case status >= http.StatusInternalServerError:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func incomingRequestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Request-ID")); id != "" && len(id) <= 128 {
		return id
	}
	return uuid.NewString()
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func routeLabel(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	if name := route.GetName(); name != "" {
		return name
	}
	if template, err := route.GetPathTemplate(); err == nil {
		return template
	}
	return ""
}
