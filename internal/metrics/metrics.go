// Package metrics exposes Prometheus counters for the storefront.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns its registry so tests can build as many as they like.
type Recorder struct {
	registry            *prometheus.Registry
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	cartOperationsTotal *prometheus.CounterVec
	checkoutsTotal      *prometheus.CounterVec
	paymentsTotal       *prometheus.CounterVec
	paymentAmountCents  prometheus.Counter
	refundsTotal        *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storefront_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		cartOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_cart_operations_total",
				Help: "Cart mutations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		checkoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_checkouts_total",
				Help: "Checkout submissions by outcome",
			},
			[]string{"outcome"},
		),
		paymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_payments_total",
				Help: "Card payment attempts by outcome",
			},
			[]string{"outcome"},
		),
		paymentAmountCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_payment_amount_cents_total",
			Help: "Sum of successfully charged amounts in cents",
		}),
		refundsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_refunds_total",
				Help: "Refund requests and grants",
			},
			[]string{"action"},
		),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequestsTotal,
		r.httpRequestDuration,
		r.cartOperationsTotal,
		r.checkoutsTotal,
		r.paymentsTotal,
		r.paymentAmountCents,
		r.refundsTotal,
	)
	return r
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	r.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (r *Recorder) CartOperation(operation, outcome string) {
	if r == nil {
		return
	}
	r.cartOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

func (r *Recorder) Checkout(outcome string) {
	if r == nil {
		return
	}
	r.checkoutsTotal.WithLabelValues(outcome).Inc()
}

// Payment records a charge attempt; amountCents is only added for successes.
func (r *Recorder) Payment(outcome string, amountCents int64) {
	if r == nil {
		return
	}
	r.paymentsTotal.WithLabelValues(outcome).Inc()
	if outcome == "succeeded" && amountCents > 0 {
		r.paymentAmountCents.Add(float64(amountCents))
	}
}

func (r *Recorder) Refund(action string, count int64) {
	if r == nil || count <= 0 {
		return
	}
	r.refundsTotal.WithLabelValues(action).Add(float64(count))
}
