// Package metrics exposes pipeline counters for Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Veraticus/the-price-must-flow/internal/model"
)

// Registry holds the pipeline metrics. A nil *Registry records nothing.
type Registry struct {
	reg             *prometheus.Registry
	Matches         *prometheus.CounterVec
	PriceUpdates    *prometheus.CounterVec
	ReviewsQueued   *prometheus.CounterVec
	Alerts          *prometheus.CounterVec
	ItemFailures    prometheus.Counter
	MatchLatency    prometheus.Histogram
	InvoiceDuration prometheus.Histogram
}

// NewRegistry creates a registry with every pipeline metric registered.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	matches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pricer_matches_total",
		Help: "Line items matched, by strategy and routing.",
	}, []string{"strategy", "routing"})
	updates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pricer_price_updates_total",
		Help: "Price applications, by outcome.",
	}, []string{"status"})
	reviews := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pricer_reviews_enqueued_total",
		Help: "Line items sent to human review, by priority.",
	}, []string{"priority"})
	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pricer_alerts_total",
		Help: "Alerts emitted, by type.",
	}, []string{"type"})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pricer_item_failures_total",
		Help: "Line items that failed to process.",
	})
	matchLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricer_match_latency_seconds",
		Buckets: prometheus.DefBuckets,
	})
	invoiceDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricer_invoice_duration_seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	r.MustRegister(matches, updates, reviews, alerts, failures, matchLatency, invoiceDuration)
	return &Registry{
		reg:             r,
		Matches:         matches,
		PriceUpdates:    updates,
		ReviewsQueued:   reviews,
		Alerts:          alerts,
		ItemFailures:    failures,
		MatchLatency:    matchLatency,
		InvoiceDuration: invoiceDuration,
	}
}

// ObserveMatch records one match result and how long it took.
func (r *Registry) ObserveMatch(result model.MatchResult, took time.Duration) {
	if r == nil {
		return
	}
	r.Matches.WithLabelValues(string(result.Strategy), string(result.Routing)).Inc()
	r.MatchLatency.Observe(took.Seconds())
}

// ObservePriceUpdate records a price application outcome.
func (r *Registry) ObservePriceUpdate(status model.UpdateStatus) {
	if r == nil {
		return
	}
	r.PriceUpdates.WithLabelValues(string(status)).Inc()
}

// ObserveReview records an enqueued review item.
func (r *Registry) ObserveReview(priority int) {
	if r == nil {
		return
	}
	r.ReviewsQueued.WithLabelValues(strconv.Itoa(priority)).Inc()
}

// ObserveAlert records an emitted alert.
func (r *Registry) ObserveAlert(kind model.AlertType) {
	if r == nil {
		return
	}
	r.Alerts.WithLabelValues(string(kind)).Inc()
}

// ObserveFailure records a failed line item.
func (r *Registry) ObserveFailure() {
	if r == nil {
		return
	}
	r.ItemFailures.Inc()
}

// ObserveInvoice records the time taken to process an invoice.
func (r *Registry) ObserveInvoice(took time.Duration) {
	if r == nil {
		return
	}
	r.InvoiceDuration.Observe(took.Seconds())
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the metrics in the Prometheus text format.
func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
