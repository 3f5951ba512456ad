package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-price-must-flow/internal/model"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()

	r.ObserveMatch(model.MatchResult{Strategy: model.StrategyStructured, Routing: model.RoutingAutoApprove}, 10*time.Millisecond)
	r.ObserveMatch(model.MatchResult{Strategy: model.StrategyStructured, Routing: model.RoutingAutoApprove}, 5*time.Millisecond)
	r.ObserveMatch(model.MatchResult{Strategy: model.StrategyNone, Routing: model.RoutingCreationQueue}, time.Millisecond)
	r.ObservePriceUpdate(model.UpdateStatusUpdated)
	r.ObservePriceUpdate(model.UpdateStatusSkipped)
	r.ObserveReview(1)
	r.ObserveAlert(model.AlertPriceAnomaly)
	r.ObserveFailure()
	r.ObserveInvoice(time.Second)

	assert.InDelta(t, 2, testutil.ToFloat64(r.Matches.WithLabelValues("structured", "auto_approve")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(r.Matches.WithLabelValues("none", "creation_queue")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(r.PriceUpdates.WithLabelValues("skipped")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(r.ReviewsQueued.WithLabelValues("1")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(r.Alerts.WithLabelValues("price_anomaly")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(r.ItemFailures), 1e-9)

	n, err := testutil.GatherAndCount(r.Gatherer(), "pricer_match_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRegistry_NilIsSafe(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.ObserveMatch(model.MatchResult{}, time.Second)
		r.ObservePriceUpdate(model.UpdateStatusFailed)
		r.ObserveReview(2)
		r.ObserveAlert(model.AlertRapidPriceChange)
		r.ObserveFailure()
		r.ObserveInvoice(time.Second)
	})
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.ObservePriceUpdate(model.UpdateStatusUpdated)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `pricer_price_updates_total{status="updated"} 1`)
}
