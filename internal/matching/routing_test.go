package matching

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/the-price-must-flow/internal/common"
	"github.com/Veraticus/the-price-must-flow/internal/model"
)

func TestRoute(t *testing.T) {
	thresholds := DefaultRoutingThresholds()

	tests := []struct {
		confidence float64
		want       model.Routing
	}{
		{1.0, model.RoutingAutoApprove},
		{0.90, model.RoutingAutoApprove},
		{0.8999, model.RoutingReviewPriority2},
		{0.75, model.RoutingReviewPriority2},
		{0.74, model.RoutingReviewPriority1},
		{0.60, model.RoutingReviewPriority1},
		{0.59, model.RoutingCreationQueue},
		{0, model.RoutingCreationQueue},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, thresholds.Route(tt.confidence), "confidence %.4f", tt.confidence)
	}
}

func TestRoute_Monotonic(t *testing.T) {
	thresholds := DefaultRoutingThresholds()
	rank := map[model.Routing]int{
		model.RoutingCreationQueue:   0,
		model.RoutingReviewPriority1: 1,
		model.RoutingReviewPriority2: 2,
		model.RoutingAutoApprove:     3,
	}

	prev := -1
	for i := 0; i <= 1000; i++ {
		r := rank[thresholds.Route(float64(i)/1000)]
		assert.GreaterOrEqual(t, r, prev)
		prev = r
	}
}

func TestRoute_MonotonicAcrossThresholds(t *testing.T) {
	rank := map[model.Routing]int{
		model.RoutingCreationQueue:   0,
		model.RoutingReviewPriority1: 1,
		model.RoutingReviewPriority2: 2,
		model.RoutingAutoApprove:     3,
	}
	rng := rand.New(rand.NewPCG(42, 7))

	for n := 0; n < 200; n++ {
		bands := []float64{rng.Float64(), rng.Float64(), rng.Float64()}
		sort.Sort(sort.Reverse(sort.Float64Slice(bands)))
		thresholds := RoutingThresholds{AutoApprove: bands[0], ReviewPriority2: bands[1], ReviewPriority1: bands[2]}
		if thresholds.Validate() != nil {
			continue
		}

		confidences := make([]float64, 100)
		for i := range confidences {
			confidences[i] = rng.Float64()
		}
		confidences = append(confidences, 0, 1, bands[0], bands[1], bands[2])
		sort.Float64s(confidences)

		prev := -1
		for _, c := range confidences {
			routing := thresholds.Route(c)
			r := rank[routing]
			assert.GreaterOrEqual(t, r, prev, "thresholds %+v confidence %.4f", thresholds, c)
			prev = r

			switch routing {
			case model.RoutingAutoApprove:
				assert.GreaterOrEqual(t, c, thresholds.AutoApprove)
			case model.RoutingReviewPriority2:
				assert.GreaterOrEqual(t, c, thresholds.ReviewPriority2)
				assert.Less(t, c, thresholds.AutoApprove)
			case model.RoutingReviewPriority1:
				assert.GreaterOrEqual(t, c, thresholds.ReviewPriority1)
				assert.Less(t, c, thresholds.ReviewPriority2)
			default:
				assert.Less(t, c, thresholds.ReviewPriority1)
			}
		}
	}
}

func TestRoutingThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultRoutingThresholds().Validate())

	bad := []RoutingThresholds{
		{AutoApprove: 0.7, ReviewPriority2: 0.75, ReviewPriority1: 0.6},
		{AutoApprove: 0.9, ReviewPriority2: 0.6, ReviewPriority1: 0.6},
		{AutoApprove: 1.2, ReviewPriority2: 0.75, ReviewPriority1: 0.6},
		{AutoApprove: 0.9, ReviewPriority2: 0.75, ReviewPriority1: -0.1},
	}
	for _, b := range bad {
		assert.ErrorIs(t, b.Validate(), common.ErrInvalidConfig)
	}
}
