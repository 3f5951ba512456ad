package matching

import (
	"fmt"

	"github.com/Veraticus/the-price-must-flow/internal/common"
	"github.com/Veraticus/the-price-must-flow/internal/model"
)

// RoutingThresholds map a confidence to a routing decision.
type RoutingThresholds struct {
	AutoApprove     float64 `mapstructure:"auto_approve"`
	ReviewPriority2 float64 `mapstructure:"review_priority_2"`
	ReviewPriority1 float64 `mapstructure:"review_priority_1"`
}

// DefaultRoutingThresholds returns the standard routing bands.
func DefaultRoutingThresholds() RoutingThresholds {
	return RoutingThresholds{
		AutoApprove:     0.90,
		ReviewPriority2: 0.75,
		ReviewPriority1: 0.60,
	}
}

// Validate checks the bands are in [0,1] and strictly descending.
func (t RoutingThresholds) Validate() error {
	for _, v := range []float64{t.AutoApprove, t.ReviewPriority2, t.ReviewPriority1} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: routing threshold %.2f outside [0,1]", common.ErrInvalidConfig, v)
		}
	}
	if !(t.AutoApprove > t.ReviewPriority2 && t.ReviewPriority2 > t.ReviewPriority1) {
		return fmt.Errorf("%w: routing thresholds must descend (%.2f > %.2f > %.2f)",
			common.ErrInvalidConfig, t.AutoApprove, t.ReviewPriority2, t.ReviewPriority1)
	}
	return nil
}

// Route returns the routing for confidence. Higher confidence never routes
// to a less trusted queue.
func (t RoutingThresholds) Route(confidence float64) model.Routing {
	switch {
	case confidence >= t.AutoApprove:
		return model.RoutingAutoApprove
	case confidence >= t.ReviewPriority2:
		return model.RoutingReviewPriority2
	case confidence >= t.ReviewPriority1:
		return model.RoutingReviewPriority1
	default:
		return model.RoutingCreationQueue
	}
}
