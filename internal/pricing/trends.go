package pricing

import "github.com/Veraticus/the-price-must-flow/internal/model"

// Trend cut-offs, in percentage points.
const (
	trendChangePct     = 5
	highVolatilityStd  = 15
	mediumVolatilitySD = 5
)

// Trends summarizes the recorded change percentages in history.
func Trends(history []model.PriceHistoryEntry) model.PriceTrend {
	trend := model.PriceTrend{
		Direction:  model.TrendStable,
		Volatility: model.VolatilityLow,
		DataPoints: len(history),
	}

	var changes []float64
	for _, h := range history {
		if h.ChangePercentage != nil && *h.ChangePercentage != 0 {
			changes = append(changes, *h.ChangePercentage)
		}
	}
	if len(changes) == 0 {
		return trend
	}

	avg, std := meanStd(changes)
	trend.AverageChange = round4(avg)
	trend.LastChange = changes[len(changes)-1]

	switch {
	case avg > trendChangePct:
		trend.Direction = model.TrendIncreasing
	case avg < -trendChangePct:
		trend.Direction = model.TrendDecreasing
	}

	switch {
	case std > highVolatilityStd:
		trend.Volatility = model.VolatilityHigh
	case std > mediumVolatilitySD:
		trend.Volatility = model.VolatilityMedium
	}
	return trend
}
