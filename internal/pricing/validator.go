// Package pricing validates and applies product cost changes.
package pricing

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Veraticus/the-price-must-flow/internal/common"
	"github.com/Veraticus/the-price-must-flow/internal/model"
)

// Check names recorded in validation results.
const (
	CheckBounds           = "bounds_check"
	CheckFirstTimePrice   = "first_time_price"
	CheckNoChange         = "no_change"
	CheckPercentageChange = "percentage_change"
	CheckRapidChange      = "rapid_change"
	CheckAnomaly          = "price_anomaly"
)

// noChangeEpsilon is the smallest cost difference treated as a change.
const noChangeEpsilon = 0.001

// Mode selects how strictly percentage limits are applied.
type Mode string

// Validation modes. Relaxed and force exist for operator backfills only.
const (
	ModeStrict  Mode = "strict"
	ModeRelaxed Mode = "relaxed"
	ModeForce   Mode = "force"
)

// ParseMode converts a flag value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStrict:
		return ModeStrict, nil
	case ModeRelaxed:
		return ModeRelaxed, nil
	case ModeForce:
		return ModeForce, nil
	default:
		return "", fmt.Errorf("%w: unknown validation mode %q", common.ErrInvalidConfig, s)
	}
}

// Bounds is an inclusive cost range.
type Bounds struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// ValidatorConfig holds the validation rules.
type ValidatorConfig struct {
	CurrencyBounds       map[string]Bounds `mapstructure:"currency_bounds"`
	DefaultBounds        Bounds            `mapstructure:"default_bounds"`
	MaxIncreasePct       float64           `mapstructure:"max_increase_pct"`
	MaxDecreasePct       float64           `mapstructure:"max_decrease_pct"`
	RapidChangeWindow    time.Duration     `mapstructure:"rapid_change_window"`
	RapidChangeThreshold int               `mapstructure:"rapid_change_threshold"`
	AnomalyMinChangePct  float64           `mapstructure:"anomaly_min_change_pct"`
	AnomalyMinPoints     int               `mapstructure:"anomaly_min_points"`
	AnomalyWindow        int               `mapstructure:"anomaly_window"`
	AnomalySigma         float64           `mapstructure:"anomaly_sigma"`
}

// DefaultValidatorConfig returns the standard rules.
func DefaultValidatorConfig() ValidatorConfig {
	standard := Bounds{Min: 0.01, Max: 10000}
	return ValidatorConfig{
		CurrencyBounds: map[string]Bounds{
			"USD": standard,
			"EUR": standard,
			"GBP": standard,
			"CAD": standard,
			"AUD": standard,
			"INR": {Min: 0.01, Max: 100000},
			"JPY": {Min: 1, Max: 1000000},
		},
		DefaultBounds:        standard,
		MaxIncreasePct:       50,
		MaxDecreasePct:       30,
		RapidChangeWindow:    24 * time.Hour,
		RapidChangeThreshold: 3,
		AnomalyMinChangePct:  20,
		AnomalyMinPoints:     3,
		AnomalyWindow:        10,
		AnomalySigma:         2,
	}
}

// Validate checks the rules are usable.
func (c ValidatorConfig) Validate() error {
	if c.MaxIncreasePct <= 0 || c.MaxDecreasePct <= 0 || c.MaxDecreasePct >= 100 {
		return fmt.Errorf("%w: change limits must be positive and decrease below 100%%", common.ErrInvalidConfig)
	}
	if c.DefaultBounds.Min <= 0 || c.DefaultBounds.Max <= c.DefaultBounds.Min {
		return fmt.Errorf("%w: default cost bounds [%.2f, %.2f]", common.ErrInvalidConfig, c.DefaultBounds.Min, c.DefaultBounds.Max)
	}
	for currency, b := range c.CurrencyBounds {
		if b.Min <= 0 || b.Max <= b.Min {
			return fmt.Errorf("%w: cost bounds for %s [%.2f, %.2f]", common.ErrInvalidConfig, currency, b.Min, b.Max)
		}
	}
	return nil
}

// ValidationInput is everything a validation looks at. History is ordered
// oldest first.
type ValidationInput struct {
	AsOf     time.Time
	OldCost  *float64
	Currency string
	History  []model.PriceHistoryEntry
	NewCost  float64
}

// ValidationResult is the verdict for one proposed cost.
type ValidationResult struct {
	Reason           string
	Warning          string
	AnomalyWarning   string
	ChecksPassed     []string
	ChecksFailed     []string
	ChangePercentage float64
	Accepted         bool
	FirstPrice       bool
	NoOp             bool
	RapidChange      bool
	Anomaly          bool
}

// Validator applies cost rules. It performs no I/O and never changes after
// construction.
type Validator struct {
	cfg  ValidatorConfig
	mode Mode
}

// NewValidator creates a strict validator.
func NewValidator(cfg ValidatorConfig) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Validator{cfg: cfg, mode: ModeStrict}, nil
}

// Mode returns the validator's mode.
func (v *Validator) Mode() Mode {
	return v.mode
}

// WithMode returns a copy of v using the limits of mode.
func (v *Validator) WithMode(mode Mode) *Validator {
	cp := &Validator{cfg: v.cfg, mode: mode}
	switch mode {
	case ModeRelaxed:
		cp.cfg.MaxIncreasePct, cp.cfg.MaxDecreasePct = 100, 50
	case ModeForce:
		cp.cfg.MaxIncreasePct, cp.cfg.MaxDecreasePct = 999, 99
	default:
		cp.mode = ModeStrict
	}
	return cp
}

// Limits returns the active maximum increase and decrease percentages.
func (v *Validator) Limits() (increase, decrease float64) {
	return v.cfg.MaxIncreasePct, v.cfg.MaxDecreasePct
}

// Bounds returns the cost range for currency.
func (v *Validator) Bounds(currency string) Bounds {
	if b, ok := v.cfg.CurrencyBounds[strings.ToUpper(currency)]; ok {
		return b
	}
	return v.cfg.DefaultBounds
}

// Validate runs the checks in order. Bounds and percentage limits reject;
// rapid change and anomaly only annotate.
func (v *Validator) Validate(in ValidationInput) ValidationResult {
	var res ValidationResult

	bounds := v.Bounds(in.Currency)
	if in.NewCost < bounds.Min || in.NewCost > bounds.Max || math.IsNaN(in.NewCost) {
		res.ChecksFailed = append(res.ChecksFailed, CheckBounds)
		if in.NewCost < bounds.Min {
			res.Reason = fmt.Sprintf("Cost %.2f below minimum %.2f %s", in.NewCost, bounds.Min, in.Currency)
		} else {
			res.Reason = fmt.Sprintf("Cost %.2f above maximum %.2f %s", in.NewCost, bounds.Max, in.Currency)
		}
		return res
	}
	res.ChecksPassed = append(res.ChecksPassed, CheckBounds)

	if in.OldCost == nil || *in.OldCost == 0 {
		res.ChecksPassed = append(res.ChecksPassed, CheckFirstTimePrice)
		res.Accepted = true
		res.FirstPrice = true
		res.Reason = "First price entry accepted"
		return res
	}
	oldCost := *in.OldCost

	if math.Abs(in.NewCost-oldCost) < noChangeEpsilon {
		res.ChecksPassed = append(res.ChecksPassed, CheckNoChange)
		res.Accepted = true
		res.NoOp = true
		res.Reason = "No price change"
		return res
	}

	change := round4((in.NewCost/oldCost - 1) * 100)
	res.ChangePercentage = change
	switch {
	case change > v.cfg.MaxIncreasePct:
		res.ChecksFailed = append(res.ChecksFailed, CheckPercentageChange)
		res.Reason = fmt.Sprintf("Price increase of %.1f%% exceeds maximum allowed %.0f%%", change, v.cfg.MaxIncreasePct)
		return res
	case change < -v.cfg.MaxDecreasePct:
		res.ChecksFailed = append(res.ChecksFailed, CheckPercentageChange)
		res.Reason = fmt.Sprintf("Price decrease of %.1f%% exceeds maximum allowed %.0f%%", math.Abs(change), v.cfg.MaxDecreasePct)
		return res
	}
	res.ChecksPassed = append(res.ChecksPassed, CheckPercentageChange)

	if len(in.History) > 0 {
		if n := v.recentChanges(in.History, in.AsOf); n >= v.cfg.RapidChangeThreshold {
			res.ChecksFailed = append(res.ChecksFailed, CheckRapidChange)
			res.RapidChange = true
			res.Warning = fmt.Sprintf("Rapid price changes detected: %d changes in last %s", n, v.cfg.RapidChangeWindow)
		} else {
			res.ChecksPassed = append(res.ChecksPassed, CheckRapidChange)
		}
	}

	if math.Abs(change) > v.cfg.AnomalyMinChangePct {
		if msg := v.anomaly(in.NewCost, in.Currency, in.History); msg != "" {
			res.Anomaly = true
			res.AnomalyWarning = msg
		}
	}

	res.Accepted = true
	res.Reason = fmt.Sprintf("Price change of %.1f%% validated", change)
	return res
}

func (v *Validator) recentChanges(history []model.PriceHistoryEntry, asOf time.Time) int {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	windowStart := asOf.Add(-v.cfg.RapidChangeWindow)

	n := 0
	for _, h := range history {
		if h.CreatedAt.After(windowStart) {
			n++
		}
	}
	return n
}

func (v *Validator) anomaly(newCost float64, currency string, history []model.PriceHistoryEntry) string {
	recent := history
	if len(recent) > v.cfg.AnomalyWindow {
		recent = recent[len(recent)-v.cfg.AnomalyWindow:]
	}

	var costs []float64
	for _, h := range recent {
		if strings.EqualFold(h.Currency, currency) && h.NewCost != 0 {
			costs = append(costs, h.NewCost)
		}
	}
	if len(costs) < v.cfg.AnomalyMinPoints {
		return ""
	}

	mean, std := meanStd(costs)
	if std > 0 && math.Abs(newCost-mean) > v.cfg.AnomalySigma*std {
		return fmt.Sprintf("Price %.2f %s is significantly different from recent average %.2f %s", newCost, currency, mean, currency)
	}
	return ""
}

// meanStd returns the mean and population standard deviation of xs.
func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(variance / float64(len(xs)))
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}
