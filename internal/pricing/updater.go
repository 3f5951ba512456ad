package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/the-price-must-flow/internal/common"
	"github.com/Veraticus/the-price-must-flow/internal/model"
	"github.com/Veraticus/the-price-must-flow/internal/service"
)

// UpdaterConfig controls alerting and how much history feeds validation.
type UpdaterConfig struct {
	DefaultCurrency   string  `mapstructure:"default_currency"`
	AlertThresholdPct float64 `mapstructure:"alert_threshold_pct"`
	HistoryDays       int     `mapstructure:"history_days"`
}

// DefaultUpdaterConfig returns the standard updater settings.
func DefaultUpdaterConfig() UpdaterConfig {
	return UpdaterConfig{
		DefaultCurrency:   "USD",
		AlertThresholdPct: 10,
		HistoryDays:       30,
	}
}

// Updater validates and writes product costs.
type Updater struct {
	prices    service.PriceRepository
	alerts    service.AlertSink
	validator *Validator
	now       func() time.Time
	cfg       UpdaterConfig
}

// NewUpdater creates an updater. alerts may be nil.
func NewUpdater(prices service.PriceRepository, validator *Validator, alerts service.AlertSink, cfg UpdaterConfig) (*Updater, error) {
	if prices == nil {
		return nil, fmt.Errorf("%w: price repository", common.ErrMissingConfig)
	}
	if validator == nil {
		return nil, fmt.Errorf("%w: validator", common.ErrMissingConfig)
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = DefaultUpdaterConfig().HistoryDays
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = DefaultUpdaterConfig().DefaultCurrency
	}
	return &Updater{
		prices:    prices,
		alerts:    alerts,
		validator: validator,
		now:       time.Now,
		cfg:       cfg,
	}, nil
}

// ApplyUpdate validates newCost for productID in strict mode and writes it.
// A rejected cost is a skipped result, not an error. Infrastructure failures
// return a failed result together with the error.
func (u *Updater) ApplyUpdate(ctx context.Context, productID string, newCost float64, currency string, ref model.InvoiceRef) (model.PriceUpdateResult, error) {
	return u.apply(ctx, u.validator, productID, newCost, currency, ref, "")
}

func (u *Updater) apply(ctx context.Context, validator *Validator, productID string, newCost float64, currency string, ref model.InvoiceRef, reason string) (model.PriceUpdateResult, error) {
	result := model.PriceUpdateResult{
		ProductID: productID,
		NewCost:   newCost,
		Currency:  currency,
	}
	fail := func(err error) (model.PriceUpdateResult, error) {
		result.Status = model.UpdateStatusFailed
		result.Reason = err.Error()
		return result, err
	}

	snap, err := u.prices.GetCurrentCost(ctx, productID)
	if err != nil {
		return fail(fmt.Errorf("failed to read current cost: %w", err))
	}
	result.OldCost = snap.Cost
	if result.Currency == "" {
		result.Currency = snap.Currency
	}
	if result.Currency == "" {
		result.Currency = u.cfg.DefaultCurrency
	}
	result.Currency = strings.ToUpper(result.Currency)

	history, err := u.prices.GetHistory(ctx, productID, u.cfg.HistoryDays)
	if err != nil {
		return fail(fmt.Errorf("failed to read price history: %w", err))
	}

	verdict := validator.Validate(ValidationInput{
		OldCost:  snap.Cost,
		NewCost:  newCost,
		Currency: result.Currency,
		History:  history,
		AsOf:     u.now(),
	})
	result.ChecksPassed = verdict.ChecksPassed
	result.ChecksFailed = verdict.ChecksFailed
	result.ChangePercentage = verdict.ChangePercentage
	result.Warning = verdict.Warning
	result.Anomaly = verdict.Anomaly
	result.Reason = verdict.Reason

	if !verdict.Accepted {
		result.Status = model.UpdateStatusSkipped
		slog.Info("Price change rejected",
			"product_id", productID,
			"new_cost", newCost,
			"reason", verdict.Reason)
		return result, nil
	}
	if verdict.NoOp {
		result.Status = model.UpdateStatusSkipped
		return result, nil
	}

	err = u.prices.UpdateCost(ctx, model.CostUpdate{
		Ref:             ref,
		ProductID:       productID,
		Currency:        result.Currency,
		Cost:            newCost,
		ExpectedVersion: snap.Version,
	})
	if err != nil {
		if errors.Is(err, common.ErrVersionConflict) {
			slog.Warn("Product cost changed concurrently", "product_id", productID)
		}
		return fail(fmt.Errorf("failed to write cost: %w", err))
	}
	result.Status = model.UpdateStatusUpdated

	entry := &model.PriceHistoryEntry{
		ProductID:     productID,
		OldCost:       snap.Cost,
		NewCost:       newCost,
		Currency:      result.Currency,
		InvoiceID:     ref.InvoiceID,
		InvoiceNumber: ref.InvoiceNumber,
		VendorID:      ref.VendorID,
		Actor:         ref.Actor,
		Reason:        reason,
	}
	if !verdict.FirstPrice {
		change := verdict.ChangePercentage
		entry.ChangePercentage = &change
	}
	if err := u.prices.AppendHistory(ctx, entry); err != nil {
		result.AuditDegraded = true
		slog.Warn("Cost updated but price history was not recorded",
			"product_id", productID,
			"new_cost", newCost,
			"error", err)
	} else {
		history = append(history, *entry)
	}

	if math.Abs(verdict.ChangePercentage) > u.cfg.AlertThresholdPct {
		trend := Trends(history)
		result.Trend = &trend
		u.emit(ctx, u.newAlert(model.AlertSignificantPriceChange, model.AlertPriorityMedium, ref, snap, result,
			fmt.Sprintf("Price of %s changed %.1f%%", snap.ProductName, verdict.ChangePercentage)))
	}
	if verdict.RapidChange {
		u.emit(ctx, u.newAlert(model.AlertRapidPriceChange, model.AlertPriorityMedium, ref, snap, result, verdict.Warning))
	}
	if verdict.Anomaly {
		u.emit(ctx, u.newAlert(model.AlertPriceAnomaly, model.AlertPriorityHigh, ref, snap, result, verdict.AnomalyWarning))
	}

	slog.Info("Updated product cost",
		"product_id", productID,
		"old_cost", costValue(snap.Cost),
		"new_cost", newCost,
		"currency", result.Currency,
		"change_pct", verdict.ChangePercentage)
	return result, nil
}

// ApplyBulk applies the auto-approved lines of an invoice in order using the
// limits of mode. Lines routed anywhere else are counted as ignored.
func (u *Updater) ApplyBulk(ctx context.Context, ref model.InvoiceRef, items []model.MatchedLineItem, mode Mode) model.BulkResult {
	validator := u.validator.WithMode(mode)

	var bulk model.BulkResult
	for _, item := range items {
		if item.Match.Routing != model.RoutingAutoApprove || item.Match.ProductID == "" {
			bulk.Ignored++
			continue
		}
		if ctx.Err() != nil {
			bulk.Add(model.PriceUpdateResult{
				ProductID:  item.Match.ProductID,
				LineNumber: item.Item.LineNumber,
				Status:     model.UpdateStatusFailed,
				Reason:     ctx.Err().Error(),
			})
			continue
		}

		result, err := u.apply(ctx, validator, item.Match.ProductID, item.Item.UnitCost(), item.Currency, ref, "")
		if err != nil {
			slog.Error("Failed to apply price", "product_id", item.Match.ProductID, "error", err)
		}
		result.LineNumber = item.Item.LineNumber
		bulk.Add(result)
	}
	return bulk
}

// BackfillRow is one operator-supplied cost.
type BackfillRow struct {
	ProductID string  `json:"product_id" yaml:"product_id"`
	Currency  string  `json:"currency,omitempty" yaml:"currency,omitempty"`
	Reason    string  `json:"reason,omitempty" yaml:"reason,omitempty"`
	Cost      float64 `json:"cost" yaml:"cost"`
}

// ApplyBackfill applies operator-supplied costs with the limits of mode.
func (u *Updater) ApplyBackfill(ctx context.Context, ref model.InvoiceRef, rows []BackfillRow, mode Mode) model.BulkResult {
	validator := u.validator.WithMode(mode)

	var bulk model.BulkResult
	for i, row := range rows {
		reason := row.Reason
		if reason == "" {
			reason = fmt.Sprintf("backfill (%s)", validator.Mode())
		}
		result, err := u.apply(ctx, validator, row.ProductID, row.Cost, row.Currency, ref, reason)
		if err != nil {
			slog.Error("Failed to backfill price", "product_id", row.ProductID, "error", err)
		}
		result.LineNumber = i + 1
		bulk.Add(result)
	}
	return bulk
}

func (u *Updater) newAlert(kind model.AlertType, priority model.AlertPriority, ref model.InvoiceRef, snap *model.CostSnapshot, result model.PriceUpdateResult, message string) model.Alert {
	data := map[string]any{
		"old_cost":          costValue(snap.Cost),
		"new_cost":          result.NewCost,
		"currency":          result.Currency,
		"change_percentage": result.ChangePercentage,
	}
	if result.Trend != nil {
		data["trend"] = string(result.Trend.Direction)
		data["volatility"] = string(result.Trend.Volatility)
	}
	return model.Alert{
		ID:        uuid.NewString(),
		CreatedAt: u.now().UTC(),
		ProductID: snap.ProductID,
		InvoiceID: ref.InvoiceID,
		Type:      kind,
		Priority:  priority,
		Status:    model.AlertPending,
		Message:   message,
		Data:      data,
	}
}

// emit is best effort; a failing sink never fails the update.
func (u *Updater) emit(ctx context.Context, alert model.Alert) {
	if u.alerts == nil {
		return
	}
	if err := u.alerts.Emit(ctx, alert); err != nil {
		slog.Warn("Failed to emit alert",
			"type", alert.Type,
			"product_id", alert.ProductID,
			"error", err)
	}
}

func costValue(c *float64) any {
	if c == nil {
		return nil
	}
	return *c
}
