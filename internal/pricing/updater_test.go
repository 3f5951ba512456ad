package pricing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-price-must-flow/internal/common"
	"github.com/Veraticus/the-price-must-flow/internal/model"
	"github.com/Veraticus/the-price-must-flow/internal/service"
	"github.com/Veraticus/the-price-must-flow/internal/storage"
)

type fakePrices struct {
	appendErr error
	updateErr error
	products  map[string]*model.CostSnapshot
	history   map[string][]model.PriceHistoryEntry
	updates   int
	mu        sync.Mutex
}

func newFakePrices() *fakePrices {
	return &fakePrices{
		products: make(map[string]*model.CostSnapshot),
		history:  make(map[string][]model.PriceHistoryEntry),
	}
}

func (f *fakePrices) add(id string, c *float64) {
	f.products[id] = &model.CostSnapshot{ProductID: id, ProductName: "Product " + id, Cost: c, Currency: "USD"}
}

func (f *fakePrices) GetCurrentCost(_ context.Context, productID string) (*model.CostSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.products[productID]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *snap
	return &cp, nil
}

func (f *fakePrices) UpdateCost(_ context.Context, update model.CostUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	snap, ok := f.products[update.ProductID]
	if !ok {
		return common.ErrNotFound
	}
	if snap.Version != update.ExpectedVersion {
		return common.ErrVersionConflict
	}
	c := update.Cost
	snap.Cost = &c
	snap.Currency = update.Currency
	snap.Version++
	f.updates++
	return nil
}

func (f *fakePrices) AppendHistory(_ context.Context, entry *model.PriceHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.history[entry.ProductID] = append(f.history[entry.ProductID], *entry)
	return nil
}

func (f *fakePrices) GetHistory(_ context.Context, productID string, _ int) ([]model.PriceHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.PriceHistoryEntry(nil), f.history[productID]...), nil
}

type recordingSink struct {
	err    error
	alerts []model.Alert
	mu     sync.Mutex
}

func (s *recordingSink) Emit(_ context.Context, a model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return s.err
}

func newTestUpdater(t *testing.T, prices service.PriceRepository, sink service.AlertSink) *Updater {
	t.Helper()
	u, err := NewUpdater(prices, newTestValidator(t), sink, DefaultUpdaterConfig())
	require.NoError(t, err)
	return u
}

var testRef = model.InvoiceRef{InvoiceID: "inv-1", InvoiceNumber: "A-100", VendorID: "RAJA_FOODS", Actor: "pipeline"}

func TestApplyUpdate_FirstPrice(t *testing.T) {
	prices := newFakePrices()
	prices.add("p1", nil)
	sink := &recordingSink{}
	u := newTestUpdater(t, prices, sink)

	got, err := u.ApplyUpdate(context.Background(), "p1", 1.50, "USD", testRef)
	require.NoError(t, err)
	assert.Equal(t, model.UpdateStatusUpdated, got.Status)
	assert.Nil(t, got.OldCost)
	assert.Empty(t, sink.alerts)

	require.Len(t, prices.history["p1"], 1)
	entry := prices.history["p1"][0]
	assert.InDelta(t, 1.50, entry.NewCost, 1e-9)
	assert.Nil(t, entry.ChangePercentage)
	assert.Equal(t, "inv-1", entry.InvoiceID)
	assert.Equal(t, "RAJA_FOODS", entry.VendorID)
}

func TestApplyUpdate_Alerts(t *testing.T) {
	tests := []struct {
		name    string
		newCost float64
		alerts  int
	}{
		{"small change stays quiet", 1.05, 0},
		{"exactly ten percent stays quiet", 1.10, 0},
		{"significant change alerts", 1.20, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prices := newFakePrices()
			prices.add("p1", cost(1.00))
			sink := &recordingSink{}
			u := newTestUpdater(t, prices, sink)

			got, err := u.ApplyUpdate(context.Background(), "p1", tt.newCost, "USD", testRef)
			require.NoError(t, err)
			assert.Equal(t, model.UpdateStatusUpdated, got.Status)
			require.Len(t, sink.alerts, tt.alerts)
			if tt.alerts > 0 {
				a := sink.alerts[0]
				assert.Equal(t, model.AlertSignificantPriceChange, a.Type)
				assert.Equal(t, model.AlertPriorityMedium, a.Priority)
				assert.Equal(t, "p1", a.ProductID)
				assert.Equal(t, "inv-1", a.InvoiceID)
				assert.NotEmpty(t, a.ID)
				require.NotNil(t, got.Trend)
			}
		})
	}
}

func TestApplyUpdate_Rejected(t *testing.T) {
	prices := newFakePrices()
	prices.add("p1", cost(1.50))
	u := newTestUpdater(t, prices, &recordingSink{})

	got, err := u.ApplyUpdate(context.Background(), "p1", 2.40, "USD", testRef)
	require.NoError(t, err)
	assert.Equal(t, model.UpdateStatusSkipped, got.Status)
	assert.Contains(t, got.Reason, "60.0%")
	assert.Zero(t, prices.updates)
	assert.Empty(t, prices.history["p1"])
	assert.InDelta(t, 1.50, *prices.products["p1"].Cost, 1e-9)
}

func TestApplyUpdate_NoChange(t *testing.T) {
	prices := newFakePrices()
	prices.add("p1", cost(1.50))
	u := newTestUpdater(t, prices, &recordingSink{})

	got, err := u.ApplyUpdate(context.Background(), "p1", 1.50, "USD", testRef)
	require.NoError(t, err)
	assert.Equal(t, model.UpdateStatusSkipped, got.Status)
	assert.Equal(t, "No price change", got.Reason)
	assert.Zero(t, prices.updates)
}

func TestApplyUpdate_Failures(t *testing.T) {
	t.Run("missing product", func(t *testing.T) {
		u := newTestUpdater(t, newFakePrices(), &recordingSink{})
		got, err := u.ApplyUpdate(context.Background(), "nope", 1, "USD", testRef)
		assert.ErrorIs(t, err, common.ErrNotFound)
		assert.Equal(t, model.UpdateStatusFailed, got.Status)
	})

	t.Run("version conflict", func(t *testing.T) {
		prices := newFakePrices()
		prices.add("p1", cost(1))
		prices.updateErr = common.ErrVersionConflict
		u := newTestUpdater(t, prices, &recordingSink{})

		got, err := u.ApplyUpdate(context.Background(), "p1", 1.1, "USD", testRef)
		assert.ErrorIs(t, err, common.ErrVersionConflict)
		assert.Equal(t, model.UpdateStatusFailed, got.Status)
	})

	t.Run("history failure degrades audit", func(t *testing.T) {
		prices := newFakePrices()
		prices.add("p1", cost(1))
		prices.appendErr = errors.New("disk full")
		u := newTestUpdater(t, prices, &recordingSink{})

		got, err := u.ApplyUpdate(context.Background(), "p1", 1.05, "USD", testRef)
		require.NoError(t, err)
		assert.Equal(t, model.UpdateStatusUpdated, got.Status)
		assert.True(t, got.AuditDegraded)
		assert.InDelta(t, 1.05, *prices.products["p1"].Cost, 1e-9)
	})

	t.Run("alert failure is ignored", func(t *testing.T) {
		prices := newFakePrices()
		prices.add("p1", cost(1))
		sink := &recordingSink{err: errors.New("broker down")}
		u := newTestUpdater(t, prices, sink)

		got, err := u.ApplyUpdate(context.Background(), "p1", 1.3, "USD", testRef)
		require.NoError(t, err)
		assert.Equal(t, model.UpdateStatusUpdated, got.Status)
		assert.Len(t, sink.alerts, 1)
	})
}

func TestApplyUpdate_RapidChangeAlert(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	prices := newFakePrices()
	prices.add("p1", cost(1))
	for i := 1; i <= 3; i++ {
		prices.history["p1"] = append(prices.history["p1"], model.PriceHistoryEntry{
			ProductID: "p1",
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
			NewCost:   1,
			Currency:  "USD",
		})
	}
	sink := &recordingSink{}
	u := newTestUpdater(t, prices, sink)
	u.now = func() time.Time { return now }

	got, err := u.ApplyUpdate(context.Background(), "p1", 1.02, "USD", testRef)
	require.NoError(t, err)
	assert.Equal(t, model.UpdateStatusUpdated, got.Status)
	assert.NotEmpty(t, got.Warning)
	require.Len(t, sink.alerts, 1)
	assert.Equal(t, model.AlertRapidPriceChange, sink.alerts[0].Type)
}

func TestApplyBulk_OnlyAutoApproved(t *testing.T) {
	prices := newFakePrices()
	prices.add("p1", nil)
	prices.add("p2", cost(5))
	u := newTestUpdater(t, prices, &recordingSink{})

	items := []model.MatchedLineItem{
		{
			Item:     model.LineItem{LineNumber: 1, ProductName: "DEEP CASHEW WHOLE 7OZ (20)", UnitPrice: 30, UnitsPerPack: 20},
			Match:    model.MatchResult{Matched: true, ProductID: "p1", Routing: model.RoutingAutoApprove, Confidence: 1},
			Currency: "USD",
		},
		{
			Item:     model.LineItem{LineNumber: 2, ProductName: "SOMETHING", UnitPrice: 9},
			Match:    model.MatchResult{Matched: true, ProductID: "p2", Routing: model.RoutingReviewPriority2, Confidence: 0.8},
			Currency: "USD",
		},
	}

	bulk := u.ApplyBulk(context.Background(), testRef, items, ModeStrict)
	assert.Equal(t, 1, bulk.Updated)
	assert.Equal(t, 1, bulk.Ignored)
	assert.Zero(t, bulk.Failed)
	require.Len(t, bulk.Results, 1)
	assert.Equal(t, 1, bulk.Results[0].LineNumber)
	assert.InDelta(t, 1.50, *prices.products["p1"].Cost, 1e-9)
	assert.InDelta(t, 5.0, *prices.products["p2"].Cost, 1e-9)
}

func TestApplyBackfill_Modes(t *testing.T) {
	rows := []BackfillRow{{ProductID: "p1", Cost: 1.80}}

	prices := newFakePrices()
	prices.add("p1", cost(1))
	u := newTestUpdater(t, prices, &recordingSink{})

	strict := u.ApplyBackfill(context.Background(), testRef, rows, ModeStrict)
	assert.Equal(t, 1, strict.Skipped)

	relaxed := u.ApplyBackfill(context.Background(), testRef, rows, ModeRelaxed)
	assert.Equal(t, 1, relaxed.Updated)
	require.Len(t, prices.history["p1"], 1)
	assert.Equal(t, "backfill (relaxed)", prices.history["p1"][0].Reason)
}

func TestApplyUpdate_SQLite(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	product := &model.Product{Name: "DEEP CASHEW WHOLE 7OZ", Brand: "DEEP", Currency: "USD"}
	require.NoError(t, store.CreateProduct(ctx, product))

	u := newTestUpdater(t, store, nil)

	got, err := u.ApplyUpdate(ctx, product.ID, 1.50, "USD", testRef)
	require.NoError(t, err)
	assert.Equal(t, model.UpdateStatusUpdated, got.Status)

	got, err = u.ApplyUpdate(ctx, product.ID, 2.40, "USD", testRef)
	require.NoError(t, err)
	assert.Equal(t, model.UpdateStatusSkipped, got.Status)

	snap, err := store.GetCurrentCost(ctx, product.ID)
	require.NoError(t, err)
	require.NotNil(t, snap.Cost)
	assert.InDelta(t, 1.50, *snap.Cost, 1e-9)
	assert.Equal(t, int64(1), snap.Version)

	history, err := store.GetHistory(ctx, product.ID, 30)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
