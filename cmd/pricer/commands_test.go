package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-price-must-flow/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func useTempConfig(t *testing.T) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	dbPath := filepath.Join(t.TempDir(), "pricer.db")
	viper.Set("database.path", dbPath)
	viper.Set("alerts.log", false)
	return dbPath
}

func TestReadInvoice(t *testing.T) {
	path := writeFile(t, "inv.json", `{
		"ref": {"vendor_id": "RAJA_FOODS"},
		"currency": "USD",
		"items": [
			{"product_name": "DEEP CASHEW WHOLE 7OZ (20)", "quantity": 1, "unit_price": 30, "units_per_pack": 20},
			{"product_name": "MTR RAVA IDLI MIX 500G", "quantity": 4, "unit_price": 3.49}
		]
	}`)

	inv, err := readInvoice(path)
	require.NoError(t, err)
	assert.Equal(t, path, inv.Ref.InvoiceID)
	require.Len(t, inv.Items, 2)
	assert.Equal(t, 1, inv.Items[0].LineNumber)
	assert.Equal(t, 2, inv.Items[1].LineNumber)
	assert.InDelta(t, 1.50, inv.Items[0].UnitCost(), 1e-9)
}

func TestReadInvoice_Errors(t *testing.T) {
	_, err := readInvoice(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	_, err = readInvoice(writeFile(t, "bad.json", `{not json`))
	assert.ErrorContains(t, err, "invalid invoice JSON")

	_, err = readInvoice(writeFile(t, "empty.json", `{"items": []}`))
	assert.ErrorContains(t, err, "no items")
}

func TestReadBackfill(t *testing.T) {
	yamlRows, err := readBackfill(writeFile(t, "rows.yaml", `
- product_id: p1
  cost: 2.5
  currency: USD
  reason: supplier correction
- product_id: p2
  cost: 9
`))
	require.NoError(t, err)
	require.Len(t, yamlRows, 2)
	assert.Equal(t, "p1", yamlRows[0].ProductID)
	assert.InDelta(t, 2.5, yamlRows[0].Cost, 1e-9)
	assert.Equal(t, "supplier correction", yamlRows[0].Reason)

	jsonRows, err := readBackfill(writeFile(t, "rows.json", `[{"product_id": "p3", "cost": 1.25}]`))
	require.NoError(t, err)
	require.Len(t, jsonRows, 1)
	assert.Equal(t, "p3", jsonRows[0].ProductID)
}

func TestNewApp_ProcessesInvoice(t *testing.T) {
	useTempConfig(t)
	ctx := context.Background()

	a, err := newApp(ctx)
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	product := &model.Product{Name: "DEEP CASHEW WHOLE 7OZ", Brand: "DEEP", Size: "7OZ"}
	require.NoError(t, a.catalog.CreateProduct(ctx, product))

	report, err := a.coord.ProcessInvoice(ctx, &model.Invoice{
		Ref:      model.InvoiceRef{InvoiceID: "INV-1", VendorID: "RAJA_FOODS", Actor: "test"},
		Currency: "USD",
		Items: []model.LineItem{
			{LineNumber: 1, ProductName: "DEEP CASHEW WHOLE 7OZ (20)", Quantity: 1, UnitPrice: 30, UnitsPerPack: 20},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.PriceUpdates)

	snap, err := a.store.GetCurrentCost(ctx, product.ID)
	require.NoError(t, err)
	require.NotNil(t, snap.Cost)
	assert.InDelta(t, 1.50, *snap.Cost, 1e-9)
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := versionCmd()
	cmd.SetOut(&out)
	cmd.Run(cmd, nil)
	assert.Contains(t, out.String(), "pricer version dev")
}
