package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpile/internal/core/id"
	"stockpile/internal/core/types"
	"stockpile/internal/domain/catalog"
	"stockpile/internal/domain/ledger"
)

type fakeGateway struct {
	products map[id.ID]catalog.Product
}

func (f *fakeGateway) GetProduct(_ context.Context, productID id.ID) (catalog.Product, error) {
	return f.products[productID], nil
}

func (f *fakeGateway) GetProducts(_ context.Context, ids []id.ID) (map[id.ID]catalog.Product, error) {
	out := make(map[id.ID]catalog.Product)
	for _, pid := range ids {
		if p, ok := f.products[pid]; ok {
			out[pid] = p
		}
	}
	return out, nil
}

func (f *fakeGateway) GetSupplier(_ context.Context, _ id.ID) (catalog.Supplier, error) {
	return catalog.Supplier{}, nil
}

func (f *fakeGateway) ListActiveProducts(_ context.Context, _, _ int) ([]catalog.Product, error) {
	return nil, nil
}

type stockLevel struct {
	qty       int64
	threshold int64
	active    bool
}

func alertFixture(levels map[string]stockLevel) (*fakeLedgerRepo, *fakeGateway, map[string]id.ID) {
	ledgerRepo := &fakeLedgerRepo{}
	gateway := &fakeGateway{products: make(map[id.ID]catalog.Product)}
	ids := make(map[string]id.ID)

	for sku, lv := range levels {
		productID := id.New()
		ids[sku] = productID
		gateway.products[productID] = catalog.Product{
			ID:                productID,
			SKU:               sku,
			Name:              sku,
			Active:            lv.active,
			LowStockThreshold: types.NewQuantityFromInt(lv.threshold),
		}
		ledgerRepo.heads = append(ledgerRepo.heads, ledger.Head{
			ProductID:  productID,
			LastSeq:    1,
			BalanceQty: types.NewQuantityFromInt(lv.qty),
		})
	}
	return ledgerRepo, gateway, ids
}

func rulesBySKU(alerts []Alert) map[string][]string {
	out := make(map[string][]string)
	for _, a := range alerts {
		out[a.SKU] = append(out[a.SKU], a.Rule)
	}
	return out
}

func TestAlerts_DefaultRules(t *testing.T) {
	ledgerRepo, gateway, _ := alertFixture(map[string]stockLevel{
		"EMPTY":    {qty: 0, threshold: 10, active: true},
		"NEGATIVE": {qty: -5, threshold: 10, active: true},
		"LOW":      {qty: 3, threshold: 10, active: true},
		"HEALTHY":  {qty: 50, threshold: 10, active: true},
		"DISABLED": {qty: 0, threshold: 10, active: false},
	})

	engine, err := NewAlertEngine(ledgerRepo, gateway, nil)
	require.NoError(t, err)

	alerts, err := engine.Evaluate(context.Background())
	require.NoError(t, err)

	hits := rulesBySKU(alerts)
	assert.Equal(t, []string{RuleOutOfStock}, hits["EMPTY"])
	assert.Equal(t, []string{RuleOutOfStock}, hits["NEGATIVE"])
	assert.Equal(t, []string{RuleLowStock}, hits["LOW"])
	assert.Empty(t, hits["HEALTHY"])
	assert.Empty(t, hits["DISABLED"], "inactive products never alert")
}

func TestAlerts_ZeroThresholdNeverLowStock(t *testing.T) {
	ledgerRepo, gateway, _ := alertFixture(map[string]stockLevel{
		"NO-THRESHOLD": {qty: 1, threshold: 0, active: true},
	})

	engine, err := NewAlertEngine(ledgerRepo, gateway, nil)
	require.NoError(t, err)

	alerts, err := engine.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestAlerts_OverrideReplacesRule(t *testing.T) {
	ledgerRepo, gateway, _ := alertFixture(map[string]stockLevel{
		"BULK": {qty: 90, threshold: 0, active: true},
	})

	engine, err := NewAlertEngine(ledgerRepo, gateway, map[string]string{
		"reorder_point": "qty < 100.0",
	})
	require.NoError(t, err)

	alerts, err := engine.Evaluate(context.Background())
	require.NoError(t, err)

	hits := rulesBySKU(alerts)
	assert.Equal(t, []string{"reorder_point"}, hits["BULK"])
}

func TestAlerts_EmptyOverrideDisablesRule(t *testing.T) {
	ledgerRepo, gateway, _ := alertFixture(map[string]stockLevel{
		"EMPTY": {qty: 0, threshold: 10, active: true},
	})

	engine, err := NewAlertEngine(ledgerRepo, gateway, map[string]string{
		RuleOutOfStock: "",
	})
	require.NoError(t, err)

	alerts, err := engine.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestNewAlertEngine_RejectsBadRules(t *testing.T) {
	ledgerRepo, gateway, _ := alertFixture(nil)

	_, err := NewAlertEngine(ledgerRepo, gateway, map[string]string{
		"broken": "qty <",
	})
	require.Error(t, err, "syntax error must fail at startup")

	_, err = NewAlertEngine(ledgerRepo, gateway, map[string]string{
		"not_bool": "qty + 1.0",
	})
	require.Error(t, err, "non-boolean rule must fail at startup")
}
