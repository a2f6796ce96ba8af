package snapshot

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"

	"stockpile/internal/core/apperror"
	"stockpile/internal/core/id"
	"stockpile/internal/domain/catalog"
	"stockpile/internal/domain/ledger"
	"stockpile/pkg/logger"
)

// Default alert rules, overridable per deployment.
const (
	RuleOutOfStock = "out_of_stock"
	RuleLowStock   = "low_stock"

	defaultOutOfStockExpr = "qty <= 0.0"
	defaultLowStockExpr   = "qty > 0.0 && qty < threshold"
)

// AlertEngine evaluates stock level rules written as CEL expressions over
// per-product variables:
//
//	qty        current on-hand quantity (double)
//	threshold  the product's low stock threshold (double)
//	value      current stock value in major units (double)
//	active     whether the product is active (bool)
type AlertEngine struct {
	ledger  ledger.Repository
	catalog catalog.Gateway
	rules   []compiledRule
}

type compiledRule struct {
	name string
	expr string
	prg  cel.Program
}

// NewAlertEngine compiles the default rules plus any overrides. An
// override with an empty expression disables the rule by that name.
func NewAlertEngine(ledgerRepo ledger.Repository, gateway catalog.Gateway, overrides map[string]string) (*AlertEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("qty", cel.DoubleType),
		cel.Variable("threshold", cel.DoubleType),
		cel.Variable("value", cel.DoubleType),
		cel.Variable("active", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("create rule environment: %w", err)
	}

	exprs := map[string]string{
		RuleOutOfStock: defaultOutOfStockExpr,
		RuleLowStock:   defaultLowStockExpr,
	}
	for name, expr := range overrides {
		exprs[name] = expr
	}

	names := make([]string, 0, len(exprs))
	for name := range exprs {
		names = append(names, name)
	}
	sort.Strings(names)

	e := &AlertEngine{ledger: ledgerRepo, catalog: gateway}
	for _, name := range names {
		expr := exprs[name]
		if expr == "" {
			continue
		}
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, apperror.NewValidation("invalid alert rule").
				WithDetail("rule", name).
				WithDetail("error", issues.Err().Error())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, apperror.NewValidation("alert rule must evaluate to bool").
				WithDetail("rule", name)
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("compile rule %s: %w", name, err)
		}
		e.rules = append(e.rules, compiledRule{name: name, expr: expr, prg: prg})
	}
	return e, nil
}

// Evaluate checks every active product with ledger history against the
// rules. A product matching several rules yields one alert per rule.
func (e *AlertEngine) Evaluate(ctx context.Context) ([]Alert, error) {
	var alerts []Alert
	const pageSize = 500
	for offset := 0; ; offset += pageSize {
		heads, err := e.ledger.ListHeads(ctx, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list heads: %w", err)
		}
		if len(heads) == 0 {
			break
		}

		ids := make([]id.ID, 0, len(heads))
		for _, h := range heads {
			ids = append(ids, h.ProductID)
		}
		products, err := e.catalog.GetProducts(ctx, ids)
		if err != nil {
			return nil, err
		}

		for _, h := range heads {
			product, ok := products[h.ProductID]
			if !ok {
				logger.Warn(ctx, "ledger head without catalog product", "product_id", h.ProductID)
				continue
			}
			if !product.Active {
				continue
			}
			matched, err := e.evaluateProduct(ctx, product, h)
			if err != nil {
				return nil, err
			}
			alerts = append(alerts, matched...)
		}

		if len(heads) < pageSize {
			break
		}
	}
	return alerts, nil
}

func (e *AlertEngine) evaluateProduct(ctx context.Context, product catalog.Product, head ledger.Head) ([]Alert, error) {
	vars := map[string]any{
		"qty":       head.BalanceQty.Float64(),
		"threshold": product.LowStockThreshold.Float64(),
		"value":     head.BalanceValue.Major().InexactFloat64(),
		"active":    product.Active,
	}

	var alerts []Alert
	for _, rule := range e.rules {
		out, _, err := rule.prg.Eval(vars)
		if err != nil {
			return nil, fmt.Errorf("evaluate rule %s for %s: %w", rule.name, product.ID, err)
		}
		hit, ok := out.Value().(bool)
		if !ok || !hit {
			continue
		}
		alerts = append(alerts, Alert{
			ProductID: product.ID,
			SKU:       product.SKU,
			Name:      product.Name,
			Rule:      rule.name,
			QtyOnHand: head.BalanceQty,
			Threshold: product.LowStockThreshold,
			Value:     head.BalanceValue,
		})
	}
	return alerts, nil
}
