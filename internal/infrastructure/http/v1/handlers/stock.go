package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"stockpile/internal/core/apperror"
	"stockpile/internal/core/id"
	"stockpile/internal/core/types"
	"stockpile/internal/domain/catalog"
	"stockpile/internal/domain/costing"
	"stockpile/internal/domain/ledger"
	"stockpile/internal/domain/lots"
	"stockpile/internal/infrastructure/http/v1/dto"
)

// StockHandler serves stock-on-hand, movement history, lots and current
// valuation reads.
type StockHandler struct {
	*BaseHandler
	ledger   *ledger.Service
	lots     *lots.Tracker
	valuer   *costing.Engine
	resolver *costing.Resolver
	catalog  catalog.Gateway
}

// NewStockHandler creates a stock handler.
func NewStockHandler(
	base *BaseHandler,
	ledgerSvc *ledger.Service,
	tracker *lots.Tracker,
	valuer *costing.Engine,
	resolver *costing.Resolver,
	gateway catalog.Gateway,
) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		ledger:      ledgerSvc,
		lots:        tracker,
		valuer:      valuer,
		resolver:    resolver,
		catalog:     gateway,
	}
}

// ListStock returns stock-on-hand rows for all products with history.
func (h *StockHandler) ListStock(c *gin.Context) {
	limit := h.ParseIntQuery(c, "limit", 100)
	offset := h.ParseIntQuery(c, "offset", 0)

	ctx := c.Request.Context()
	heads, err := h.ledger.ListHeads(ctx, limit, offset)
	if err != nil {
		h.Error(c, err)
		return
	}

	productIDs := make([]id.ID, 0, len(heads))
	for _, head := range heads {
		productIDs = append(productIDs, head.ProductID)
	}
	products, err := h.catalog.GetProducts(ctx, productIDs)
	if err != nil {
		h.Error(c, err)
		return
	}

	rows := make([]dto.StockRow, 0, len(heads))
	for _, head := range heads {
		row := dto.StockRow{
			ProductID:    head.ProductID.String(),
			BalanceQty:   head.BalanceQty,
			BalanceValue: head.BalanceValue,
			LastSeq:      head.LastSeq,
			UpdatedAt:    head.UpdatedAt,
		}
		if p, ok := products[head.ProductID]; ok {
			row.SKU = p.SKU
			row.Name = p.Name
		}
		rows = append(rows, row)
	}

	h.OK(c, dto.ListResponse[dto.StockRow]{Items: rows, Limit: limit, Offset: offset})
}

// GetStock returns one product's stock-on-hand row.
func (h *StockHandler) GetStock(c *gin.Context) {
	productID, ok := h.ParseIDParam(c, "productId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.catalog.GetProduct(ctx, productID); err != nil {
		h.Error(c, err)
		return
	}

	head, err := h.ledger.Head(ctx, productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.StockRow{
		ProductID:    head.ProductID.String(),
		BalanceQty:   head.BalanceQty,
		BalanceValue: head.BalanceValue,
		LastSeq:      head.LastSeq,
		UpdatedAt:    head.UpdatedAt,
	})
}

// GetMovements returns a product's movement history, newest first.
func (h *StockHandler) GetMovements(c *gin.Context) {
	productID, ok := h.ParseIDParam(c, "productId")
	if !ok {
		return
	}

	filter := ledger.MovementFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}
	if v := c.Query("movement"); v != "" {
		movement := ledger.MovementType(v)
		if !ledger.ValidMovementType(movement) {
			h.Error(c, apperror.NewValidation("unknown movement type").WithDetail("movement_type", v))
			return
		}
		filter.Movement = &movement
	}
	if v := c.Query("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid from date, want RFC3339"))
			return
		}
		filter.FromDate = &from
	}
	if v := c.Query("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid to date, want RFC3339"))
			return
		}
		filter.ToDate = &to
	}

	entries, err := h.ledger.History(c.Request.Context(), productID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse[ledger.Entry]{Items: entries, Limit: filter.Limit, Offset: filter.Offset})
}

// GetValue returns the current valuation of a product's stock under its
// active costing method.
func (h *StockHandler) GetValue(c *gin.Context) {
	productID, ok := h.ParseIDParam(c, "productId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.catalog.GetProduct(ctx, productID); err != nil {
		h.Error(c, err)
		return
	}

	head, err := h.ledger.Head(ctx, productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	method, err := h.resolver.Resolve(ctx, productID, time.Now().UTC())
	if err != nil {
		h.Error(c, err)
		return
	}

	value, err := h.valuer.CurrentValue(ctx, productID, costing.HeadState{
		BalanceQty:   head.BalanceQty,
		AvgUnitCost:  head.AvgUnitCost,
		LastUnitCost: head.LastUnitCost,
	}, method)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ValueResponse{
		ProductID:  productID.String(),
		Method:     method,
		BalanceQty: head.BalanceQty,
		Value:      value,
	})
}

// GetValuationSummary aggregates current stock value across every product
// with history, broken down by the costing method governing it today.
func (h *StockHandler) GetValuationSummary(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now().UTC()

	type bucket struct {
		products int
		value    types.MinorUnits
	}
	buckets := make(map[costing.Method]*bucket)

	const pageSize = 200
	for offset := 0; ; offset += pageSize {
		heads, err := h.ledger.ListHeads(ctx, pageSize, offset)
		if err != nil {
			h.Error(c, err)
			return
		}
		if len(heads) == 0 {
			break
		}

		for _, head := range heads {
			method, err := h.resolver.Resolve(ctx, head.ProductID, now)
			if err != nil {
				h.Error(c, err)
				return
			}
			value, err := h.valuer.CurrentValue(ctx, head.ProductID, costing.HeadState{
				BalanceQty:   head.BalanceQty,
				AvgUnitCost:  head.AvgUnitCost,
				LastUnitCost: head.LastUnitCost,
			}, method)
			if err != nil {
				h.Error(c, err)
				return
			}

			b := buckets[method]
			if b == nil {
				b = &bucket{}
				buckets[method] = b
			}
			b.products++
			b.value += value
		}

		if len(heads) < pageSize {
			break
		}
	}

	resp := dto.ValuationSummaryResponse{AsOf: now}
	for _, method := range []costing.Method{costing.MethodFIFO, costing.MethodAverage, costing.MethodLIFO} {
		b, ok := buckets[method]
		if !ok {
			continue
		}
		resp.ByMethod = append(resp.ByMethod, dto.ValuationSummaryRow{
			Method:     method,
			Products:   b.products,
			TotalValue: b.value,
		})
		resp.TotalValue += b.value
	}

	h.OK(c, resp)
}

// GetLots returns a product's cost lots, open and consumed.
func (h *StockHandler) GetLots(c *gin.Context) {
	productID, ok := h.ParseIDParam(c, "productId")
	if !ok {
		return
	}

	result, err := h.lots.Lots(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": result})
}

// GetExpiring returns open lots expiring within the query window.
func (h *StockHandler) GetExpiring(c *gin.Context) {
	days := h.ParseIntQuery(c, "days", 30)
	deadline := time.Now().UTC().AddDate(0, 0, days)

	result, err := h.lots.Expiring(c.Request.Context(), deadline)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": result, "deadline": deadline})
}
