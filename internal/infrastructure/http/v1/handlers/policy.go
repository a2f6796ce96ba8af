package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"stockpile/internal/domain/costing"
	"stockpile/internal/infrastructure/http/v1/dto"
)

// PolicyHandler serves per-product costing method configuration.
type PolicyHandler struct {
	*BaseHandler
	resolver *costing.Resolver
}

// NewPolicyHandler creates a cost policy handler.
func NewPolicyHandler(base *BaseHandler, resolver *costing.Resolver) *PolicyHandler {
	return &PolicyHandler{BaseHandler: base, resolver: resolver}
}

// SetPolicy records a costing method change for a product. The change
// governs postings from effectiveFrom onward; history is never restated.
func (h *PolicyHandler) SetPolicy(c *gin.Context) {
	productID, ok := h.ParseIDParam(c, "productId")
	if !ok {
		return
	}

	var req dto.PolicyRequest
	if !h.BindJSON(c, &req) {
		return
	}

	effectiveFrom := time.Now().UTC()
	if req.EffectiveFrom != nil {
		effectiveFrom = *req.EffectiveFrom
	}

	policy, err := h.resolver.SetPolicy(c.Request.Context(), productID, costing.Method(req.Method), effectiveFrom)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, policy)
}

// GetPolicy returns the active method and the full policy history.
func (h *PolicyHandler) GetPolicy(c *gin.Context) {
	productID, ok := h.ParseIDParam(c, "productId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	method, err := h.resolver.Resolve(ctx, productID, time.Now().UTC())
	if err != nil {
		h.Error(c, err)
		return
	}

	history, err := h.resolver.History(ctx, productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, gin.H{
		"productId": productID.String(),
		"method":    method,
		"history":   history,
	})
}
