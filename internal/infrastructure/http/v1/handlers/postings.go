package handlers

import (
	"github.com/gin-gonic/gin"

	"stockpile/internal/domain/posting"
)

// PostingHandler serves the posting write paths: receipts, outflows,
// returns and adjustments.
type PostingHandler struct {
	*BaseHandler
	engine *posting.Engine
}

// NewPostingHandler creates a posting handler.
func NewPostingHandler(base *BaseHandler, engine *posting.Engine) *PostingHandler {
	return &PostingHandler{BaseHandler: base, engine: engine}
}

// PostReceipt posts a goods-received document. An Idempotency-Key header
// makes client retries safe; replays return the original result with 200
// instead of 201.
func (h *PostingHandler) PostReceipt(c *gin.Context) {
	var receipt posting.Receipt
	if !h.BindJSON(c, &receipt) {
		return
	}

	result, err := h.engine.PostReceipt(c.Request.Context(), receipt, h.IdempotencyKey(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	if result.Replayed {
		h.OK(c, result)
		return
	}
	h.Created(c, result)
}

// PostOutflow posts a sale or transfer out.
func (h *PostingHandler) PostOutflow(c *gin.Context) {
	var req posting.OutflowRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.engine.PostOutflow(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, result)
}

// PostReturn posts a customer return back into stock.
func (h *PostingHandler) PostReturn(c *gin.Context) {
	var req posting.ReturnRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.engine.PostReturn(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, result)
}

// PostAdjustment posts a signed manual correction.
func (h *PostingHandler) PostAdjustment(c *gin.Context) {
	var req posting.AdjustmentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.engine.PostAdjustment(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, result)
}
