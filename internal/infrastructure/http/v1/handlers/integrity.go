package handlers

import (
	"github.com/gin-gonic/gin"

	"stockpile/internal/domain/integrity"
	"stockpile/internal/domain/ledger"
)

// IntegrityHandler serves reconciliation checks and head rebuilds.
type IntegrityHandler struct {
	*BaseHandler
	auditor *integrity.Auditor
	ledger  *ledger.Service
}

// NewIntegrityHandler creates an integrity handler.
func NewIntegrityHandler(base *BaseHandler, auditor *integrity.Auditor, ledgerSvc *ledger.Service) *IntegrityHandler {
	return &IntegrityHandler{BaseHandler: base, auditor: auditor, ledger: ledgerSvc}
}

// AuditAll reconciles every product with ledger history.
func (h *IntegrityHandler) AuditAll(c *gin.Context) {
	report, err := h.auditor.AuditAll(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// AuditProduct reconciles one product.
func (h *IntegrityHandler) AuditProduct(c *gin.Context) {
	productID, ok := h.ParseIDParam(c, "productId")
	if !ok {
		return
	}

	warnings, err := h.auditor.AuditProduct(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{
		"productId": productID.String(),
		"clean":     len(warnings) == 0,
		"warnings":  warnings,
	})
}

// RebuildHead refolds a product's head projection from its entries.
// The ledger is the source of truth; the head is disposable.
func (h *IntegrityHandler) RebuildHead(c *gin.Context) {
	productID, ok := h.ParseIDParam(c, "productId")
	if !ok {
		return
	}

	head, err := h.ledger.RebuildHead(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, head)
}
