package handlers

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"stockpile/internal/core/apperror"
	"stockpile/internal/infrastructure/storage/postgres"
)

// DocumentsHandler serves archived source documents from the posting
// journal, so a ledger entry's reference can be traced back to the payload
// that produced it.
type DocumentsHandler struct {
	*BaseHandler
	journal *postgres.JournalStore
}

// NewDocumentsHandler creates a documents handler.
func NewDocumentsHandler(base *BaseHandler, journal *postgres.JournalStore) *DocumentsHandler {
	return &DocumentsHandler{BaseHandler: base, journal: journal}
}

// GetByReference returns the archived payloads for one document reference,
// newest first.
func (h *DocumentsHandler) GetByReference(c *gin.Context) {
	refType := c.Param("refType")
	if refType == "" {
		h.Error(c, apperror.NewValidation("reference type is required"))
		return
	}
	refID, ok := h.ParseIDParam(c, "refId")
	if !ok {
		return
	}
	limit := h.ParseIntQuery(c, "limit", 10)

	entries, err := h.journal.GetByReference(c.Request.Context(), refType, refID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	if len(entries) == 0 {
		h.Error(c, apperror.NewNotFound("document", refID.String()))
		return
	}

	items := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		items = append(items, gin.H{
			"id":        entry.ID,
			"payload":   json.RawMessage(entry.Payload),
			"createdAt": entry.CreatedAt,
		})
	}
	h.OK(c, gin.H{
		"referenceType": refType,
		"referenceId":   refID,
		"items":         items,
	})
}
