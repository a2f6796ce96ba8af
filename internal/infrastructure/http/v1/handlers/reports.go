package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"stockpile/internal/core/apperror"
	"stockpile/internal/core/id"
	"stockpile/internal/domain/snapshot"
	"stockpile/internal/infrastructure/http/v1/dto"
)

// ReportsHandler serves snapshot, alert and trend reporting.
type ReportsHandler struct {
	*BaseHandler
	generator *snapshot.Generator
	alerts    *snapshot.AlertEngine
}

// NewReportsHandler creates a reports handler.
func NewReportsHandler(base *BaseHandler, generator *snapshot.Generator, alerts *snapshot.AlertEngine) *ReportsHandler {
	return &ReportsHandler{BaseHandler: base, generator: generator, alerts: alerts}
}

// GenerateSnapshot builds a snapshot batch for the requested date.
func (h *ReportsHandler) GenerateSnapshot(c *gin.Context) {
	var req dto.SnapshotRequest
	if !h.BindJSON(c, &req) {
		return
	}

	snapshots, err := h.generator.Generate(c.Request.Context(), req.Date)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, gin.H{"items": snapshots, "count": len(snapshots)})
}

// GetSnapshots returns the latest snapshot batch for a date.
func (h *ReportsHandler) GetSnapshots(c *gin.Context) {
	dateStr := c.Query("date")
	if dateStr == "" {
		h.Error(c, apperror.NewValidation("date query parameter is required"))
		return
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid date, want YYYY-MM-DD"))
		return
	}

	var productID *id.ID
	if v := c.Query("productId"); v != "" {
		parsed, err := id.Parse(v)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid productId"))
			return
		}
		productID = &parsed
	}

	snapshots, err := h.generator.Snapshots(c.Request.Context(), date, productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": snapshots, "date": dateStr})
}

// GetAlerts evaluates the stock level alert rules over current stock.
func (h *ReportsHandler) GetAlerts(c *gin.Context) {
	alerts, err := h.alerts.Evaluate(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": alerts, "count": len(alerts)})
}

// GetTrend returns a product's daily closing quantity and value series.
func (h *ReportsHandler) GetTrend(c *gin.Context) {
	productID, ok := h.ParseIDParam(c, "productId")
	if !ok {
		return
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid from date, want YYYY-MM-DD"))
			return
		}
		from = parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid to date, want YYYY-MM-DD"))
			return
		}
		to = parsed
	}

	points, err := h.generator.Trend(c.Request.Context(), productID, from, to)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": points, "from": from.Format("2006-01-02"), "to": to.Format("2006-01-02")})
}
