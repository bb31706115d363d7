package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/fintly/advisor-backend/internal/requestdata"
	"github.com/fintly/advisor-backend/internal/services"
)

type UsageHandler struct {
	quota *services.QuotaService
}

func NewUsageHandler(quota *services.QuotaService) *UsageHandler {
	return &UsageHandler{quota: quota}
}

// GET /api/usage
func (h *UsageHandler) GetUsage(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	snapshot, err := h.quota.Snapshot(c.Request.Context(), userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"usage": snapshot})
}
