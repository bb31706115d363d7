package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/fintly/advisor-backend/internal/platform/dbctx"
	"github.com/fintly/advisor-backend/internal/requestdata"
	"github.com/fintly/advisor-backend/internal/services"
)

type ProfileHandler struct {
	profiles *services.ProfileService
}

func NewProfileHandler(profiles *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// GET /api/profile
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	profile, err := h.profiles.Get(dbctx.New(c.Request.Context()), userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"profile": profile})
}
