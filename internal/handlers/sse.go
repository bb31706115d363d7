package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fintly/advisor-backend/internal/platform/logger"
	"github.com/fintly/advisor-backend/internal/requestdata"
	"github.com/fintly/advisor-backend/internal/services"
	"github.com/fintly/advisor-backend/internal/sse"
)

type SSEHandler struct {
	log *logger.Logger
	hub *sse.Hub
}

func NewSSEHandler(log *logger.Logger, hub *sse.Hub) *SSEHandler {
	return &SSEHandler{log: log.With("handler", "SSEHandler"), hub: hub}
}

// GET /api/sse/stream?session=<id>
//
// Holds the connection open and forwards hub events for the subscribed
// session channels. EventSource reconnects resubscribe via the same query.
func (h *SSEHandler) Stream(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())

	client := h.hub.NewClient(userID)
	defer h.hub.CloseClient(client)

	for _, raw := range c.QueryArray("session") {
		sessionID, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("invalid session id %q", raw))
			return
		}
		h.hub.Subscribe(client, services.SessionChannel(sessionID))
	}

	h.log.Debug("sse stream opened", "client_id", client.ID, "user_id", userID)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
