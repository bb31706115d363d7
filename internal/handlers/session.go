package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperr "github.com/fintly/advisor-backend/internal/pkg/errors"
	"github.com/fintly/advisor-backend/internal/requestdata"
	"github.com/fintly/advisor-backend/internal/services"
)

type SessionHandler struct {
	chat *services.ChatService
}

func NewSessionHandler(chat *services.ChatService) *SessionHandler {
	return &SessionHandler{chat: chat}
}

// POST /api/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	var body struct {
		Title string `json:"title"`
	}
	_ = c.ShouldBindJSON(&body)

	session, err := h.chat.CreateSession(c.Request.Context(), userID, body.Title)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": session})
}

// GET /api/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	limit, _ := strconv.Atoi(c.Query("limit"))

	sessions, err := h.chat.ListSessions(c.Request.Context(), userID, limit)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"sessions": sessions})
}

// PATCH /api/sessions/:id
func (h *SessionHandler) RenameSession(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("invalid session id"))
		return
	}
	var body struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("%w: bad request body", apperr.ErrInvalidArgument))
		return
	}
	if err := h.chat.RenameSession(c.Request.Context(), userID, sessionID, body.Title); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"renamed": true})
}

// DELETE /api/sessions/:id
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("invalid session id"))
		return
	}
	if err := h.chat.DeleteSession(c.Request.Context(), userID, sessionID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

// POST /api/sessions/:id/open
func (h *SessionHandler) OpenSession(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("invalid session id"))
		return
	}
	messages, err := h.chat.OpenSession(c.Request.Context(), userID, sessionID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"messages": messages})
}
