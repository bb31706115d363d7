package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fintly/advisor-backend/internal/requestdata"
	"github.com/fintly/advisor-backend/internal/services"
)

type ChatHandler struct {
	chat *services.ChatService
}

func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// POST /api/sessions/:id/messages
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("invalid session id"))
		return
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Content) == "" {
		RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("message content required"))
		return
	}

	result, err := h.chat.SendMessage(c.Request.Context(), userID, sessionID, body.Content)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

// GET /api/sessions/:id/messages?limit=&before_seq=
//
// Without before_seq this returns the reconciled view (drafts, ephemeral
// proposals included); with it, a raw persisted page for back-scrolling.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("invalid session id"))
		return
	}

	if raw := c.Query("before_seq"); raw != "" {
		beforeSeq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("invalid before_seq"))
			return
		}
		limit, _ := strconv.Atoi(c.Query("limit"))
		messages, err := h.chat.ListMessagesPage(c.Request.Context(), userID, sessionID, limit, &beforeSeq)
		if err != nil {
			RespondServiceError(c, err)
			return
		}
		RespondOK(c, gin.H{"messages": messages})
		return
	}

	messages, err := h.chat.ListMessages(c.Request.Context(), userID, sessionID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"messages": messages})
}

// POST /api/sessions/:id/confirmations/:messageId
func (h *ChatHandler) ResolveConfirmation(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("invalid session id"))
		return
	}
	messageID := strings.TrimSpace(c.Param("messageId"))
	if messageID == "" {
		RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("message id required"))
		return
	}
	var body struct {
		Accept bool `json:"accept"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("bad request body"))
		return
	}

	if err := h.chat.ResolveConfirmation(c.Request.Context(), userID, sessionID, messageID, body.Accept); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"accepted": body.Accept})
}
