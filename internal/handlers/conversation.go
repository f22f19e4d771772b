package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
	"chat-sync/internal/telemetry"
)

// ConversationHandler serves conversation history and message creation for direct and group
// conversations.
type ConversationHandler struct {
	messageRepo repositories.MessageRepository
	groupRepo   repositories.GroupRepository
	audit       *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(messageRepo repositories.MessageRepository, groupRepo repositories.GroupRepository, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{messageRepo: messageRepo, groupRepo: groupRepo, audit: audit}
}

// GetMessages handles GET /v1/chat/{user|group}/:id.
func (h *ConversationHandler) GetMessages(kind models.ConversationKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		channelKey, _, ok := h.channel(c, kind)
		if !ok {
			return
		}

		rows, err := h.messageRepo.ListMessages(c.Request.Context(), channelKey)
		if err != nil {
			h.emitAudit(c, "ERROR", "internal error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
			return
		}

		frames := make([]models.Frame, 0, len(rows))
		for _, row := range rows {
			frames = append(frames, row.Frame())
		}
		c.JSON(http.StatusOK, gin.H{"data": frames})
	}
}

// PostMessage handles POST /v1/chat/{user|group}/:id. The sender is always the caller.
func (h *ConversationHandler) PostMessage(kind models.ConversationKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		channelKey, receiverID, ok := h.channel(c, kind)
		if !ok {
			return
		}

		var req struct {
			Text   string `json:"text"`
			PostID int64  `json:"post_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			h.emitAudit(c, "ERROR", "invalid request payload")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.Text = strings.TrimSpace(req.Text)
		if req.Text == "" && req.PostID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text or post_id required"})
			return
		}

		userID := c.GetInt64("userID")
		row, err := h.messageRepo.CreateMessage(c.Request.Context(), channelKey, userID, receiverID, req.Text, req.PostID)
		if err != nil {
			h.emitAudit(c, "ERROR", "internal error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
			return
		}

		h.emitAudit(c, "INFO", "Message stored")
		c.JSON(http.StatusCreated, gin.H{"data": row.Frame()})
	}
}

func (h *ConversationHandler) channel(c *gin.Context, kind models.ConversationKind) (string, int64, bool) {
	otherID, ok := parseID(c, "id")
	if !ok {
		return "", 0, false
	}
	userID := c.GetInt64("userID")

	if kind == models.KindDirect {
		if otherID == userID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
			return "", 0, false
		}
		return models.DirectChannelKey(userID, otherID), otherID, true
	}

	member, err := h.groupRepo.IsMember(c.Request.Context(), otherID, userID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return "", 0, false
	}
	if !member {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return "", 0, false
	}
	return models.GroupChannelKey(otherID), otherID, true
}

func (h *ConversationHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
