package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/repositories"
	"chat-sync/internal/telemetry"
)

// GroupHandler manages group-related endpoints.
type GroupHandler struct {
	groupRepo repositories.GroupRepository
	audit     *telemetry.AuditEmitter
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groupRepo repositories.GroupRepository, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{groupRepo: groupRepo, audit: audit}
}

// GetInfo handles GET /v1/groups/:id/info.
func (h *GroupHandler) GetInfo(c *gin.Context) {
	groupID, ok := parseID(c, "id")
	if !ok {
		return
	}

	userID := c.GetInt64("userID")
	member, err := h.groupRepo.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return
	}

	info, err := h.groupRepo.GetGroupInfo(c.Request.Context(), groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": info})
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
