package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AskRequest struct {
	Message string `json:"message" binding:"required"`
}

// --- POST: /api/ask ---
func (h *Handler) AskAI(c *gin.Context) {
	if h.assistant == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Assistant is not configured", "kind": "Unavailable"})
		return
	}
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Message is required")
		return
	}

	reply, err := h.assistant.Run(c.Request.Context(), req.Message)
	if err != nil {
		h.log.Error("assistant failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Assistant failed to answer", "kind": "Unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}
