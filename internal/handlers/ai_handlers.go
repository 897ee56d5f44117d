package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ChatInput defines the structure of the JSON request body.
type ChatInput struct {
	Message string `json:"message" binding:"required"`
}

// ChatAI handles POST /api/ai/chat, the fallback for clients without
// websockets. Guests may chat too.
func (h *Handlers) ChatAI(c *gin.Context) {
	if h.Assistant == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "AI assistant is not configured"})
		return
	}

	var input ChatInput
	if err := c.ShouldBindJSON(&input); err != nil || strings.TrimSpace(input.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
		return
	}

	var userID *int64
	role := "Guest"
	if s, ok := currentUser(c); ok {
		userID = &s.UserID
		role = s.PrimaryRole()
	}

	reply, err := h.Assistant.Chat(c.Request.Context(), userID, role, strings.TrimSpace(input.Message))
	if err != nil {
		h.Log.Error("AI chat failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "AI Service unavailable"})
		return
	}

	c.JSON(http.StatusOK, reply)
}
