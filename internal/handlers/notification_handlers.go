package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/notifications"
)

//
// --- Notification Handlers ---
//

// GetMyNotifications is the handler for GET /api/notifications.
// Unread first, newest first.
func (h *Handlers) GetMyNotifications(c *gin.Context) {
	s, _ := currentUser(c)

	list, err := notifications.ListForUser(c.Request.Context(), h.DB, s.UserID)
	if err != nil {
		h.internalError(c, "Database query failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": list,
	})
}

// MarkNotificationAsRead is the handler for PATCH /api/notifications/:id/read.
// Only the owner's notification is updated.
func (h *Handlers) MarkNotificationAsRead(c *gin.Context) {
	s, _ := currentUser(c)
	notificationID, ok := idParam(c, "id")
	if !ok {
		return
	}

	err := notifications.MarkRead(c.Request.Context(), h.DB, s.UserID, notificationID)
	if err != nil {
		if errors.Is(err, notifications.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found or you do not have permission to update it"})
			return
		}
		h.internalError(c, "Failed to update notification", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Notification marked as read",
	})
}
