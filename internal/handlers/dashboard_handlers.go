package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/listings"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/notifications"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/plans"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/users"
)

//
// --- Agent Dashboard Stats ---
//

type AgentStats struct {
	PlanName            string `json:"planName,omitempty"`
	ActiveListings      int    `json:"activeListings"`
	ListingLimit        *int   `json:"listingLimit"` // null means unlimited
	UnreadNotifications int    `json:"unreadNotifications"`
}

// GetAgentStats returns KPI data for the agent dashboard
// GET /api/agent/dashboard-stats
func (h *Handlers) GetAgentStats(c *gin.Context) {
	s, _ := currentUser(c)
	userID := s.UserID
	ctx := c.Request.Context()
	stats := AgentStats{}

	// 1. Current plan
	plan, err := plans.ActiveForUser(ctx, h.DB, userID, time.Now())
	switch {
	case err == nil:
		stats.PlanName = plan.Name
		if !plan.Unlimited() {
			stats.ListingLimit = plan.MaxListings
		}
	case errors.Is(err, plans.ErrNoActivePackage):
		zero := 0
		stats.ListingLimit = &zero
	default:
		h.internalError(c, "Failed to get current plan", err)
		return
	}

	// 2. Listing count
	agentID, found, err := users.AgentIDForUser(ctx, h.DB, userID)
	if err != nil {
		h.internalError(c, "Failed to get agent profile", err)
		return
	}
	if found {
		stats.ActiveListings, err = listings.CountForAgent(ctx, h.DB, agentID)
		if err != nil {
			h.internalError(c, "Failed to count listings", err)
			return
		}
	}

	// 3. Unread notifications
	stats.UnreadNotifications, err = notifications.UnreadCount(ctx, h.DB, userID)
	if err != nil {
		h.internalError(c, "Failed to count notifications", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
