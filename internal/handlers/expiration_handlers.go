package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CheckExpired handles POST /api/PackageExpiration/CheckExpired and runs a
// full scan immediately.
func (h *Handlers) CheckExpired(c *gin.Context) {
	result, err := h.Expiration.ProcessExpiredPackages(c.Request.Context())
	if err != nil {
		h.Log.Error("Manual expiration scan failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error while checking expired packages: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Expired packages checked and processed",
		"result":  result,
	})
}

// CheckMyPackage handles POST /api/PackageExpiration/CheckMyPackage for the
// signed-in user.
func (h *Handlers) CheckMyPackage(c *gin.Context) {
	s, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not logged in"})
		return
	}

	result, err := h.Expiration.ProcessExpiredPackageForUser(c.Request.Context(), s.UserID)
	if err != nil {
		h.Log.Error("Package check failed", "userID", s.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error while checking your package: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Your package was checked",
		"result":  result,
	})
}
