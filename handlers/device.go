package handlers

import (
	"net/http"

	"medilink/middleware"
	"medilink/services/notification"

	"github.com/gin-gonic/gin"
)

// DeviceHandler manages FCM device token registration for pushes.
type DeviceHandler struct {
	Tokens notification.TokenStore
}

// Register stores the caller's current device token.
func (h *DeviceHandler) Register(c *gin.Context) {
	var input struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	if err := h.Tokens.Register(c.Request.Context(), middleware.ActorID(c), input.Token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register device token", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"registered": true})
}

// Remove drops the caller's device token, e.g. on logout.
func (h *DeviceHandler) Remove(c *gin.Context) {
	if err := h.Tokens.Remove(c.Request.Context(), middleware.ActorID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove device token", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}
