package handlers

import (
	"errors"
	"net/http"

	requestRepo "medilink/database/repository/request"
	"medilink/middleware"
	"medilink/services/dispatch"

	"github.com/gin-gonic/gin"
)

// EmergencyHandler serves the patient-facing dispatch endpoints.
type EmergencyHandler struct {
	Engine *dispatch.Engine
}

// Create accepts a new emergency request and kicks off dispatch.
func (h *EmergencyHandler) Create(c *gin.Context) {
	var input dispatch.IntakeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}
	input.PatientID = middleware.ActorID(c)

	req, err := h.Engine.RequestDispatch(c.Request.Context(), input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to create emergency request", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, req)
}

// Get returns the full request with its transition history.
func (h *EmergencyHandler) Get(c *gin.Context) {
	req, err := h.Engine.GetRequest(c.Request.Context(), c.Param("id"))
	if errors.Is(err, requestRepo.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "emergency request not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load emergency request", "details": err.Error()})
		return
	}
	if req.PatientID != middleware.ActorID(c) && c.GetString(middleware.ContextActorRole) != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your request"})
		return
	}
	c.JSON(http.StatusOK, req)
}

// GetStatus returns the lightweight polling view of a request's progress.
func (h *EmergencyHandler) GetStatus(c *gin.Context) {
	status, err := h.Engine.GetStatus(c.Request.Context(), c.Param("id"))
	if errors.Is(err, requestRepo.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "emergency request not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load dispatch status", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// Cancel withdraws a request from any non-terminal state.
func (h *EmergencyHandler) Cancel(c *gin.Context) {
	err := h.Engine.Cancel(c.Request.Context(), c.Param("id"), "patient")
	if errors.Is(err, requestRepo.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "emergency request not found"})
		return
	}
	var stale dispatch.StaleTransitionError
	if errors.As(err, &stale) {
		c.JSON(http.StatusConflict, gin.H{"error": "request already reached a terminal state"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel request", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}
