package handlers

import (
	"errors"
	"net/http"

	availabilityRepo "medilink/database/repository/availability"
	offerRepo "medilink/database/repository/offer"
	"medilink/middleware"
	"medilink/models"
	"medilink/services/dispatch"

	"github.com/gin-gonic/gin"
)

// DoctorHandler serves the doctor-facing availability and offer endpoints.
type DoctorHandler struct {
	Registry     *dispatch.Registry
	Engine       *dispatch.Engine
	Availability availabilityRepo.Repository
}

// UpsertAvailability registers or replaces the doctor's availability profile.
func (h *DoctorHandler) UpsertAvailability(c *gin.Context) {
	var av models.DoctorAvailability
	if err := c.ShouldBindJSON(&av); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}
	av.DoctorID = middleware.ActorID(c)

	if err := h.Availability.Upsert(c.Request.Context(), &av); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save availability", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, av)
}

// SetOnline flips the doctor's offerable flag.
func (h *DoctorHandler) SetOnline(c *gin.Context) {
	var input struct {
		Online bool `json:"online"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	doctorID := middleware.ActorID(c)
	err := h.Registry.SetOnline(c.Request.Context(), doctorID, input.Online)
	if errors.Is(err, availabilityRepo.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no availability profile; register first"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update online state", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"doctorId": doctorID, "online": input.Online})
}

// Heartbeat refreshes the doctor's liveness signal.
func (h *DoctorHandler) Heartbeat(c *gin.Context) {
	doctorID := middleware.ActorID(c)
	err := h.Registry.Heartbeat(c.Request.Context(), doctorID)
	if errors.Is(err, availabilityRepo.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no availability profile; register first"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record heartbeat", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"doctorId": doctorID})
}

// RespondOffer records the doctor's accept or decline for an offer.
func (h *DoctorHandler) RespondOffer(c *gin.Context) {
	var input struct {
		Action string `json:"action" binding:"required"` // accept or decline
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	offerID := c.Param("offerID")
	err := h.Engine.ReportOfferOutcome(c.Request.Context(), offerID, middleware.ActorID(c), input.Action)
	if errors.Is(err, offerRepo.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "offer not found"})
		return
	}
	var already dispatch.AlreadyResolvedError
	if errors.As(err, &already) {
		c.JSON(http.StatusConflict, gin.H{"error": "offer already resolved"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to respond to offer", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"offerId": offerID, "action": input.Action})
}
