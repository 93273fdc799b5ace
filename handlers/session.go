package handlers

import (
	"errors"
	"net/http"

	sessionRepo "medilink/database/repository/session"
	"medilink/middleware"
	"medilink/models"
	"medilink/services/consult"

	"github.com/gin-gonic/gin"
)

// SessionHandler serves the live-consultation endpoints shared by both
// participants.
type SessionHandler struct {
	Manager *consult.Manager
}

func participantFromRole(c *gin.Context) models.Participant {
	if c.GetString(middleware.ContextActorRole) == "doctor" {
		return models.ParticipantDoctor
	}
	return models.ParticipantPatient
}

func (h *SessionHandler) loadOwnSession(c *gin.Context) (*models.Session, bool) {
	sess, err := h.Manager.GetByID(c.Request.Context(), c.Param("id"), middleware.ActorID(c))
	if errors.Is(err, sessionRepo.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	var notPart consult.NotParticipantError
	if errors.As(err, &notPart) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this session"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session", "details": err.Error()})
		return nil, false
	}
	return sess, true
}

// Get returns the session with both participants' media presence.
func (h *SessionHandler) Get(c *gin.Context) {
	sess, ok := h.loadOwnSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess)
}

// ReportDisconnect records the caller's dropped media track.
func (h *SessionHandler) ReportDisconnect(c *gin.Context) {
	sess, ok := h.loadOwnSession(c)
	if !ok {
		return
	}
	if err := h.Manager.ReportDisconnect(c.Request.Context(), sess.ID, participantFromRole(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record disconnect", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sess.ID})
}

// Reconnect re-establishes the caller's media track inside the grace window.
func (h *SessionHandler) Reconnect(c *gin.Context) {
	sess, ok := h.loadOwnSession(c)
	if !ok {
		return
	}
	err := h.Manager.Reconnect(c.Request.Context(), sess.ID, participantFromRole(c))
	if errors.Is(err, sessionRepo.ErrEnded) {
		c.JSON(http.StatusGone, gin.H{"error": "session already ended"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reconnect", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sess.ID})
}

// Mute toggles the caller's audio.
func (h *SessionHandler) Mute(c *gin.Context) {
	var input struct {
		Muted bool `json:"muted"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}
	sess, ok := h.loadOwnSession(c)
	if !ok {
		return
	}
	err := h.Manager.SetMuted(c.Request.Context(), sess.ID, participantFromRole(c), input.Muted)
	if errors.Is(err, sessionRepo.ErrEnded) {
		c.JSON(http.StatusGone, gin.H{"error": "session already ended"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update mute state", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sess.ID, "muted": input.Muted})
}

// End closes the session as completed with the doctor's note. Doctor only;
// ending an already-ended session succeeds without changing anything.
func (h *SessionHandler) End(c *gin.Context) {
	var input struct {
		Note string `json:"note"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}
	sess, ok := h.loadOwnSession(c)
	if !ok {
		return
	}
	if err := h.Manager.End(c.Request.Context(), sess.ID, models.EndCompleted, input.Note); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end session", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sess.ID, "ended": true})
}
