package handlers

import (
	"errors"
	"net/http"
	"strconv"

	chatRepo "medilink/database/repository/chat"
	sessionRepo "medilink/database/repository/session"
	"medilink/middleware"
	"medilink/models"
	"medilink/services/consult"
	"medilink/services/storage"

	"github.com/gin-gonic/gin"
)

// ChatHandler serves the in-session chat endpoints.
type ChatHandler struct {
	Channel     *consult.Channel
	Attachments storage.AttachmentService
}

func (h *ChatHandler) writeChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sessionRepo.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, sessionRepo.ErrChatClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "chat is closed on an ended session"})
	case errors.Is(err, chatRepo.ErrPointerRegressed):
		c.JSON(http.StatusConflict, gin.H{"error": "read pointer may not move backward"})
	default:
		var notPart consult.NotParticipantError
		var unavailable consult.DeliveryUnavailableError
		if errors.As(err, &notPart) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this session"})
			return
		}
		if errors.As(err, &unavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat delivery is temporarily unavailable, retry shortly"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chat operation failed", "details": err.Error()})
	}
}

// Send posts a text or location message to the session chat.
func (h *ChatHandler) Send(c *gin.Context) {
	var input struct {
		Type    models.MessageType `json:"type" binding:"required"`
		Payload string             `json:"payload" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	msg, err := h.Channel.Send(c.Request.Context(), c.Param("id"), middleware.ActorID(c), input.Type, input.Payload)
	if err != nil {
		h.writeChatError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// SendAttachment uploads an image and posts it as a chat message in one
// step. The stored message carries the attachment URL, never the bytes.
func (h *ChatHandler) SendAttachment(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file", "details": err.Error()})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file", "details": err.Error()})
		return
	}
	defer file.Close()

	sessionID := c.Param("id")
	url, err := h.Attachments.UploadAttachment(c.Request.Context(), sessionID, file, fileHeader.Filename)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upload attachment", "details": err.Error()})
		return
	}

	msg, err := h.Channel.Send(c.Request.Context(), sessionID, middleware.ActorID(c), models.MessageImage, url)
	if err != nil {
		h.writeChatError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// History returns messages after a sequence position.
func (h *ChatHandler) History(c *gin.Context) {
	afterSeq, _ := strconv.ParseInt(c.DefaultQuery("afterSeq", "0"), 10, 64)
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "0"), 10, 64)

	msgs, err := h.Channel.History(c.Request.Context(), c.Param("id"), middleware.ActorID(c), afterSeq, limit)
	if err != nil {
		h.writeChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkRead advances the caller's read pointer.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	var input struct {
		UpToSeq int64 `json:"upToSeq" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	if err := h.Channel.MarkRead(c.Request.Context(), c.Param("id"), middleware.ActorID(c), input.UpToSeq); err != nil {
		h.writeChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"upToSeq": input.UpToSeq})
}
