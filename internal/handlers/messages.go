package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"event-chat-service/internal/models"
	"event-chat-service/internal/repositories"
	"event-chat-service/internal/telemetry"
)

// MessageHandler serves event chat messages.
type MessageHandler struct {
	eventRepo   repositories.EventRepository
	messageRepo repositories.MessageRepository
	notifier    Broadcaster
	audit       *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(eventRepo repositories.EventRepository, messageRepo repositories.MessageRepository, notifier Broadcaster, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		eventRepo:   eventRepo,
		messageRepo: messageRepo,
		notifier:    notifier,
		audit:       audit,
	}
}

// Register mounts the message routes.
func (h *MessageHandler) Register(rg gin.IRoutes) {
	rg.GET("/events/:event_id/messages", h.ListMessages)
	rg.POST("/events/:event_id/messages", h.PostMessage)
	rg.DELETE("/messages/:message_id", h.DeleteMessage)
}

// ListMessages returns an event's chat ordered by creation time.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	eventID, ok := parseIDParam(c, "event_id", "event")
	if !ok {
		return
	}

	msgs, err := h.messageRepo.ListMessages(c.Request.Context(), eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if len(msgs) == 0 {
		if _, err := h.eventRepo.GetEvent(c.Request.Context(), eventID); err != nil {
			respondEventError(c, err)
			return
		}
		msgs = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage stores a message from a participant or the creator and pushes
// it to the event's room.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	eventID, ok := parseIDParam(c, "event_id", "event")
	if !ok {
		return
	}

	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	userID := c.GetInt("userID")
	allowed, err := h.eventRepo.CanWrite(c.Request.Context(), eventID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !allowed {
		if _, err := h.eventRepo.GetEvent(c.Request.Context(), eventID); err != nil {
			respondEventError(c, err)
			return
		}
		emitAudit(c, h.audit, "WARN", "message rejected: not a participant", eventResource(eventID))
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this event"})
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), eventID, userID, text)
	if err != nil {
		emitAudit(c, h.audit, "ERROR", "internal error", eventResource(eventID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.notifier.MessageCreated(c.Request.Context(), msg)
	emitAudit(c, h.audit, "INFO", "event message created", messageResource(msg.ID))
	c.JSON(http.StatusCreated, msg)
}

// DeleteMessage removes one of the caller's messages.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID, ok := parseIDParam(c, "message_id", "message")
	if !ok {
		return
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}
	if msg.UserID != c.GetInt("userID") {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the author can delete a message"})
		return
	}

	if err := h.messageRepo.DeleteMessage(c.Request.Context(), messageID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not delete message"})
		return
	}

	h.notifier.MessageDeleted(c.Request.Context(), msg.EventID, messageID)
	emitAudit(c, h.audit, "INFO", "event message deleted", messageResource(messageID))
	c.Status(http.StatusNoContent)
}

func respondEventError(c *gin.Context, err error) {
	if errors.Is(err, repositories.ErrEventNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load event"})
}
