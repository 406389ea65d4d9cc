package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"event-chat-service/internal/models"
	"event-chat-service/internal/repositories"
	"event-chat-service/internal/telemetry"
)

// EventHandler serves events and their participant lists. Every mutation is
// pushed after it is persisted.
type EventHandler struct {
	eventRepo repositories.EventRepository
	notifier  Broadcaster
	audit     *telemetry.AuditEmitter
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(eventRepo repositories.EventRepository, notifier Broadcaster, audit *telemetry.AuditEmitter) *EventHandler {
	return &EventHandler{eventRepo: eventRepo, notifier: notifier, audit: audit}
}

// Register mounts the event routes.
func (h *EventHandler) Register(rg gin.IRoutes) {
	rg.POST("/events", h.CreateEvent)
	rg.GET("/events/:event_id", h.GetEvent)
	rg.PATCH("/events/:event_id", h.UpdateEvent)
	rg.DELETE("/events/:event_id", h.DeleteEvent)
	rg.POST("/events/:event_id/participants", h.JoinEvent)
	rg.DELETE("/events/:event_id/participants", h.LeaveEvent)
	rg.GET("/users/:user_id/events", h.ListUserEvents)
}

// CreateEvent handles POST /events.
func (h *EventHandler) CreateEvent(c *gin.Context) {
	var req struct {
		Title       string    `json:"title" binding:"required"`
		Description string    `json:"description"`
		Location    string    `json:"location"`
		EventDate   time.Time `json:"eventDate" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		emitAudit(c, h.audit, "ERROR", "invalid request payload", "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	ev, err := h.eventRepo.CreateEvent(c.Request.Context(), c.GetInt("userID"), title, req.Description, req.Location, req.EventDate)
	if err != nil {
		emitAudit(c, h.audit, "ERROR", "internal error", "")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create event"})
		return
	}

	emitAudit(c, h.audit, "INFO", "event created", eventResource(ev.ID))
	c.JSON(http.StatusCreated, ev)
}

// GetEvent returns an event with its participants.
func (h *EventHandler) GetEvent(c *gin.Context) {
	eventID, ok := parseIDParam(c, "event_id", "event")
	if !ok {
		return
	}
	ev, err := h.eventRepo.GetEvent(c.Request.Context(), eventID)
	if err != nil {
		respondEventError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// UpdateEvent applies a partial update (creator only).
func (h *EventHandler) UpdateEvent(c *gin.Context) {
	ev, ok := h.loadOwned(c)
	if !ok {
		return
	}

	var patch models.EventPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title cannot be empty"})
		return
	}

	updated, err := h.eventRepo.UpdateEvent(c.Request.Context(), ev.ID, patch)
	if err != nil {
		respondEventError(c, err)
		return
	}

	h.notifier.EventUpdated(c.Request.Context(), updated)
	emitAudit(c, h.audit, "INFO", "event updated", eventResource(ev.ID))
	c.JSON(http.StatusOK, updated)
}

// DeleteEvent removes an event (creator only).
func (h *EventHandler) DeleteEvent(c *gin.Context) {
	ev, ok := h.loadOwned(c)
	if !ok {
		return
	}

	if err := h.eventRepo.DeleteEvent(c.Request.Context(), ev.ID); err != nil {
		respondEventError(c, err)
		return
	}

	h.notifier.EventDeleted(c.Request.Context(), ev.ID)
	emitAudit(c, h.audit, "INFO", "event deleted", eventResource(ev.ID))
	c.Status(http.StatusNoContent)
}

// JoinEvent registers the caller as a participant.
func (h *EventHandler) JoinEvent(c *gin.Context) {
	eventID, ok := parseIDParam(c, "event_id", "event")
	if !ok {
		return
	}

	ev, err := h.eventRepo.AddParticipant(c.Request.Context(), eventID, c.GetInt("userID"))
	if err != nil {
		respondEventError(c, err)
		return
	}

	h.notifier.ParticipantJoined(c.Request.Context(), ev)
	emitAudit(c, h.audit, "INFO", "participant joined", eventResource(eventID))
	c.JSON(http.StatusOK, ev)
}

// LeaveEvent removes the caller from the participants.
func (h *EventHandler) LeaveEvent(c *gin.Context) {
	eventID, ok := parseIDParam(c, "event_id", "event")
	if !ok {
		return
	}

	ev, err := h.eventRepo.RemoveParticipant(c.Request.Context(), eventID, c.GetInt("userID"))
	if err != nil {
		respondEventError(c, err)
		return
	}

	h.notifier.ParticipantLeft(c.Request.Context(), ev)
	emitAudit(c, h.audit, "INFO", "participant left", eventResource(eventID))
	c.JSON(http.StatusOK, ev)
}

// ListUserEvents handles GET /users/:user_id/events?type=created|attending.
func (h *EventHandler) ListUserEvents(c *gin.Context) {
	userID, ok := parseIDParam(c, "user_id", "user")
	if !ok {
		return
	}
	kind := models.UserEventsKind(c.DefaultQuery("type", string(models.UserEventsCreated)))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be created or attending"})
		return
	}

	events, err := h.eventRepo.ListUserEvents(c.Request.Context(), userID, kind)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load events"})
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *EventHandler) loadOwned(c *gin.Context) (models.Event, bool) {
	eventID, ok := parseIDParam(c, "event_id", "event")
	if !ok {
		return models.Event{}, false
	}
	ev, err := h.eventRepo.GetEvent(c.Request.Context(), eventID)
	if err != nil {
		respondEventError(c, err)
		return models.Event{}, false
	}
	if ev.CreatorID != c.GetInt("userID") {
		emitAudit(c, h.audit, "WARN", "event change rejected: not the creator", eventResource(eventID))
		c.JSON(http.StatusForbidden, gin.H{"error": "only the creator can change this event"})
		return models.Event{}, false
	}
	return ev, true
}
