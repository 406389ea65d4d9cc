package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"event-chat-service/internal/telemetry"
	"event-chat-service/internal/ws"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, hub *ws.Hub, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", "", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/rooms/:event_id", func(c *gin.Context) {
		eventID, ok := parseIDParam(c, "event_id", "event")
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"event_id":    eventID,
			"members":     hub.Registry().Members(eventID),
			"connections": hub.Registry().Len(),
		})
	})
}
