package handler

import (
	"log/slog"
	"strings"

	"msgflow/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ServeEvents upgrades to a WebSocket that streams delivery events.
// ?types=scheduled_failed,message_logged narrows the stream.
func (h *Handler) ServeEvents(c *gin.Context) {
	var types []models.EventType
	for _, t := range strings.Split(c.Query("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, models.EventType(t))
		}
	}

	// one token may hold several connections
	subscriber := c.GetString(subjectKey) + "/" + uuid.NewString()
	if err := h.Events.ServeWS(c.Writer, c.Request, subscriber, types); err != nil {
		// the upgrader has already written an error response
		slog.Warn("event stream upgrade failed", slog.String("subscriber", subscriber), slog.String("error", err.Error()))
		c.Abort()
	}
}
