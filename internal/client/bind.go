package client

import (
	"errors"
	"log/slog"

	"event-chat-service/internal/cache"
	"event-chat-service/internal/models"
)

// Bind feeds every push frame from conn into store. Malformed frames are
// logged and dropped. The returned function unbinds.
func Bind(conn *Connection, store *cache.Store, logger *slog.Logger) func() {
	if logger == nil {
		logger = slog.Default()
	}
	return conn.On("", func(frame models.Frame) {
		if err := store.Apply(frame); err != nil {
			if errors.Is(err, cache.ErrMalformedFrame) {
				logger.Warn("dropping malformed push frame", "type", frame.Type, "err", err)
				return
			}
			logger.Error("cache apply failed", "type", frame.Type, "err", err)
		}
	})
}
