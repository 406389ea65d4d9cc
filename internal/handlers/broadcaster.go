package handlers

import (
	"context"

	"event-chat-service/internal/models"
)

// Broadcaster pushes notifications after a change has been persisted.
// ws.Notifier implements it.
type Broadcaster interface {
	MessageCreated(ctx context.Context, msg models.Message)
	MessageDeleted(ctx context.Context, eventID, messageID int)
	EventUpdated(ctx context.Context, ev models.Event)
	EventDeleted(ctx context.Context, eventID int)
	ParticipantJoined(ctx context.Context, ev models.Event)
	ParticipantLeft(ctx context.Context, ev models.Event)
}
