package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"event-chat-service/internal/models"
	"event-chat-service/internal/observability"
)

// Kind names a logical notification produced by a state change.
type Kind string

const (
	KindMessageCreated    Kind = "message-created"
	KindMessageDeleted    Kind = "message-deleted"
	KindEventUpdated      Kind = "event-updated"
	KindEventDeleted      Kind = "event-deleted"
	KindParticipantJoined Kind = "participant-joined"
	KindParticipantLeft   Kind = "participant-left"
)

// Route lists the frame sent to the event's group and the frame sent to every
// connection. An empty frame type skips that target.
type Route struct {
	Group string
	All   string
}

// Routes is the fan-out table. Event-level kinds also reach connections that
// never joined the room so list views stay current.
var Routes = map[Kind]Route{
	KindMessageCreated:    {Group: models.FrameNewMessage},
	KindMessageDeleted:    {Group: models.FrameMessageDeleted},
	KindEventUpdated:      {Group: models.FrameEventUpdated, All: models.FrameEventUpdated},
	KindEventDeleted:      {Group: models.FrameEventDeleted, All: models.FrameEventDeleted},
	KindParticipantJoined: {Group: models.FrameParticipantJoined, All: models.FrameEventUpdated},
	KindParticipantLeft:   {Group: models.FrameParticipantLeft, All: models.FrameEventUpdated},
}

var (
	ErrPublishUnready = errors.New("fan-out engine not initialized")
	ErrUnknownKind    = errors.New("unknown notification kind")
)

// Notifier is the entry point handlers use after persisting a change. Until
// a hub is attached every publish is dropped with a warning.
type Notifier struct {
	hub    atomic.Pointer[Hub]
	logger *slog.Logger
}

// NewNotifier creates a notifier with no hub attached.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

// Attach makes the hub the fan-out target.
func (n *Notifier) Attach(h *Hub) {
	n.hub.Store(h)
}

// Detach drops the fan-out target, for shutdown.
func (n *Notifier) Detach() {
	n.hub.Store(nil)
}

// Notify routes one notification. Errors are logged here; callers may
// ignore the return value.
func (n *Notifier) Notify(kind Kind, eventID int, data any) error {
	route, ok := Routes[kind]
	if !ok {
		n.logger.Error("cannot publish", "kind", kind, "err", ErrUnknownKind)
		return ErrUnknownKind
	}
	hub := n.hub.Load()
	if hub == nil {
		observability.IncPublishUnready()
		n.logger.Warn("push channel not ready, cannot publish", "kind", kind, "event_id", eventID)
		return ErrPublishUnready
	}

	var group, all int
	var err error
	if route.Group != "" {
		if group, err = hub.PublishToGroup(eventID, route.Group, data); err != nil {
			n.logger.Error("group publish failed", "kind", kind, "event_id", eventID, "err", err)
			return err
		}
	}
	if route.All != "" {
		if all, err = hub.PublishToAll(route.All, data); err != nil {
			n.logger.Error("broadcast publish failed", "kind", kind, "event_id", eventID, "err", err)
			return err
		}
	}
	n.logger.Info("published notification", "kind", kind, "event_id", eventID, "group_recipients", group, "all_recipients", all)
	return nil
}

func (n *Notifier) MessageCreated(_ context.Context, msg models.Message) {
	_ = n.Notify(KindMessageCreated, msg.EventID, msg)
}

func (n *Notifier) MessageDeleted(_ context.Context, eventID, messageID int) {
	_ = n.Notify(KindMessageDeleted, eventID, messageID)
}

func (n *Notifier) EventUpdated(_ context.Context, ev models.Event) {
	_ = n.Notify(KindEventUpdated, ev.ID, ev)
}

func (n *Notifier) EventDeleted(_ context.Context, eventID int) {
	_ = n.Notify(KindEventDeleted, eventID, eventID)
}

func (n *Notifier) ParticipantJoined(_ context.Context, ev models.Event) {
	_ = n.Notify(KindParticipantJoined, ev.ID, ev)
}

func (n *Notifier) ParticipantLeft(_ context.Context, ev models.Event) {
	_ = n.Notify(KindParticipantLeft, ev.ID, ev)
}
