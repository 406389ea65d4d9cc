package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"event-chat-service/internal/models"
	"event-chat-service/internal/observability"
)

// Hub owns the membership registry and fans frames out to connections.
type Hub struct {
	registry *Registry
	logger   *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{registry: NewRegistry(logger), logger: logger}
}

// Registry exposes the membership registry for inspection.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Connect admits an authenticated connection.
func (h *Hub) Connect(c *Conn) {
	h.registry.Register(c)
	observability.IncWSActive(c.Transport)
	observability.IncWSEvent(c.Transport, "ws_connect")
	h.publishLifecycle(c, "ws_connect", "")
	h.logger.Info("user connected", "conn_id", c.ID, "user_id", c.Principal, "transport", c.Transport)
}

// Disconnect tears a connection down: every membership is dropped and the
// connection is closed. It runs once per connection; later calls return
// false. A non-nil cause marks an abnormal teardown.
func (h *Hub) Disconnect(c *Conn, cause error) bool {
	groups, ok := h.registry.Disconnect(c.ID)
	c.close()
	if !ok {
		return false
	}

	reason := ""
	if cause != nil {
		reason = cause.Error()
		observability.IncWSEvent(c.Transport, "ws_error")
		h.publishLifecycle(c, "ws_error", reason)
	}
	observability.DecWSActive(c.Transport)
	observability.IncWSEvent(c.Transport, "ws_disconnect")
	h.publishLifecycle(c, "ws_disconnect", reason)
	h.logger.Info("user disconnected", "conn_id", c.ID, "user_id", c.Principal, "groups", groups, "reason", reason)
	return true
}

// Join adds the connection to an event group.
func (h *Hub) Join(c *Conn, eventID int) error {
	joined, err := h.registry.Join(c.ID, eventID)
	if err != nil {
		return err
	}
	if joined {
		observability.IncGroupMembership("join")
	}
	return nil
}

// Leave removes the connection from an event group.
func (h *Hub) Leave(c *Conn, eventID int) {
	if h.registry.Leave(c.ID, eventID) {
		observability.IncGroupMembership("leave")
	}
}

// HandleFrame applies one client frame. Malformed or unknown frames are
// logged and dropped.
func (h *Hub) HandleFrame(c *Conn, raw []byte) {
	var frame models.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.logger.Warn("dropping malformed client frame", "conn_id", c.ID, "err", err)
		return
	}

	switch frame.Type {
	case models.FrameJoinEvent, models.FrameLeaveEvent:
		eventID, err := frame.ID()
		if err != nil {
			h.logger.Warn("dropping malformed client frame", "conn_id", c.ID, "type", frame.Type, "err", err)
			return
		}
		if frame.Type == models.FrameLeaveEvent {
			h.Leave(c, eventID)
			return
		}
		if err := h.Join(c, eventID); err != nil {
			h.logger.Warn("join ignored", "conn_id", c.ID, "event_id", eventID, "err", err)
		}
	default:
		h.logger.Warn("dropping unknown client frame", "conn_id", c.ID, "type", frame.Type)
	}
}

// PublishToGroup enqueues the frame for every connection in the event's group
// at call time. It returns the number of connections reached.
func (h *Hub) PublishToGroup(eventID int, frameType string, data any) (int, error) {
	payload, err := encodeFrame(frameType, data)
	if err != nil {
		return 0, err
	}
	return h.fanout("group", h.registry.snapshotGroup(eventID), payload), nil
}

// PublishToAll enqueues the frame for every connected connection, joined to
// a group or not.
func (h *Hub) PublishToAll(frameType string, data any) (int, error) {
	payload, err := encodeFrame(frameType, data)
	if err != nil {
		return 0, err
	}
	return h.fanout("all", h.registry.snapshotAll(), payload), nil
}

var errSendBufferFull = errors.New("send buffer full")

func (h *Hub) fanout(scope string, conns []*Conn, payload []byte) int {
	delivered := 0
	var failed []*Conn
	for _, c := range conns {
		if c.enqueue(payload) {
			delivered++
			continue
		}
		failed = append(failed, c)
	}
	for _, c := range failed {
		h.logger.Error("removing connection after failed send", "conn_id", c.ID, "user_id", c.Principal)
		h.Disconnect(c, errSendBufferFull)
	}
	observability.AddFanout(scope, delivered, len(failed))
	return delivered
}

// Shutdown disconnects every connection.
func (h *Hub) Shutdown() {
	conns := h.registry.snapshotAll()
	for _, c := range conns {
		h.Disconnect(c, nil)
	}
	h.logger.Info("hub shut down", "connections", len(conns))
}

func encodeFrame(frameType string, data any) ([]byte, error) {
	frame, err := models.NewFrame(frameType, data)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	return payload, nil
}

func (h *Hub) publishLifecycle(c *Conn, event, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = observability.PublishEvent(ctx, observability.WSRoutingKey, observability.WSEnvelope(c.info, event, reason))
}
