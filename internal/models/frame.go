package models

import (
	"encoding/json"
	"fmt"
)

// Push channel frame types.
const (
	FrameJoinEvent         = "join-event"
	FrameLeaveEvent        = "leave-event"
	FrameNewMessage        = "new-message"
	FrameMessageDeleted    = "message-deleted"
	FrameEventUpdated      = "event-updated"
	FrameEventDeleted      = "event-deleted"
	FrameParticipantJoined = "participant-joined"
	FrameParticipantLeft   = "participant-left"
)

// Frame is the envelope exchanged over every push transport.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a frame of the given type.
func NewFrame(frameType string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s frame: %w", frameType, err)
	}
	return Frame{Type: frameType, Data: raw}, nil
}

// ID decodes frames whose payload is a bare identifier.
func (f Frame) ID() (int, error) {
	var id int
	if err := json.Unmarshal(f.Data, &id); err != nil {
		return 0, fmt.Errorf("decode %s id: %w", f.Type, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("decode %s id: non-positive id %d", f.Type, id)
	}
	return id, nil
}

// Message decodes a new-message payload.
func (f Frame) Message() (Message, error) {
	var msg Message
	if err := json.Unmarshal(f.Data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode %s message: %w", f.Type, err)
	}
	if msg.ID <= 0 || msg.EventID <= 0 {
		return Message{}, fmt.Errorf("decode %s message: missing id or event id", f.Type)
	}
	return msg, nil
}

// Event decodes an event-updated or participant-* payload.
func (f Frame) Event() (Event, error) {
	var ev Event
	if err := json.Unmarshal(f.Data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode %s event: %w", f.Type, err)
	}
	if ev.ID <= 0 {
		return Event{}, fmt.Errorf("decode %s event: missing id", f.Type)
	}
	return ev, nil
}
