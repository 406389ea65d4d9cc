// Package cache holds the client's materialized view of event chats and
// event lists, and the reducers that merge push frames into it.
package cache

import (
	"errors"
	"fmt"

	"event-chat-service/internal/models"
)

// ErrMalformedFrame is returned for push frames whose payload cannot be
// decoded or whose type is unknown.
var ErrMalformedFrame = errors.New("malformed push frame")

// EventState is the cached view of one event: its chat messages and the
// event object. A nil Event means the event is not cached.
type EventState struct {
	Messages []models.Message
	Event    *models.Event
}

// ListKey identifies a cached event list such as "events created by user 3".
type ListKey struct {
	UserID int
	Kind   models.UserEventsKind
}

// List is one cached event list. Stale lists must be re-fetched.
type List struct {
	Events []models.Event
	Stale  bool
}

// Lists maps every cached list by key.
type Lists map[ListKey]List

// AppendMessage appends msg unless a message with the same id is present.
func AppendMessage(list []models.Message, msg models.Message) []models.Message {
	for _, m := range list {
		if m.ID == msg.ID {
			return list
		}
	}
	out := make([]models.Message, len(list), len(list)+1)
	copy(out, list)
	return append(out, msg)
}

// RemoveMessage drops the message with the given id. An absent id leaves the
// list unchanged.
func RemoveMessage(list []models.Message, id int) []models.Message {
	for i, m := range list {
		if m.ID != id {
			continue
		}
		out := make([]models.Message, 0, len(list)-1)
		out = append(out, list[:i]...)
		return append(out, list[i+1:]...)
	}
	return list
}

// Pushed records the message ids that push frames added or removed while a
// fetch of the same chat was in flight.
type Pushed struct {
	Added   map[int]struct{}
	Removed map[int]struct{}
}

// ReconcileMessages replaces the cached chat with a fetched one. The fetched
// list wins: cached messages survive only when a push added them during the
// fetch, and fetched messages that a push removed during the fetch are
// dropped.
func ReconcileMessages(fetched, cached []models.Message, pushed Pushed) []models.Message {
	out := make([]models.Message, 0, len(fetched))
	for _, m := range fetched {
		if _, removed := pushed.Removed[m.ID]; removed {
			continue
		}
		out = AppendMessage(out, m)
	}
	for _, m := range cached {
		if _, added := pushed.Added[m.ID]; added {
			out = AppendMessage(out, m)
		}
	}
	return out
}

// ReduceEvent merges one push frame into an event's state. participant-*
// frames take the event-updated path. The event object is only replaced when
// it is cached; event-deleted evicts the whole state.
func ReduceEvent(state EventState, frame models.Frame) (EventState, error) {
	switch frame.Type {
	case models.FrameNewMessage:
		msg, err := frame.Message()
		if err != nil {
			return state, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		state.Messages = AppendMessage(state.Messages, msg)
	case models.FrameMessageDeleted:
		id, err := frame.ID()
		if err != nil {
			return state, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		state.Messages = RemoveMessage(state.Messages, id)
	case models.FrameEventUpdated, models.FrameParticipantJoined, models.FrameParticipantLeft:
		ev, err := frame.Event()
		if err != nil {
			return state, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if state.Event != nil {
			state.Event = &ev
		}
	case models.FrameEventDeleted:
		if _, err := frame.ID(); err != nil {
			return state, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return EventState{}, nil
	default:
		return state, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, frame.Type)
	}
	return state, nil
}

// PatchLists replaces every cached copy of ev, matched by id. Lists that do
// not contain the event are shared with the input.
func PatchLists(lists Lists, ev models.Event) Lists {
	out := make(Lists, len(lists))
	for key, list := range lists {
		out[key] = list
		for i, cached := range list.Events {
			if cached.ID != ev.ID {
				continue
			}
			events := make([]models.Event, len(list.Events))
			copy(events, list.Events)
			events[i] = ev
			out[key] = List{Events: events, Stale: list.Stale}
			break
		}
	}
	return out
}

// MarkStale flags every list for re-fetch.
func MarkStale(lists Lists) Lists {
	out := make(Lists, len(lists))
	for key, list := range lists {
		list.Stale = true
		out[key] = list
	}
	return out
}

// ReduceLists applies the list-level effect of a push frame.
func ReduceLists(lists Lists, frame models.Frame) (Lists, error) {
	switch frame.Type {
	case models.FrameEventUpdated, models.FrameParticipantJoined, models.FrameParticipantLeft:
		ev, err := frame.Event()
		if err != nil {
			return lists, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return PatchLists(lists, ev), nil
	case models.FrameEventDeleted:
		return MarkStale(lists), nil
	}
	return lists, nil
}

// frameEventID returns the event a frame belongs to, or 0 when the payload
// does not name one (message-deleted carries only the message id).
func frameEventID(frame models.Frame) (int, error) {
	switch frame.Type {
	case models.FrameNewMessage:
		msg, err := frame.Message()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return msg.EventID, nil
	case models.FrameMessageDeleted:
		if _, err := frame.ID(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return 0, nil
	case models.FrameEventUpdated, models.FrameParticipantJoined, models.FrameParticipantLeft:
		ev, err := frame.Event()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return ev.ID, nil
	case models.FrameEventDeleted:
		id, err := frame.ID()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return id, nil
	}
	return 0, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, frame.Type)
}
