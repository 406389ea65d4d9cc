package client

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Room keeps one event's group membership alive across reconnects: it joins
// whenever the connection becomes connected.
type Room struct {
	conn    *Connection
	eventID int
	logger  *slog.Logger
	stop    func()
}

// JoinRoom starts tracking membership of eventID on conn. The join is
// deferred until the connection is connected.
func JoinRoom(conn *Connection, eventID int, logger *slog.Logger) *Room {
	return joinRoom(conn, eventID, logger, nil)
}

// joinRoom is JoinRoom with a hook run after every successful join, on the
// connection's goroutine.
func joinRoom(conn *Connection, eventID int, logger *slog.Logger, onJoined func()) *Room {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Room{conn: conn, eventID: eventID, logger: logger}
	r.stop = conn.Watch(func(state State) {
		if state != StateConnected {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := conn.Join(ctx, eventID); err != nil {
			r.logger.Warn("join event room failed", "event_id", eventID, "err", err)
			return
		}
		if onJoined != nil {
			onJoined()
		}
	})
	return r
}

// EventID returns the room's event.
func (r *Room) EventID() int {
	return r.eventID
}

// Close stops re-joining and leaves the group when still connected.
func (r *Room) Close(ctx context.Context) error {
	r.stop()
	err := r.conn.Leave(ctx, r.eventID)
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}
