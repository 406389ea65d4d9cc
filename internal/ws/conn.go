package ws

import (
	"sync"
	"time"

	"event-chat-service/internal/observability"
)

// Transport names reported in metrics and lifecycle events.
const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"
)

// Conn is one admitted push channel session. Principal is bound at the
// handshake and never changes.
type Conn struct {
	ID          string
	Principal   int
	Transport   string
	ConnectedAt time.Time

	info      observability.WSLifecycle
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newConn(id string, principal int, transport string, buffer int, info observability.WSLifecycle) *Conn {
	now := time.Now()
	info.ConnID = id
	info.Transport = transport
	info.UserID = principal
	info.ConnectedAt = now
	return &Conn{
		ID:          id,
		Principal:   principal,
		Transport:   transport,
		ConnectedAt: now,
		info:        info,
		send:        make(chan []byte, buffer),
		closed:      make(chan struct{}),
	}
}

// Authenticated reports whether the handshake bound a principal.
func (c *Conn) Authenticated() bool {
	return c.Principal > 0
}

// Done is closed once the connection has been torn down.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// enqueue queues payload without blocking. It fails when the connection is
// closed or its send buffer is full.
func (c *Conn) enqueue(payload []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// drain returns every frame currently queued.
func (c *Conn) drain(first []byte) [][]byte {
	out := [][]byte{first}
	for {
		select {
		case payload := <-c.send:
			out = append(out, payload)
		default:
			return out
		}
	}
}

func (c *Conn) close() bool {
	closed := false
	c.closeOnce.Do(func() {
		close(c.closed)
		closed = true
	})
	return closed
}
