package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"event-chat-service/internal/models"
)

// WebSocketTransport dials the server's /ws endpoint.
type WebSocketTransport struct {
	BaseURL   string
	Dialer    *websocket.Dialer
	WriteWait time.Duration
}

// NewWebSocketTransport creates a websocket transport for the server at
// baseURL (http or https).
func NewWebSocketTransport(baseURL string) *WebSocketTransport {
	return &WebSocketTransport{
		BaseURL:   baseURL,
		Dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		WriteWait: 10 * time.Second,
	}
}

func (t *WebSocketTransport) Name() string { return "websocket" }

func (t *WebSocketTransport) Dial(ctx context.Context, token string) (Session, error) {
	target, err := endpoint(t.BaseURL, "/ws", true)
	if err != nil {
		return nil, fmt.Errorf("websocket url: %w", err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := t.Dialer.DialContext(ctx, target, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrAuthRejected
		}
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	return &wsSession{conn: conn, writeWait: t.WriteWait}, nil
}

type wsSession struct {
	conn      *websocket.Conn
	writeWait time.Duration
	writeMu   sync.Mutex
}

func (s *wsSession) Send(ctx context.Context, frame models.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	deadline := time.Now().Add(s.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportLost, err)
	}
	return nil
}

func (s *wsSession) Recv() (models.Frame, error) {
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return models.Frame{}, fmt.Errorf("%w: %v", ErrTransportLost, err)
	}
	var frame models.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return models.Frame{}, fmt.Errorf("%w: %v", errMalformedPush, err)
	}
	return frame, nil
}

func (s *wsSession) Close() error {
	s.writeMu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return s.conn.Close()
}
