package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"event-chat-service/internal/auth"
	"event-chat-service/internal/observability"
)

// Options tunes both push transports.
type Options struct {
	SendBuffer      int
	MaxFrameSize    int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PollTimeout     time.Duration
	PollIdleTimeout time.Duration
	AllowedOrigins  []string
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = 4096
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = 25 * time.Second
	}
	if o.PollIdleTimeout <= o.PollTimeout {
		o.PollIdleTimeout = 2 * o.PollTimeout
	}
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = []string{"*"}
	}
	return o
}

// WebSocketHandler admits full-duplex push connections.
type WebSocketHandler struct {
	hub       *Hub
	validator auth.TokenValidator
	opts      Options
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// NewWebSocketHandler constructs a WebSocketHandler.
func NewWebSocketHandler(hub *Hub, validator auth.TokenValidator, opts Options, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	return &WebSocketHandler{
		hub:       hub,
		validator: validator,
		opts:      opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		logger: logger,
	}
}

// Handle authenticates the handshake, upgrades the connection and starts its
// pumps. A rejected credential never reaches the upgrade.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("event-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.validator.ValidateToken(ctx, auth.TokenFromRequest(c.Request))
	if err != nil {
		h.logger.Warn("socket authentication failed", "ip", observability.IPFromRequest(c.Request), "err", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrAuthRejected.Error()})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "user_id", userID, "err", err)
		return
	}

	conn := newConn(newConnID(), userID, TransportWebSocket, h.opts.SendBuffer, observability.WSLifecycle{
		DeviceID:  observability.DeviceIDFromRequest(c.Request),
		IP:        observability.IPFromRequest(c.Request),
		RequestID: observability.RequestIDFromRequest(c.Request),
		TraceID:   observability.TraceIDFromContext(ctx),
	})
	h.hub.Connect(conn)

	go h.writePump(conn, ws)
	go h.readPump(conn, ws)
}

func (h *WebSocketHandler) readPump(conn *Conn, ws *websocket.Conn) {
	var cause error
	defer func() {
		h.hub.Disconnect(conn, cause)
		_ = ws.Close()
	}()

	ws.SetReadLimit(h.opts.MaxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if !isNormalClose(err) {
				cause = err
			}
			return
		}
		h.hub.HandleFrame(conn, raw)
	}
}

func (h *WebSocketHandler) writePump(conn *Conn, ws *websocket.Conn) {
	ticker := time.NewTicker(h.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case <-conn.Done():
			_ = ws.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case payload := <-conn.send:
			_ = ws.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Error("websocket write error", "conn_id", conn.ID, "err", err)
				h.hub.Disconnect(conn, err)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.Disconnect(conn, err)
				return
			}
		}
	}
}

func isNormalClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, websocket.ErrCloseSent)
}
