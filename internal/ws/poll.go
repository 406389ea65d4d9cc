package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"event-chat-service/internal/auth"
	"event-chat-service/internal/observability"
)

var errPollIdle = errors.New("poll session idle")

type pollSession struct {
	conn     *Conn
	lastSeen time.Time
}

// PollHandler is the long-poll fallback transport. A session is admitted by
// POST /poll/sessions and then polled with GET until it is deleted or goes
// idle.
type PollHandler struct {
	hub       *Hub
	validator auth.TokenValidator
	opts      Options
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*pollSession
	now      func() time.Time
}

// NewPollHandler constructs a PollHandler.
func NewPollHandler(hub *Hub, validator auth.TokenValidator, opts Options, logger *slog.Logger) *PollHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PollHandler{
		hub:       hub,
		validator: validator,
		opts:      opts.withDefaults(),
		logger:    logger,
		sessions:  make(map[string]*pollSession),
		now:       time.Now,
	}
}

// Register mounts the poll routes on the group.
func (h *PollHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/poll/sessions", h.Open)
	rg.GET("/poll/sessions/:sid", h.Poll)
	rg.POST("/poll/sessions/:sid", h.Submit)
	rg.DELETE("/poll/sessions/:sid", h.Close)
}

// Open authenticates the handshake and admits a polling connection.
func (h *PollHandler) Open(c *gin.Context) {
	userID, err := h.validator.ValidateToken(c.Request.Context(), auth.TokenFromRequest(c.Request))
	if err != nil {
		h.logger.Warn("poll authentication failed", "ip", observability.IPFromRequest(c.Request), "err", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrAuthRejected.Error()})
		return
	}

	conn := newConn(newConnID(), userID, TransportPolling, h.opts.SendBuffer, observability.WSLifecycle{
		DeviceID:  observability.DeviceIDFromRequest(c.Request),
		IP:        observability.IPFromRequest(c.Request),
		RequestID: observability.RequestIDFromRequest(c.Request),
		TraceID:   observability.TraceIDFromContext(c.Request.Context()),
	})

	h.mu.Lock()
	h.sessions[conn.ID] = &pollSession{conn: conn, lastSeen: h.now()}
	h.mu.Unlock()

	h.hub.Connect(conn)
	c.JSON(http.StatusCreated, gin.H{"sid": conn.ID})
}

// Poll waits up to the poll timeout for queued frames.
func (h *PollHandler) Poll(c *gin.Context) {
	conn, status := h.lookup(c.Param("sid"))
	if conn == nil {
		c.JSON(status, gin.H{"error": http.StatusText(status)})
		return
	}

	timer := time.NewTimer(h.opts.PollTimeout)
	defer timer.Stop()

	frames := []json.RawMessage{}
	select {
	case payload := <-conn.send:
		for _, p := range conn.drain(payload) {
			frames = append(frames, json.RawMessage(p))
		}
	case <-conn.Done():
		h.forget(conn.ID)
		c.JSON(http.StatusGone, gin.H{"error": "session closed"})
		return
	case <-timer.C:
	case <-c.Request.Context().Done():
		return
	}

	h.touch(conn.ID)
	c.JSON(http.StatusOK, gin.H{"frames": frames})
}

// Submit accepts one client frame.
func (h *PollHandler) Submit(c *gin.Context) {
	conn, status := h.lookup(c.Param("sid"))
	if conn == nil {
		c.JSON(status, gin.H{"error": http.StatusText(status)})
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, h.opts.MaxFrameSize+1))
	if err != nil || int64(len(raw)) > h.opts.MaxFrameSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "frame too large"})
		return
	}
	h.hub.HandleFrame(conn, raw)
	c.Status(http.StatusNoContent)
}

// Close disconnects the session.
func (h *PollHandler) Close(c *gin.Context) {
	conn, status := h.lookup(c.Param("sid"))
	if conn == nil {
		c.JSON(status, gin.H{"error": http.StatusText(status)})
		return
	}
	h.forget(conn.ID)
	h.hub.Disconnect(conn, nil)
	c.Status(http.StatusNoContent)
}

// Run sweeps idle and closed sessions until ctx is cancelled.
func (h *PollHandler) Run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.PollIdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

func (h *PollHandler) sweep() {
	cutoff := h.now().Add(-h.opts.PollIdleTimeout)
	var idle []*Conn

	h.mu.Lock()
	for id, s := range h.sessions {
		select {
		case <-s.conn.Done():
			delete(h.sessions, id)
			continue
		default:
		}
		if s.lastSeen.Before(cutoff) {
			idle = append(idle, s.conn)
			delete(h.sessions, id)
		}
	}
	h.mu.Unlock()

	for _, conn := range idle {
		h.hub.Disconnect(conn, errPollIdle)
	}
}

func (h *PollHandler) lookup(sid string) (*Conn, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[sid]
	if !ok {
		return nil, http.StatusNotFound
	}
	select {
	case <-s.conn.Done():
		delete(h.sessions, sid)
		return nil, http.StatusGone
	default:
	}
	s.lastSeen = h.now()
	return s.conn, http.StatusOK
}

func (h *PollHandler) touch(sid string) {
	h.mu.Lock()
	if s, ok := h.sessions[sid]; ok {
		s.lastSeen = h.now()
	}
	h.mu.Unlock()
}

func (h *PollHandler) forget(sid string) {
	h.mu.Lock()
	delete(h.sessions, sid)
	h.mu.Unlock()
}
