package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-chat-service/internal/auth"
	"event-chat-service/internal/models"
)

const testSecret = "test-secret"

type wsFixture struct {
	hub      *Hub
	notifier *Notifier
	verifier *auth.Verifier
	server   *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(nil)
	notifier := NewNotifier(nil)
	notifier.Attach(hub)
	verifier := auth.NewVerifier(testSecret)

	r := gin.New()
	r.GET("/ws", NewWebSocketHandler(hub, verifier, Options{}, nil).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return &wsFixture{hub: hub, notifier: notifier, verifier: verifier, server: srv}
}

func (f *wsFixture) token(t *testing.T, userID int) string {
	t.Helper()
	tok, err := f.verifier.Issue(userID, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *wsFixture) dial(t *testing.T, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func readFrame(t *testing.T, c *websocket.Conn) models.Frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f models.Frame
	require.NoError(t, c.ReadJSON(&f))
	return f
}

func (f *wsFixture) waitMembers(t *testing.T, eventID, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(f.hub.Registry().Members(eventID)) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandshakeWithoutTokenIsRejected(t *testing.T) {
	f := newWSFixture(t)

	conn, resp, err := f.dial(t, "")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Nil(t, conn)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, f.hub.Registry().Len())
}

func TestHandshakeWithBadTokenIsRejected(t *testing.T) {
	f := newWSFixture(t)
	other := auth.NewVerifier("other-secret")
	tok, err := other.Issue(1, time.Hour)
	require.NoError(t, err)

	_, resp, err := f.dial(t, tok)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestJoinedClientReceivesNewMessage(t *testing.T) {
	f := newWSFixture(t)

	conn, _, err := f.dial(t, f.token(t, 1))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": models.FrameJoinEvent, "data": 42}))
	f.waitMembers(t, 42, 1)

	f.notifier.MessageCreated(context.Background(), models.Message{ID: 1, EventID: 42, Message: "hi"})

	frame := readFrame(t, conn)
	assert.Equal(t, models.FrameNewMessage, frame.Type)
	msg, err := frame.Message()
	require.NoError(t, err)
	assert.Equal(t, 1, msg.ID)
	assert.Equal(t, "hi", msg.Message)
}

func TestAbruptDisconnectDropsMembership(t *testing.T) {
	f := newWSFixture(t)

	a, _, err := f.dial(t, f.token(t, 1))
	require.NoError(t, err)
	b, _, err := f.dial(t, f.token(t, 2))
	require.NoError(t, err)
	defer b.Close()

	for _, c := range []*websocket.Conn{a, b} {
		require.NoError(t, c.WriteJSON(map[string]any{"type": models.FrameJoinEvent, "data": 42}))
	}
	f.waitMembers(t, 42, 2)

	// no close frame, just drop the socket
	require.NoError(t, a.UnderlyingConn().Close())
	f.waitMembers(t, 42, 1)
	require.Eventually(t, func() bool { return f.hub.Registry().Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	f.notifier.EventDeleted(context.Background(), 42)

	for i := 0; i < 2; i++ {
		frame := readFrame(t, b)
		assert.Equal(t, models.FrameEventDeleted, frame.Type)
		id, err := frame.ID()
		require.NoError(t, err)
		assert.Equal(t, 42, id)
	}
}

func TestReconnectRequiresRejoin(t *testing.T) {
	f := newWSFixture(t)
	tok := f.token(t, 1)

	first, _, err := f.dial(t, tok)
	require.NoError(t, err)
	require.NoError(t, first.WriteJSON(map[string]any{"type": models.FrameJoinEvent, "data": 42}))
	f.waitMembers(t, 42, 1)
	require.NoError(t, first.Close())
	f.waitMembers(t, 42, 0)

	second, _, err := f.dial(t, tok)
	require.NoError(t, err)
	defer second.Close()
	require.Eventually(t, func() bool { return f.hub.Registry().Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	f.notifier.MessageDeleted(context.Background(), 42, 3)
	require.NoError(t, second.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = second.ReadMessage()
	require.Error(t, err, "connection that did not rejoin must not receive group frames")
}
