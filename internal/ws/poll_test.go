package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-chat-service/internal/auth"
	"event-chat-service/internal/models"
)

func setupPollRouter(t *testing.T) (*gin.Engine, *PollHandler, *Notifier, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil)
	notifier := NewNotifier(nil)
	notifier.Attach(hub)
	verifier := auth.NewVerifier(testSecret)
	handler := NewPollHandler(hub, verifier, Options{PollTimeout: 50 * time.Millisecond}, nil)

	r := gin.New()
	handler.Register(&r.RouterGroup)

	tok, err := verifier.Issue(1, time.Hour)
	require.NoError(t, err)
	return r, handler, notifier, tok
}

func openPollSession(t *testing.T, r *gin.Engine, token string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/poll/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		SID string `json:"sid"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.SID)
	return resp.SID
}

func TestPollOpenRequiresToken(t *testing.T) {
	r, _, _, _ := setupPollRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/poll/sessions", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPollJoinAndReceive(t *testing.T) {
	r, h, notifier, tok := setupPollRouter(t)
	sid := openPollSession(t, r, tok)

	req := httptest.NewRequest(http.MethodPost, "/poll/sessions/"+sid, strings.NewReader(`{"type":"join-event","data":42}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int{42}, h.hub.Registry().Groups(sid))

	notifier.MessageCreated(context.Background(), models.Message{ID: 1, EventID: 42, Message: "hi"})
	notifier.MessageDeleted(context.Background(), 42, 1)

	req = httptest.NewRequest(http.MethodGet, "/poll/sessions/"+sid, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Frames []models.Frame `json:"frames"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Frames, 2)
	assert.Equal(t, models.FrameNewMessage, resp.Frames[0].Type)
	assert.Equal(t, models.FrameMessageDeleted, resp.Frames[1].Type)
}

func TestPollTimeoutReturnsEmptyBatch(t *testing.T) {
	r, _, _, tok := setupPollRouter(t)
	sid := openPollSession(t, r, tok)

	req := httptest.NewRequest(http.MethodGet, "/poll/sessions/"+sid, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"frames":[]}`, rec.Body.String())
}

func TestPollUnknownAndClosedSessions(t *testing.T) {
	r, _, _, tok := setupPollRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/poll/sessions/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	sid := openPollSession(t, r, tok)
	req = httptest.NewRequest(http.MethodDelete, "/poll/sessions/"+sid, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/poll/sessions/"+sid, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPollSweepDisconnectsIdleSessions(t *testing.T) {
	r, h, _, tok := setupPollRouter(t)
	sid := openPollSession(t, r, tok)

	h.now = func() time.Time { return time.Now().Add(time.Hour) }
	h.sweep()

	_, ok := h.hub.Registry().Get(sid)
	assert.False(t, ok)

	req := httptest.NewRequest(http.MethodGet, "/poll/sessions/"+sid, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
