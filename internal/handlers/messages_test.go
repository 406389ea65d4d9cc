package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"event-chat-service/internal/mocks"
	"event-chat-service/internal/models"
	"event-chat-service/internal/repositories"
)

func setupRouter(userID int, register func(gin.IRoutes)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})
	register(r)
	return r
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestListMessagesSuccess(t *testing.T) {
	eventRepo := new(mocks.EventRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(eventRepo, messageRepo, new(mocks.BroadcasterMock), nil)
	router := setupRouter(1, handler.Register)

	messageRepo.On("ListMessages", mock.Anything, 42).Return([]models.Message{{ID: 1, EventID: 42, Message: "hi"}}, nil).Once()

	rec := serve(router, http.MethodGet, "/events/42/messages", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hi", resp.Messages[0].Message)
	messageRepo.AssertExpectations(t)
	eventRepo.AssertNotCalled(t, "GetEvent", mock.Anything, mock.Anything)
}

func TestListMessagesUnknownEvent(t *testing.T) {
	eventRepo := new(mocks.EventRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(eventRepo, messageRepo, new(mocks.BroadcasterMock), nil)
	router := setupRouter(1, handler.Register)

	messageRepo.On("ListMessages", mock.Anything, 42).Return(nil, nil).Once()
	eventRepo.On("GetEvent", mock.Anything, 42).Return(nil, repositories.ErrEventNotFound).Once()

	rec := serve(router, http.MethodGet, "/events/42/messages", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMessagesInvalidID(t *testing.T) {
	handler := NewMessageHandler(new(mocks.EventRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.BroadcasterMock), nil)
	router := setupRouter(1, handler.Register)

	rec := serve(router, http.MethodGet, "/events/abc/messages", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessageBroadcasts(t *testing.T) {
	eventRepo := new(mocks.EventRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	notifier := new(mocks.BroadcasterMock)
	handler := NewMessageHandler(eventRepo, messageRepo, notifier, nil)
	router := setupRouter(1, handler.Register)

	msg := models.Message{ID: 5, EventID: 42, UserID: 1, Message: "hi"}
	eventRepo.On("CanWrite", mock.Anything, 42, 1).Return(true, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, 42, 1, "hi").Return(msg, nil).Once()
	notifier.On("MessageCreated", mock.Anything, msg).Once()

	rec := serve(router, http.MethodPost, "/events/42/messages", `{"message":"  hi "}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var got models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 5, got.ID)
	eventRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestPostMessageRejectsBlankText(t *testing.T) {
	handler := NewMessageHandler(new(mocks.EventRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.BroadcasterMock), nil)
	router := setupRouter(1, handler.Register)

	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodPost, "/events/42/messages", `{"message":"   "}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodPost, "/events/42/messages", `{}`).Code)
}

func TestPostMessageNotParticipant(t *testing.T) {
	eventRepo := new(mocks.EventRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	notifier := new(mocks.BroadcasterMock)
	handler := NewMessageHandler(eventRepo, messageRepo, notifier, nil)
	router := setupRouter(3, handler.Register)

	eventRepo.On("CanWrite", mock.Anything, 42, 3).Return(false, nil).Once()
	eventRepo.On("GetEvent", mock.Anything, 42).Return(models.Event{ID: 42, CreatorID: 1}, nil).Once()

	rec := serve(router, http.MethodPost, "/events/42/messages", `{"message":"hi"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "MessageCreated", mock.Anything, mock.Anything)
}

func TestPostMessageUnknownEvent(t *testing.T) {
	eventRepo := new(mocks.EventRepositoryMock)
	handler := NewMessageHandler(eventRepo, new(mocks.MessageRepositoryMock), new(mocks.BroadcasterMock), nil)
	router := setupRouter(1, handler.Register)

	eventRepo.On("CanWrite", mock.Anything, 42, 1).Return(false, nil).Once()
	eventRepo.On("GetEvent", mock.Anything, 42).Return(nil, repositories.ErrEventNotFound).Once()

	rec := serve(router, http.MethodPost, "/events/42/messages", `{"message":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostMessageStoreError(t *testing.T) {
	eventRepo := new(mocks.EventRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	notifier := new(mocks.BroadcasterMock)
	publisher := new(mocks.PublisherMock)
	handler := NewMessageHandler(eventRepo, messageRepo, notifier, newTestAudit(publisher))
	router := setupRouter(1, handler.Register)

	eventRepo.On("CanWrite", mock.Anything, 42, 1).Return(true, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, 42, 1, "hi").Return(nil, assert.AnError).Once()
	publisher.On("Publish", mock.Anything, "audit.events", mock.Anything).Return(nil).Once()

	rec := serve(router, http.MethodPost, "/events/42/messages", `{"message":"hi"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	notifier.AssertNotCalled(t, "MessageCreated", mock.Anything, mock.Anything)
	publisher.AssertExpectations(t)
}

func TestDeleteMessageByAuthor(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	notifier := new(mocks.BroadcasterMock)
	handler := NewMessageHandler(new(mocks.EventRepositoryMock), messageRepo, notifier, nil)
	router := setupRouter(1, handler.Register)

	messageRepo.On("GetMessage", mock.Anything, 5).Return(models.Message{ID: 5, EventID: 42, UserID: 1}, nil).Once()
	messageRepo.On("DeleteMessage", mock.Anything, 5).Return(nil).Once()
	notifier.On("MessageDeleted", mock.Anything, 42, 5).Once()

	rec := serve(router, http.MethodDelete, "/messages/5", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	messageRepo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestDeleteMessageNotAuthor(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(new(mocks.EventRepositoryMock), messageRepo, new(mocks.BroadcasterMock), nil)
	router := setupRouter(2, handler.Register)

	messageRepo.On("GetMessage", mock.Anything, 5).Return(models.Message{ID: 5, EventID: 42, UserID: 1}, nil).Once()

	rec := serve(router, http.MethodDelete, "/messages/5", "")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "DeleteMessage", mock.Anything, mock.Anything)
}

func TestDeleteMessageNotFound(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(new(mocks.EventRepositoryMock), messageRepo, new(mocks.BroadcasterMock), nil)
	router := setupRouter(1, handler.Register)

	messageRepo.On("GetMessage", mock.Anything, 5).Return(nil, repositories.ErrMessageNotFound).Once()

	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodDelete, "/messages/5", "").Code)
}
