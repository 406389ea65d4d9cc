package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"event-chat-service/internal/models"
	"event-chat-service/internal/repositories"
)

type EventRepositoryMock struct {
	mock.Mock
}

func (m *EventRepositoryMock) CreateEvent(ctx context.Context, creatorID int, title, description, location string, eventDate time.Time) (models.Event, error) {
	args := m.Called(ctx, creatorID, title, description, location, eventDate)
	return eventArg(args, 0), args.Error(1)
}

func (m *EventRepositoryMock) GetEvent(ctx context.Context, eventID int) (models.Event, error) {
	args := m.Called(ctx, eventID)
	return eventArg(args, 0), args.Error(1)
}

func (m *EventRepositoryMock) UpdateEvent(ctx context.Context, eventID int, patch models.EventPatch) (models.Event, error) {
	args := m.Called(ctx, eventID, patch)
	return eventArg(args, 0), args.Error(1)
}

func (m *EventRepositoryMock) DeleteEvent(ctx context.Context, eventID int) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *EventRepositoryMock) AddParticipant(ctx context.Context, eventID int, userID int) (models.Event, error) {
	args := m.Called(ctx, eventID, userID)
	return eventArg(args, 0), args.Error(1)
}

func (m *EventRepositoryMock) RemoveParticipant(ctx context.Context, eventID int, userID int) (models.Event, error) {
	args := m.Called(ctx, eventID, userID)
	return eventArg(args, 0), args.Error(1)
}

func (m *EventRepositoryMock) CanWrite(ctx context.Context, eventID int, userID int) (bool, error) {
	args := m.Called(ctx, eventID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *EventRepositoryMock) ListUserEvents(ctx context.Context, userID int, kind models.UserEventsKind) ([]models.Event, error) {
	args := m.Called(ctx, userID, kind)
	var list []models.Event
	if val := args.Get(0); val != nil {
		list = val.([]models.Event)
	}
	return list, args.Error(1)
}

func eventArg(args mock.Arguments, i int) models.Event {
	var ev models.Event
	if val := args.Get(i); val != nil {
		ev = val.(models.Event)
	}
	return ev
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, eventID int, userID int, text string) (models.Message, error) {
	args := m.Called(ctx, eventID, userID, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, eventID int) ([]models.Message, error) {
	args := m.Called(ctx, eventID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID int) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

// BroadcasterMock records push notifications.
type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) MessageCreated(ctx context.Context, msg models.Message) {
	m.Called(ctx, msg)
}

func (m *BroadcasterMock) MessageDeleted(ctx context.Context, eventID, messageID int) {
	m.Called(ctx, eventID, messageID)
}

func (m *BroadcasterMock) EventUpdated(ctx context.Context, ev models.Event) {
	m.Called(ctx, ev)
}

func (m *BroadcasterMock) EventDeleted(ctx context.Context, eventID int) {
	m.Called(ctx, eventID)
}

func (m *BroadcasterMock) ParticipantJoined(ctx context.Context, ev models.Event) {
	m.Called(ctx, ev)
}

func (m *BroadcasterMock) ParticipantLeft(ctx context.Context, ev models.Event) {
	m.Called(ctx, ev)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

var (
	_ repositories.EventRepository   = (*EventRepositoryMock)(nil)
	_ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
)
