package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"event-chat-service/internal/cache"
	"event-chat-service/internal/models"
)

// ChatView is one open event chat: the cached message list kept current by
// pushes, plus sending through the API. The list is re-fetched after every
// join, including those after a reconnect, so changes made while the push
// channel was down are caught up.
type ChatView struct {
	api     *API
	store   *cache.Store
	room    *Room
	eventID int
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// OpenChat seeds the event's messages and joins its room.
func OpenChat(ctx context.Context, api *API, conn *Connection, store *cache.Store, eventID int, logger *slog.Logger) (*ChatView, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store.BeginSeed(eventID)
	msgs, err := api.FetchMessages(ctx, eventID)
	if err != nil {
		store.CancelSeed(eventID)
		return nil, err
	}
	store.SeedMessages(eventID, msgs)

	vctx, cancel := context.WithCancel(context.Background())
	v := &ChatView{
		api:     api,
		store:   store,
		eventID: eventID,
		logger:  logger,
		ctx:     vctx,
		cancel:  cancel,
	}
	v.room = joinRoom(conn, eventID, logger, v.resync)
	return v, nil
}

// resync re-fetches the chat in the background. Tracking starts before the
// fetch so pushes arriving after the join are kept.
func (v *ChatView) resync() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.store.BeginSeed(v.eventID)
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		ctx, cancel := context.WithTimeout(v.ctx, 15*time.Second)
		defer cancel()
		msgs, err := v.api.FetchMessages(ctx, v.eventID)
		if err != nil {
			v.store.CancelSeed(v.eventID)
			v.logger.Warn("chat catch-up failed", "event_id", v.eventID, "err", err)
			return
		}
		v.store.SeedMessages(v.eventID, msgs)
		v.logger.Debug("chat caught up", "event_id", v.eventID, "messages", len(msgs))
	}()
}

// Messages returns the cached chat.
func (v *ChatView) Messages() []models.Message {
	return v.store.Messages(v.eventID)
}

// Send creates a message and merges the response. On error nothing is
// cached and the caller keeps its input for a retry.
func (v *ChatView) Send(ctx context.Context, text string) (models.Message, error) {
	msg, err := v.api.CreateMessage(ctx, v.eventID, text)
	if err != nil {
		return models.Message{}, err
	}
	v.store.MergeMessage(msg)
	return msg, nil
}

// Delete removes one of the caller's messages.
func (v *ChatView) Delete(ctx context.Context, messageID int) error {
	if err := v.api.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	frame, err := models.NewFrame(models.FrameMessageDeleted, messageID)
	if err != nil {
		return err
	}
	return v.store.Apply(frame)
}

// Close leaves the room and waits for a catch-up fetch in progress.
func (v *ChatView) Close(ctx context.Context) error {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	v.cancel()

	err := v.room.Close(ctx)
	v.wg.Wait()
	return err
}
