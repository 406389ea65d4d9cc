package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"event-chat-service/internal/models"
)

var ErrEventNotFound = errors.New("event not found")

// EventRepository abstracts event and participant persistence.
type EventRepository interface {
	CreateEvent(ctx context.Context, creatorID int, title, description, location string, eventDate time.Time) (models.Event, error)
	GetEvent(ctx context.Context, eventID int) (models.Event, error)
	UpdateEvent(ctx context.Context, eventID int, patch models.EventPatch) (models.Event, error)
	DeleteEvent(ctx context.Context, eventID int) error
	AddParticipant(ctx context.Context, eventID int, userID int) (models.Event, error)
	RemoveParticipant(ctx context.Context, eventID int, userID int) (models.Event, error)
	CanWrite(ctx context.Context, eventID int, userID int) (bool, error)
	ListUserEvents(ctx context.Context, userID int, kind models.UserEventsKind) ([]models.Event, error)
}

// EventRepo is a sqlx implementation of EventRepository.
type EventRepo struct {
	db *sqlx.DB
}

// NewEventRepo constructs an EventRepo.
func NewEventRepo(db *sqlx.DB) *EventRepo {
	return &EventRepo{db: db}
}

const eventColumns = `id, title, description, location, event_date, creator_id, created_at, updated_at`

// CreateEvent stores a new event owned by creatorID.
func (r *EventRepo) CreateEvent(ctx context.Context, creatorID int, title, description, location string, eventDate time.Time) (models.Event, error) {
	var ev models.Event
	err := r.db.GetContext(ctx, &ev, `INSERT INTO events (title, description, location, event_date, creator_id)
        VALUES ($1, $2, $3, $4, $5) RETURNING `+eventColumns, title, description, location, eventDate, creatorID)
	if err != nil {
		return models.Event{}, err
	}
	ev.Participants = []models.Participant{}
	return ev, nil
}

// GetEvent fetches an event with its participants.
func (r *EventRepo) GetEvent(ctx context.Context, eventID int) (models.Event, error) {
	var ev models.Event
	err := r.db.GetContext(ctx, &ev, `SELECT `+eventColumns+` FROM events WHERE id=$1`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Event{}, ErrEventNotFound
	}
	if err != nil {
		return models.Event{}, err
	}
	participants, err := r.participants(ctx, eventID)
	if err != nil {
		return models.Event{}, err
	}
	ev.Participants = participants
	return ev, nil
}

func (r *EventRepo) participants(ctx context.Context, eventID int) ([]models.Participant, error) {
	participants := []models.Participant{}
	err := r.db.SelectContext(ctx, &participants, `SELECT u.id, u.username FROM event_participants ep
        JOIN users u ON u.id = ep.user_id
        WHERE ep.event_id=$1 ORDER BY ep.created_at ASC`, eventID)
	return participants, err
}

// UpdateEvent applies the non-nil fields of patch.
func (r *EventRepo) UpdateEvent(ctx context.Context, eventID int, patch models.EventPatch) (models.Event, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE events SET
            title = COALESCE($2, title),
            description = COALESCE($3, description),
            location = COALESCE($4, location),
            event_date = COALESCE($5, event_date),
            updated_at = NOW()
        WHERE id=$1`, eventID, patch.Title, patch.Description, patch.Location, patch.EventDate)
	if err != nil {
		return models.Event{}, err
	}
	if err := requireRow(res, ErrEventNotFound); err != nil {
		return models.Event{}, err
	}
	return r.GetEvent(ctx, eventID)
}

// DeleteEvent removes an event; messages and participants cascade.
func (r *EventRepo) DeleteEvent(ctx context.Context, eventID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id=$1`, eventID)
	if err != nil {
		return err
	}
	return requireRow(res, ErrEventNotFound)
}

// AddParticipant registers userID for the event and returns the refreshed event.
func (r *EventRepo) AddParticipant(ctx context.Context, eventID int, userID int) (models.Event, error) {
	if _, err := r.GetEvent(ctx, eventID); err != nil {
		return models.Event{}, err
	}
	if _, err := r.db.ExecContext(ctx, `INSERT INTO event_participants (event_id, user_id) VALUES ($1, $2)
        ON CONFLICT (event_id, user_id) DO NOTHING`, eventID, userID); err != nil {
		return models.Event{}, fmt.Errorf("add participant: %w", err)
	}
	return r.GetEvent(ctx, eventID)
}

// RemoveParticipant unregisters userID and returns the refreshed event.
func (r *EventRepo) RemoveParticipant(ctx context.Context, eventID int, userID int) (models.Event, error) {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM event_participants WHERE event_id=$1 AND user_id=$2`, eventID, userID); err != nil {
		return models.Event{}, fmt.Errorf("remove participant: %w", err)
	}
	return r.GetEvent(ctx, eventID)
}

// CanWrite reports whether the user is a participant or the creator.
func (r *EventRepo) CanWrite(ctx context.Context, eventID int, userID int) (bool, error) {
	var allowed bool
	err := r.db.GetContext(ctx, &allowed, `SELECT EXISTS(
            SELECT 1 FROM events WHERE id=$1 AND creator_id=$2
            UNION ALL
            SELECT 1 FROM event_participants WHERE event_id=$1 AND user_id=$2)`, eventID, userID)
	return allowed, err
}

// ListUserEvents returns the events a user created or attends.
func (r *EventRepo) ListUserEvents(ctx context.Context, userID int, kind models.UserEventsKind) ([]models.Event, error) {
	var query string
	switch kind {
	case models.UserEventsCreated:
		query = `SELECT ` + eventColumns + ` FROM events WHERE creator_id=$1 ORDER BY event_date ASC`
	case models.UserEventsAttending:
		query = `SELECT e.id, e.title, e.description, e.location, e.event_date, e.creator_id, e.created_at, e.updated_at
            FROM events e JOIN event_participants ep ON ep.event_id = e.id
            WHERE ep.user_id=$1 ORDER BY e.event_date ASC`
	default:
		return nil, fmt.Errorf("unknown user events kind %q", kind)
	}

	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, userID); err != nil {
		return nil, err
	}
	for i := range events {
		participants, err := r.participants(ctx, events[i].ID)
		if err != nil {
			return nil, err
		}
		events[i].Participants = participants
	}
	return events, nil
}

func requireRow(res sql.Result, notFound error) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}
