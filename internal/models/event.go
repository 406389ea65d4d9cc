package models

import "time"

// Participant is a user attending an event.
type Participant struct {
	ID       int    `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
}

// Event is the full event object pushed on every event-level notification.
type Event struct {
	ID           int           `db:"id" json:"id"`
	Title        string        `db:"title" json:"title"`
	Description  string        `db:"description" json:"description"`
	Location     string        `db:"location" json:"location"`
	EventDate    time.Time     `db:"event_date" json:"eventDate"`
	CreatorID    int           `db:"creator_id" json:"creatorId"`
	CreatedAt    time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updatedAt"`
	Participants []Participant `db:"-" json:"participants"`
}

// HasParticipant reports whether userID attends the event.
func (e Event) HasParticipant(userID int) bool {
	for _, p := range e.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// EventPatch carries the mutable event fields; nil means unchanged.
type EventPatch struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	EventDate   *time.Time `json:"eventDate"`
}

// UserEventsKind selects which of a user's event lists is requested.
type UserEventsKind string

const (
	UserEventsCreated   UserEventsKind = "created"
	UserEventsAttending UserEventsKind = "attending"
)

// Valid reports whether the kind is one of the known list kinds.
func (k UserEventsKind) Valid() bool {
	return k == UserEventsCreated || k == UserEventsAttending
}
