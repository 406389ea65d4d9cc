package models

import "time"

// Author is the display identity attached to a message.
type Author struct {
	ID        int     `db:"id" json:"id"`
	Username  string  `db:"username" json:"username"`
	Nickname  *string `db:"nickname" json:"nickname,omitempty"`
	AvatarURL *string `db:"avatar_url" json:"avatarUrl,omitempty"`
}

// DisplayName prefers the profile nickname over the username.
func (a Author) DisplayName() string {
	if a.Nickname != nil && *a.Nickname != "" {
		return *a.Nickname
	}
	if a.Username != "" {
		return a.Username
	}
	return "User"
}

// Message represents a chat message posted in an event room.
type Message struct {
	ID        int       `db:"id" json:"id"`
	EventID   int       `db:"event_id" json:"eventId"`
	UserID    int       `db:"user_id" json:"userId"`
	Message   string    `db:"message" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	User      *Author   `db:"-" json:"user,omitempty"`
}
