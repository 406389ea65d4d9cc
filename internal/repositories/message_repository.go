package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"event-chat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for event chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, eventID int, userID int, text string) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	ListMessages(ctx context.Context, eventID int) ([]models.Message, error)
	DeleteMessage(ctx context.Context, messageID int) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// messageRow is a message joined with its author's display identity.
type messageRow struct {
	models.Message
	AuthorUsername  string         `db:"author_username"`
	AuthorNickname  sql.NullString `db:"author_nickname"`
	AuthorAvatarURL sql.NullString `db:"author_avatar_url"`
}

func (r messageRow) toModel() models.Message {
	msg := r.Message
	author := &models.Author{ID: msg.UserID, Username: r.AuthorUsername}
	if r.AuthorNickname.Valid {
		nickname := r.AuthorNickname.String
		author.Nickname = &nickname
	}
	if r.AuthorAvatarURL.Valid {
		avatar := r.AuthorAvatarURL.String
		author.AvatarURL = &avatar
	}
	msg.User = author
	return msg
}

const selectMessageWithAuthor = `SELECT m.id, m.event_id, m.user_id, m.message, m.created_at, m.updated_at,
        u.username AS author_username, p.nickname AS author_nickname, p.avatar_url AS author_avatar_url
        FROM event_messages m
        JOIN users u ON u.id = m.user_id
        LEFT JOIN user_profiles p ON p.user_id = m.user_id`

// CreateMessage stores a message and returns it re-read with its author.
func (r *MessageRepo) CreateMessage(ctx context.Context, eventID int, userID int, text string) (models.Message, error) {
	var id int
	err := r.db.QueryRowxContext(ctx, `INSERT INTO event_messages (event_id, user_id, message) VALUES ($1, $2, $3) RETURNING id`, eventID, userID, text).
		Scan(&id)
	if err != nil {
		return models.Message{}, err
	}
	return r.GetMessage(ctx, id)
}

// GetMessage retrieves a single message with its author.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, selectMessageWithAuthor+` WHERE m.id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel(), nil
}

// ListMessages returns the event's messages in creation order.
func (r *MessageRepo) ListMessages(ctx context.Context, eventID int) ([]models.Message, error) {
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, selectMessageWithAuthor+` WHERE m.event_id=$1 ORDER BY m.created_at ASC, m.id ASC`, eventID); err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toModel())
	}
	return msgs, nil
}

// DeleteMessage removes a message.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM event_messages WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
