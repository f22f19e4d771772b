package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"chat-sync/internal/models"
)

// MessageRepository abstracts message persistence.
type MessageRepository interface {
	CreateMessage(ctx context.Context, channelKey string, senderID, receiverID int64, text string, postID int64) (models.StoredMessage, error)
	ListMessages(ctx context.Context, channelKey string) ([]models.StoredMessage, error)
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage inserts a message and returns the stored row.
func (r *MessageRepo) CreateMessage(ctx context.Context, channelKey string, senderID, receiverID int64, text string, postID int64) (models.StoredMessage, error) {
	var msg models.StoredMessage
	err := r.db.QueryRowxContext(ctx, `
        INSERT INTO chat_messages (channel_key, sender_id, receiver_id, text, post_id)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, channel_key, sender_id, receiver_id, text, post_id, created_at`,
		channelKey, senderID, receiverID, text, postID).
		Scan(&msg.ID, &msg.ChannelKey, &msg.SenderID, &msg.ReceiverID, &msg.Text, &msg.PostID, &msg.CreatedAt)
	if err != nil {
		return models.StoredMessage{}, err
	}
	_ = r.db.GetContext(ctx, &msg.SenderName, `SELECT username FROM users WHERE id=$1`, senderID)
	return msg, nil
}

// ListMessages returns a channel's history, oldest first.
func (r *MessageRepo) ListMessages(ctx context.Context, channelKey string) ([]models.StoredMessage, error) {
	msgs := []models.StoredMessage{}
	err := r.db.SelectContext(ctx, &msgs, `
        SELECT m.id, m.channel_key, m.sender_id, COALESCE(u.username, '') AS sender_name,
               m.receiver_id, m.text, m.post_id, m.created_at
        FROM chat_messages m
        LEFT JOIN users u ON u.id = m.sender_id
        WHERE m.channel_key=$1
        ORDER BY m.created_at ASC, m.id ASC`, channelKey)
	return msgs, err
}
