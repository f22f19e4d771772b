package models

import (
	"fmt"
	"time"
)

// StoredMessage is a persisted message row.
type StoredMessage struct {
	ID         int64     `db:"id"`
	ChannelKey string    `db:"channel_key"`
	SenderID   int64     `db:"sender_id"`
	SenderName string    `db:"sender_name"`
	ReceiverID int64     `db:"receiver_id"`
	Text       string    `db:"text"`
	PostID     int64     `db:"post_id"`
	CreatedAt  time.Time `db:"created_at"`
}

// Frame converts the row into its wire shape.
func (m StoredMessage) Frame() Frame {
	return Frame{
		Type:       FrameTypeMessage,
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		SenderName: m.SenderName,
		Text:       m.Text,
		PostID:     m.PostID,
		Date:       m.CreatedAt,
	}
}

// DirectChannelKey names the history of a two-party chat independent of who sends.
func DirectChannelKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("user.%d.%d", a, b)
}

// GroupChannelKey names the history of a group.
func GroupChannelKey(groupID int64) string {
	return fmt.Sprintf("group.%d", groupID)
}
