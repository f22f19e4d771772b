package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// FrameTypeMessage is the only frame type carried on the streaming connection.
const FrameTypeMessage = "message"

var (
	ErrFrameSender  = errors.New("frame: missing sender_id")
	ErrFrameDate    = errors.New("frame: missing date")
	ErrFrameContent = errors.New("frame: missing text and post_id")
)

// Frame is the record exchanged over the streaming connection and returned by the history
// endpoint. ReceiverID is either a user id or a group id.
type Frame struct {
	Type       string    `json:"type,omitempty"`
	ID         int64     `json:"id,omitempty"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id,omitempty"`
	SenderName string    `json:"sender_name,omitempty"`
	Text       string    `json:"text,omitempty"`
	PostID     int64     `json:"post_id,omitempty"`
	Date       time.Time `json:"date"`
}

// DecodeFrame parses and validates a single frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("frame: %w", err)
	}
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Validate checks required fields.
func (f Frame) Validate() error {
	if f.Type != "" && f.Type != FrameTypeMessage {
		return fmt.Errorf("frame: unknown type %q", f.Type)
	}
	if f.SenderID == 0 {
		return ErrFrameSender
	}
	if f.Date.IsZero() {
		return ErrFrameDate
	}
	if f.Text == "" && f.PostID == 0 {
		return ErrFrameContent
	}
	return nil
}

// ToMessage converts a frame into a transcript entry of the given conversation. The entry
// carries the persisted id when the frame has one.
func (f Frame) ToMessage(conversationID string, state DeliveryState) Message {
	var id string
	if f.ID != 0 {
		id = strconv.FormatInt(f.ID, 10)
	}
	return Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       f.SenderID,
		SenderName:     f.SenderName,
		Text:           f.Text,
		PostID:         f.PostID,
		CreatedAt:      f.Date,
		State:          state,
	}
}

// FrameFromMessage builds the outbound announcement for a message.
func FrameFromMessage(m Message, receiverID int64) Frame {
	return Frame{
		Type:       FrameTypeMessage,
		SenderID:   m.SenderID,
		ReceiverID: receiverID,
		SenderName: m.SenderName,
		Text:       m.Text,
		PostID:     m.PostID,
		Date:       m.CreatedAt,
	}
}
