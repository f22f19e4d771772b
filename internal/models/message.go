package models

import (
	"errors"
	"fmt"
	"time"
)

// DeliveryState tracks where a transcript entry is in its lifecycle.
type DeliveryState string

const (
	StateSending  DeliveryState = "sending"
	StateSent     DeliveryState = "sent"
	StateFailed   DeliveryState = "failed"
	StateReceived DeliveryState = "received"
)

// Terminal reports whether no further transition is allowed from s.
func (s DeliveryState) Terminal() bool {
	return s != StateSending
}

// Message represents one transcript entry.
type Message struct {
	ID             string        `json:"id,omitempty"`
	ConversationID string        `json:"conversation_id"`
	SenderID       int64         `json:"sender_id"`
	SenderName     string        `json:"sender_name,omitempty"`
	Text           string        `json:"text,omitempty"`
	PostID         int64         `json:"post_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	State          DeliveryState `json:"delivery_state"`
}

var ErrEmptyContent = errors.New("message has neither text nor post reference")

// Validate checks the fields every transcript entry must carry.
func (m Message) Validate() error {
	if m.Text == "" && m.PostID == 0 {
		return ErrEmptyContent
	}
	switch m.State {
	case StateSending, StateSent, StateFailed, StateReceived:
	default:
		return fmt.Errorf("unknown delivery state %q", m.State)
	}
	return nil
}
