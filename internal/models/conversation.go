package models

import "strconv"

// ConversationKind distinguishes two-party chats from group chats.
type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

// Conversation identifies the thread a transcript belongs to. For direct chats ID is the
// counterpart user id, for group chats it is the group id.
type Conversation struct {
	ID               string           `json:"id"`
	Kind             ConversationKind `json:"kind"`
	CounterpartLabel string           `json:"counterpart_label"`
}

// Direct builds a direct conversation with the given counterpart.
func Direct(userID int64, username string) Conversation {
	return Conversation{ID: strconv.FormatInt(userID, 10), Kind: KindDirect, CounterpartLabel: username}
}

// Group builds a group conversation.
func Group(groupID, name string) Conversation {
	return Conversation{ID: groupID, Kind: KindGroup, CounterpartLabel: name}
}

// PathSegment is the resource segment used by the history and create-message endpoints.
func (c Conversation) PathSegment() string {
	if c.Kind == KindGroup {
		return "group"
	}
	return "user"
}
