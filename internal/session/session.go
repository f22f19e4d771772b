package session

import (
	"fmt"

	"chat-sync/internal/auth"
)

// Session carries the local identity and credential. It is passed explicitly to every
// component that talks to the network.
type Session struct {
	UserID   int64
	Username string
	Token    string
}

// FromToken builds a session whose user id is the token subject.
func FromToken(token, username string) (Session, error) {
	id, err := auth.SubjectFromToken(token)
	if err != nil {
		return Session{}, fmt.Errorf("session: %w", err)
	}
	return Session{UserID: id, Username: username, Token: token}, nil
}

// Authorization returns the bearer header value.
func (s Session) Authorization() string {
	return "Bearer " + s.Token
}
