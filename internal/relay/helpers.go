package relay

import (
	"crypto/rand"
	"encoding/hex"
)

// newConnID returns a random id used to correlate connect and disconnect events.
func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
