package relay

import "time"

// ConnInfo describes one registered relay connection.
type ConnInfo struct {
	ConnID      string
	Kind        string
	ResourceID  string
	UserID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
