package ws

import "time"

// ConnInfo captures connection metadata carried through lifecycle events.
type ConnInfo struct {
	ConnID      string    `json:"conn_id"`
	UserID      int       `json:"user_id"`
	DeviceID    string    `json:"device_id,omitempty"`
	IP          string    `json:"ip"`
	RequestID   string    `json:"request_id,omitempty"`
	TraceID     string    `json:"trace_id,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}
