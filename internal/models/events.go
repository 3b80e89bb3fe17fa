package models

import "encoding/json"

// Room event kinds fanned out to live connections.
const (
	EventMessage     = "message"
	EventTyping      = "typing"
	EventReadReceipt = "read_receipt"
)

// RoomEvent is what the broadcaster delivers to every connection in a
// conversation's room. Payload is written to the socket verbatim. UserID is
// the originating user; receivers use it to filter typing and read_receipt
// echoes addressed to themselves.
type RoomEvent struct {
	ConversationID int             `json:"conversation_id"`
	Kind           string          `json:"kind"`
	UserID         int             `json:"user_id"`
	Payload        json.RawMessage `json:"payload"`
}
