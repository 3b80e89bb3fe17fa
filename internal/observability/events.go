package observability

// Websocket lifecycle event names published to the bus.
const (
	WSEventConnect    = "ws_connect"
	WSEventDisconnect = "ws_disconnect"
	WSEventError      = "ws_error"
)

// EventEnvelope is the outer shape of every published event.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// BuildHeaders assembles the propagation headers attached to published
// events.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
