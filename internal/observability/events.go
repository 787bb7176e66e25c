package observability

import "time"

const (
	envelopeSchemaVersion = 1
	envelopeService       = "messenger-service"
)

// EventEnvelope is the wire shape of every event mirrored to the broker,
// shared by fan-out mirrors and websocket connection events.
type EventEnvelope struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventName     string      `json:"event_name"`
	OccurredAt    string      `json:"occurred_at"`
	Service       string      `json:"service"`
	Payload       interface{} `json:"payload"`
}

// NewEnvelope stamps an envelope with schema and origin metadata.
func NewEnvelope(eventType, eventName string, payload interface{}) EventEnvelope {
	return EventEnvelope{
		SchemaVersion: envelopeSchemaVersion,
		EventType:     eventType,
		EventName:     eventName,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       envelopeService,
		Payload:       payload,
	}
}

// BuildHeaders carries request correlation ids into AMQP headers.
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
