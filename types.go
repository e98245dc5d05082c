package hlbus

import (
	"time"
)

// EventType enumerates internal lifecycle events for the Observer pattern.
type EventType string

const (
	EventSend         EventType = "send"
	EventPublish      EventType = "publish"
	EventRequest      EventType = "request"
	EventReply        EventType = "reply"
	EventTimeout      EventType = "request_timeout"
	EventReplyDropped EventType = "reply_dropped"
	EventReceive      EventType = "receive"
	EventDecodeError  EventType = "decode_error"
	EventDispatch     EventType = "dispatch"
	EventUnknownType  EventType = "unknown_type"
	EventHandlerError EventType = "handler_error"
	EventError        EventType = "error"
)

// Event carries telemetry for observers.
type Event struct {
	Type          EventType
	Subject       string
	MessageType   string
	MessageID     string
	CorrelationID string
	Duration      time.Duration
	Err           error
}

func eventFor(t EventType, subject string, h Header) Event {
	return Event{
		Type:          t,
		Subject:       subject,
		MessageType:   h.MessageType,
		MessageID:     h.MessageID,
		CorrelationID: h.CorrelationID,
	}
}

// PoolStats returns telemetry about the observer pool.
type PoolStats struct {
	Dropped      uint64 // events dropped due to full buffer
	Processed    uint64
	Panicked     uint64 // observer calls that panicked
	ActiveEvents int
	Workers      int
	BufferSize   int
}

// Metrics defines observable telemetry for the bus.
type Metrics struct {
	Sent                uint64
	Published           uint64
	Requests            uint64
	Replies             uint64
	RepliesDropped      uint64
	Timeouts            uint64
	Received            uint64
	Errors              uint64
	Pending             int
	EventsDropped       uint64
	AvgProcessingTimeMs float64
}

// HealthStatus indicates bus health for liveness checks.
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}
