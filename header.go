package hlbus

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Transport-level header keys. Transports that support native headers
// (NATS, memory) carry these alongside the JSON body.
const (
	HeaderMessageType   = "message_type"
	HeaderMessageID     = "message_id"
	HeaderCorrelationID = "correlation_id"
	HeaderTimestamp     = "timestamp"
	HeaderReplyTo       = "reply_to"
	HeaderExpiresAt     = "expires_at"
)

// Header is the routing metadata of an Envelope.
type Header struct {
	// MessageType selects the handler and payload schema. Required.
	MessageType string `json:"message_type"`
	// MessageID is unique per envelope instance.
	MessageID string `json:"message_id"`
	// CorrelationID links a request to its reply.
	CorrelationID string `json:"correlation_id,omitempty"`
	// Timestamp is the creation time in milliseconds since epoch.
	Timestamp int64 `json:"timestamp"`
	// ReplyTo is the subject a responder should reply on.
	ReplyTo string `json:"reply_to,omitempty"`
	// ExpiresAt is the expiry time in milliseconds since epoch; 0 never expires.
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

func newHeader(messageType string, now time.Time) Header {
	return Header{
		MessageType: messageType,
		MessageID:   NewID(),
		Timestamp:   now.UnixMilli(),
	}
}

// NewID returns a fresh random identifier for messages and correlations.
func NewID() string { return uuid.NewString() }

// Time returns the creation timestamp.
func (h Header) Time() time.Time { return time.UnixMilli(h.Timestamp) }

// Expired reports whether the header carries an expiry that lies before now.
func (h Header) Expired(now time.Time) bool {
	return h.ExpiresAt > 0 && now.UnixMilli() > h.ExpiresAt
}

// Metadata flattens the header into transport-level headers.
func (h Header) Metadata() map[string]string {
	m := make(map[string]string, 6)
	m[HeaderMessageType] = h.MessageType
	if h.MessageID != "" {
		m[HeaderMessageID] = h.MessageID
	}
	if h.CorrelationID != "" {
		m[HeaderCorrelationID] = h.CorrelationID
	}
	if h.Timestamp != 0 {
		m[HeaderTimestamp] = strconv.FormatInt(h.Timestamp, 10)
	}
	if h.ReplyTo != "" {
		m[HeaderReplyTo] = h.ReplyTo
	}
	if h.ExpiresAt != 0 {
		m[HeaderExpiresAt] = strconv.FormatInt(h.ExpiresAt, 10)
	}
	return m
}

// headerFromMetadata rebuilds a Header from transport-level headers.
func headerFromMetadata(m map[string]string) (Header, error) {
	h := Header{
		MessageType:   m[HeaderMessageType],
		MessageID:     m[HeaderMessageID],
		CorrelationID: m[HeaderCorrelationID],
		ReplyTo:       m[HeaderReplyTo],
	}
	var err error
	if v := m[HeaderTimestamp]; v != "" {
		if h.Timestamp, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Header{}, malformed("invalid timestamp header", err)
		}
	}
	if v := m[HeaderExpiresAt]; v != "" {
		if h.ExpiresAt, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Header{}, malformed("invalid expires_at header", err)
		}
	}
	return h, nil
}

// merge fills fields left empty in h from fallback.
func (h Header) merge(fallback Header) Header {
	if h.MessageType == "" {
		h.MessageType = fallback.MessageType
	}
	if h.MessageID == "" {
		h.MessageID = fallback.MessageID
	}
	if h.CorrelationID == "" {
		h.CorrelationID = fallback.CorrelationID
	}
	if h.Timestamp == 0 {
		h.Timestamp = fallback.Timestamp
	}
	if h.ReplyTo == "" {
		h.ReplyTo = fallback.ReplyTo
	}
	if h.ExpiresAt == 0 {
		h.ExpiresAt = fallback.ExpiresAt
	}
	return h
}
