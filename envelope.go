package hlbus

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/trickstertwo/xclock"
)

const headerField = "header"

var emptyObject = json.RawMessage("{}")

// Typed is implemented by payloads that know their own message type.
type Typed interface {
	MessageType() string
}

// Envelope is the unit traveling the bus: a Header plus an opaque JSON object payload.
type Envelope struct {
	Header  Header
	Payload json.RawMessage
}

// NewEnvelope builds an envelope with a fresh message id and timestamp.
// Identity is fixed here, so resending the same Envelope keeps it.
func NewEnvelope(messageType string, payload any) (Envelope, error) {
	return newEnvelope(messageType, payload, xclock.Default().Now())
}

// NewTypedEnvelope builds an envelope whose type comes from the payload.
func NewTypedEnvelope(p Typed) (Envelope, error) {
	return NewEnvelope(p.MessageType(), p)
}

// MustEnvelope is NewEnvelope that panics on error, for fixtures and examples.
func MustEnvelope(messageType string, payload any) Envelope {
	env, err := NewEnvelope(messageType, payload)
	if err != nil {
		panic(err)
	}
	return env
}

func newEnvelope(messageType string, payload any, now time.Time) (Envelope, error) {
	if messageType == "" {
		return Envelope{}, ErrInvalidMessageType
	}
	raw, err := marshalPayload(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Header: newHeader(messageType, now), Payload: raw}, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	var raw []byte
	switch p := payload.(type) {
	case nil:
		return emptyObject, nil
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return emptyObject, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, ErrInvalidPayload
	}
	if _, clash := fields[headerField]; clash {
		return nil, ErrInvalidPayload
	}
	return json.RawMessage(raw), nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return json.Unmarshal(emptyObject, v)
	}
	return json.Unmarshal(e.Payload, v)
}

// WithCorrelationID returns a copy carrying the given correlation id.
func (e Envelope) WithCorrelationID(id string) Envelope {
	e.Header.CorrelationID = id
	return e
}

// WithReplyTo returns a copy asking responders to reply on subject.
func (e Envelope) WithReplyTo(subject string) Envelope {
	e.Header.ReplyTo = subject
	return e
}

// WithExpiry returns a copy that expires d after its creation timestamp.
func (e Envelope) WithExpiry(d time.Duration) Envelope {
	if d <= 0 {
		e.Header.ExpiresAt = 0
		return e
	}
	e.Header.ExpiresAt = e.Header.Timestamp + d.Milliseconds()
	return e
}

// Encode frames an envelope as a JSON object with the header embedded under
// "header" and the payload fields at the top level.
func Encode(e Envelope) ([]byte, error) {
	if e.Header.MessageType == "" {
		return nil, ErrInvalidMessageType
	}
	hb, err := json.Marshal(e.Header)
	if err != nil {
		return nil, err
	}
	payload := bytes.TrimSpace(e.Payload)
	if len(payload) == 0 {
		payload = emptyObject
	}
	if payload[0] != '{' {
		return nil, ErrInvalidPayload
	}

	var buf bytes.Buffer
	buf.Grow(len(hb) + len(payload) + len(headerField) + 8)
	buf.WriteString(`{"` + headerField + `":`)
	buf.Write(hb)
	inner := bytes.TrimSpace(payload[1:])
	if len(inner) > 0 && inner[0] != '}' {
		buf.WriteByte(',')
	}
	buf.Write(inner)
	return buf.Bytes(), nil
}

// Decode extracts the header independently of the payload shape so that
// routing can happen before payload-specific decoding.
func Decode(data []byte) (Envelope, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return Envelope{}, err
	}
	raw, ok := fields[headerField]
	if !ok {
		return Envelope{}, malformed("missing header", nil)
	}
	h, err := decodeHeader(raw)
	if err != nil {
		return Envelope{}, err
	}
	if h.MessageType == "" {
		return Envelope{}, malformed("missing message_type", nil)
	}
	return finishEnvelope(h, fields)
}

// DecodeMessage decodes a transport message. Header fields may be embedded in
// the body, carried as transport headers, or both; embedded fields win.
func DecodeMessage(m *RawMessage) (Envelope, error) {
	env, err := decodeMessage(m)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) && de.Subject == "" {
			de.Subject = m.Subject
		}
		return Envelope{}, err
	}
	return env, nil
}

func decodeMessage(m *RawMessage) (Envelope, error) {
	var fields map[string]json.RawMessage
	if len(bytes.TrimSpace(m.Data)) == 0 {
		fields = map[string]json.RawMessage{}
	} else {
		f, err := decodeObject(m.Data)
		if err != nil {
			return Envelope{}, err
		}
		fields = f
	}

	var h Header
	if raw, ok := fields[headerField]; ok {
		embedded, err := decodeHeader(raw)
		if err != nil {
			return Envelope{}, err
		}
		h = embedded
	}
	if len(m.Header) > 0 {
		fromMeta, err := headerFromMetadata(m.Header)
		if err != nil {
			return Envelope{}, err
		}
		h = h.merge(fromMeta)
	}
	if h.ReplyTo == "" {
		h.ReplyTo = m.ReplyTo
	}
	if h.MessageType == "" {
		return Envelope{}, malformed("missing message_type", nil)
	}
	return finishEnvelope(h, fields)
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, malformed("not a JSON object", err)
	}
	if fields == nil {
		return nil, malformed("not a JSON object", nil)
	}
	return fields, nil
}

func decodeHeader(raw json.RawMessage) (Header, error) {
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return Header{}, malformed("invalid header", err)
	}
	return h, nil
}

func finishEnvelope(h Header, fields map[string]json.RawMessage) (Envelope, error) {
	delete(fields, headerField)
	if len(fields) == 0 {
		return Envelope{Header: h, Payload: emptyObject}, nil
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return Envelope{}, malformed("invalid payload", err)
	}
	return Envelope{Header: h, Payload: payload}, nil
}
