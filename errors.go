package hlbus

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedEnvelope    = errors.New("hlbus: malformed envelope")
	ErrTransport            = errors.New("hlbus: transport error")
	ErrRequestTimeout       = errors.New("hlbus: request timeout")
	ErrDuplicateCorrelation = errors.New("hlbus: duplicate correlation id")
	ErrUnknownMessageType   = errors.New("hlbus: unknown message type")
	ErrHandlerFailure       = errors.New("hlbus: handler failure")
	ErrDuplicateHandler     = errors.New("hlbus: duplicate handler")
	ErrExpired              = errors.New("hlbus: envelope expired")
	ErrConnectionLost       = errors.New("hlbus: connection lost")

	ErrBusClosed             = errors.New("hlbus: bus is closed")
	ErrStreamClosed          = errors.New("hlbus: stream closed")
	ErrInvalidSubject        = errors.New("hlbus: subject must not be empty")
	ErrInvalidMessageType    = errors.New("hlbus: message type must not be empty")
	ErrInvalidPayload        = errors.New("hlbus: payload must encode to a JSON object")
	ErrNoReplySubject        = errors.New("hlbus: request has no reply subject")
	ErrRegistrySealed        = errors.New("hlbus: registry is sealed")
	ErrNoTransportConfigured = errors.New("hlbus: no transport configured")

	ErrObserverPoolShutdownTimeout = errors.New("hlbus: observer pool shutdown timeout")
)

// ErrUnknownTransport is returned by NewTransport for unregistered names.
type ErrUnknownTransport struct{ name string }

func (e ErrUnknownTransport) Error() string { return fmt.Sprintf("hlbus: unknown transport: %s", e.name) }

// TransportError wraps a failure reported by the underlying broker binding.
type TransportError struct {
	Op      string
	Subject string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("hlbus: transport %s %q: %v", e.Op, e.Subject, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// DecodeError reports a single inbound message that could not be decoded.
type DecodeError struct {
	Subject string
	Reason  string
	Err     error
}

func (e *DecodeError) Error() string {
	msg := "hlbus: malformed envelope"
	if e.Subject != "" {
		msg += fmt.Sprintf(" on %q", e.Subject)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrMalformedEnvelope }

// UnknownMessageTypeError names the message type no handler was registered for.
type UnknownMessageTypeError struct {
	MessageType string
	MessageID   string
}

func (e *UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("hlbus: unknown message type %q (message %s)", e.MessageType, e.MessageID)
}

func (e *UnknownMessageTypeError) Is(target error) bool { return target == ErrUnknownMessageType }

// HandlerFailure wraps any error raised while processing one message.
type HandlerFailure struct {
	MessageType string
	MessageID   string
	Err         error
}

func (e *HandlerFailure) Error() string {
	return fmt.Sprintf("hlbus: handler for %q failed (message %s): %v", e.MessageType, e.MessageID, e.Err)
}

func (e *HandlerFailure) Unwrap() error { return e.Err }

func (e *HandlerFailure) Is(target error) bool { return target == ErrHandlerFailure }

func malformed(reason string, err error) error {
	return &DecodeError{Reason: reason, Err: err}
}
