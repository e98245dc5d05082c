package hlbus

import (
	"context"
	"time"
)

// Observer receives bus lifecycle events. OnEvent runs on the hot path
// unless an ObserverPool is configured, so it must not block.
type Observer interface {
	OnEvent(e Event)
}

// HealthChecker reports health for liveness checks.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// Sender emits commands and events.
type Sender interface {
	Send(ctx context.Context, subject string, env Envelope) error
	Publish(ctx context.Context, subject string, env Envelope) error
}

// Requester performs correlated request/reply.
type Requester interface {
	Request(ctx context.Context, subject string, env Envelope, timeout time.Duration) (Envelope, error)
}

// Responder answers requests received on a Stream.
type Responder interface {
	Reply(ctx context.Context, req Envelope, payload any) error
	ReplyWith(ctx context.Context, req Envelope, reply Envelope) error
}

// Subscriber opens message streams.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string) (*Stream, error)
}

// API is everything a Bus offers.
type API interface {
	Sender
	Requester
	Responder
	Subscriber
	HealthChecker

	NewEnvelope(messageType string, payload any) (Envelope, error)
	Inbox(ctx context.Context) (string, error)
	GetMetrics() Metrics
	AddObserver(obs Observer)
	Observe(obs Observer) (remove func())
	RemoveObserver(obs Observer)
	Close(ctx context.Context) error
}
