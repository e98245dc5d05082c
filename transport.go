package hlbus

import (
	"context"
	"errors"
	"sync"
)

// RawMessage is what a Transport moves: bytes addressed to a subject, with
// optional transport-level headers.
type RawMessage struct {
	Subject string
	Data    []byte
	// Header carries transport-level headers when the broker supports them.
	Header map[string]string
	// ReplyTo is a broker-native reply subject, if any.
	ReplyTo string
}

// Subscription represents an active transport subscription.
type Subscription interface {
	// Close releases the subscription. Safe to call more than once.
	Close() error
	// Done is closed once the subscription has ended for any reason.
	Done() <-chan struct{}
	// Err is nil when the owner closed the subscription, and wraps
	// ErrConnectionLost when the transport ended it.
	Err() error
}

// Transport is the Strategy interface binding the bus to a broker connection.
type Transport interface {
	// Publish hands bytes to the broker. It returns once the broker client
	// accepted them, not once a peer processed them.
	Publish(ctx context.Context, subject string, msg *RawMessage) error
	// Subscribe delivers every message on subject to handler, one at a time in
	// transport delivery order, until the subscription ends.
	Subscribe(ctx context.Context, subject string, handler func(*RawMessage)) (Subscription, error)
	// Close releases the connection and ends all subscriptions.
	Close(ctx context.Context) error
}

// SubscriptionHandle is a reusable Subscription implementation for adapters.
type SubscriptionHandle struct {
	release func() error

	once sync.Once
	done chan struct{}
	mu   sync.Mutex
	err  error
}

var _ Subscription = (*SubscriptionHandle)(nil)

// NewSubscriptionHandle returns a handle whose Close runs release once.
func NewSubscriptionHandle(release func() error) *SubscriptionHandle {
	return &SubscriptionHandle{release: release, done: make(chan struct{})}
}

// Close ends the subscription on behalf of its owner.
func (s *SubscriptionHandle) Close() error {
	return s.end(nil)
}

// Lost ends the subscription on behalf of the transport.
func (s *SubscriptionHandle) Lost(cause error) {
	if cause == nil {
		cause = ErrConnectionLost
	} else if !errors.Is(cause, ErrConnectionLost) {
		cause = errors.Join(ErrConnectionLost, cause)
	}
	_ = s.end(cause)
}

func (s *SubscriptionHandle) end(cause error) error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.err = cause
		s.mu.Unlock()
		if s.release != nil {
			err = s.release()
		}
		close(s.done)
	})
	return err
}

func (s *SubscriptionHandle) Done() <-chan struct{} { return s.done }

func (s *SubscriptionHandle) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// TransportFactory constructs transports from a config blob.
type TransportFactory func(cfg map[string]any) (Transport, error)

var (
	transportRegistryMu sync.RWMutex
	transportRegistry   = map[string]TransportFactory{}
)

// RegisterTransport registers a backend adapter.
func RegisterTransport(name string, factory TransportFactory) error {
	if name == "" {
		return errors.New("hlbus: transport name must not be empty")
	}
	if factory == nil {
		return errors.New("hlbus: transport factory must not be nil")
	}
	transportRegistryMu.Lock()
	transportRegistry[name] = factory
	transportRegistryMu.Unlock()
	return nil
}

// NewTransport constructs a transport by name with config.
func NewTransport(name string, cfg map[string]any) (Transport, error) {
	transportRegistryMu.RLock()
	f, ok := transportRegistry[name]
	transportRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownTransport{name: name}
	}
	return f(cfg)
}
