package hlbus

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc processes one routed envelope. Returned errors are reported as
// HandlerFailure for that message only.
type HandlerFunc func(ctx context.Context, env Envelope) error

// Validator is implemented by payloads that can check their own fields.
type Validator interface {
	Validate() error
}

// Registry maps message types to handlers. It is built at startup and handed
// to a Dispatcher; Seal freezes it.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	sealed   bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register installs h for messageType. A second registration for the same
// type fails with ErrDuplicateHandler and leaves the first handler in place.
func (r *Registry) Register(messageType string, h HandlerFunc) error {
	if messageType == "" {
		return ErrInvalidMessageType
	}
	if h == nil {
		return fmt.Errorf("hlbus: nil handler for %q", messageType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("%w: cannot register %q", ErrRegistrySealed, messageType)
	}
	if _, exists := r.handlers[messageType]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateHandler, messageType)
	}
	r.handlers[messageType] = h
	return nil
}

// MustRegister is Register that panics, for startup wiring.
func (r *Registry) MustRegister(messageType string, h HandlerFunc) {
	if err := r.Register(messageType, h); err != nil {
		panic(err)
	}
}

// Seal rejects any further registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Lookup returns the handler for messageType.
func (r *Registry) Lookup(messageType string) (HandlerFunc, bool) {
	r.mu.RLock()
	h, ok := r.handlers[messageType]
	r.mu.RUnlock()
	return h, ok
}

// Types lists registered message types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Handle registers a typed handler: the payload is decoded into T, and
// validated when T implements Validator, before fn runs.
func Handle[T any](r *Registry, messageType string, fn func(ctx context.Context, payload T, h Header) error) error {
	if fn == nil {
		return fmt.Errorf("hlbus: nil handler for %q", messageType)
	}
	return r.Register(messageType, func(ctx context.Context, env Envelope) error {
		payload, err := DecodePayload[T](env)
		if err != nil {
			return err
		}
		return fn(ctx, payload, env.Header)
	})
}

// DecodePayload unmarshals env's payload into T and validates it when T
// implements Validator.
func DecodePayload[T any](env Envelope) (T, error) {
	var v T
	if err := env.Decode(&v); err != nil {
		return v, fmt.Errorf("decode %q payload: %w", env.Header.MessageType, err)
	}
	if val, ok := any(&v).(Validator); ok {
		if err := val.Validate(); err != nil {
			return v, fmt.Errorf("invalid %q payload: %w", env.Header.MessageType, err)
		}
	} else if val, ok := any(v).(Validator); ok {
		if err := val.Validate(); err != nil {
			return v, fmt.Errorf("invalid %q payload: %w", env.Header.MessageType, err)
		}
	}
	return v, nil
}
