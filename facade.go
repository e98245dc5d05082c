package hlbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

var (
	defaultBus   atomic.Pointer[Bus]
	defaultBuild sync.Mutex
)

// Default returns the process-wide Bus, building it with init on first use.
// Later calls ignore init.
func Default(init func(b *BusBuilder)) (*Bus, error) {
	if b := defaultBus.Load(); b != nil {
		return b, nil
	}
	defaultBuild.Lock()
	defer defaultBuild.Unlock()
	if b := defaultBus.Load(); b != nil {
		return b, nil
	}
	b, _, err := New(init)
	if err != nil {
		return nil, err
	}
	defaultBus.Store(b)
	return b, nil
}

// SetDefault replaces the process-wide Bus. The previous one is not closed.
func SetDefault(b *Bus) {
	if b == nil {
		panic("hlbus: SetDefault called with nil Bus")
	}
	defaultBus.Store(b)
}

// Send sends env on the default Bus.
func Send(ctx context.Context, subject string, env Envelope) error {
	b, err := Default(nil)
	if err != nil {
		return err
	}
	return b.Send(ctx, subject, env)
}

// Publish publishes env on the default Bus.
func Publish(ctx context.Context, subject string, env Envelope) error {
	b, err := Default(nil)
	if err != nil {
		return err
	}
	return b.Publish(ctx, subject, env)
}

// Request performs a request on the default Bus.
func Request(ctx context.Context, subject string, env Envelope, timeout time.Duration) (Envelope, error) {
	b, err := Default(nil)
	if err != nil {
		return Envelope{}, err
	}
	return b.Request(ctx, subject, env, timeout)
}

// Subscribe opens a stream on the default Bus.
func Subscribe(ctx context.Context, subject string) (*Stream, error) {
	b, err := Default(nil)
	if err != nil {
		return nil, err
	}
	return b.Subscribe(ctx, subject)
}
