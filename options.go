package hlbus

import (
	"fmt"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// Option adjusts a BusBuilder. Adapter Use helpers accept them.
type Option func(*BusBuilder)

// Apply runs opts in order, skipping nils.
func (bb *BusBuilder) Apply(opts ...Option) *BusBuilder {
	for _, o := range opts {
		if o != nil {
			o(bb)
		}
	}
	return bb
}

func WithLogger(l *xlog.Logger) Option { return func(bb *BusBuilder) { bb.WithLogger(l) } }

func WithClock(c xclock.Clock) Option { return func(bb *BusBuilder) { bb.WithClock(c) } }

func WithRequestTimeout(d time.Duration) Option {
	return func(bb *BusBuilder) { bb.WithRequestTimeout(d) }
}

func WithObservers(obs ...Observer) Option { return func(bb *BusBuilder) { bb.WithObserver(obs...) } }

func WithObserverPool(workers, bufferSize int) Option {
	return func(bb *BusBuilder) { bb.WithObserverPool(workers, bufferSize) }
}

// Use builds a Bus from bb and opts and installs it as the default. It
// panics on a build error, which at startup is a configuration mistake.
func Use(adapter string, bb *BusBuilder, opts ...Option) *Bus {
	bus, err := bb.Apply(opts...).Build()
	if err != nil {
		panic(fmt.Errorf("%s.Use: %w", adapter, err))
	}
	SetDefault(bus)
	return bus
}
