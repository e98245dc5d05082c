package redispubsub

import (
	"fmt"

	"github.com/trickstertwo/hlbus"
)

const TransportName = "redis-pubsub"

func init() {
	if err := hlbus.RegisterTransport(TransportName, func(cfg map[string]any) (hlbus.Transport, error) {
		return NewTransport(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("hlbus: failed to register transport %q: %w", TransportName, err))
	}
}

// Use builds a Bus over Redis pub/sub through the transport registry and installs
// it as the default. It panics when the server is unreachable.
func Use(cfg Config, opts ...hlbus.Option) *hlbus.Bus {
	return hlbus.Use("redispubsub", hlbus.NewBusBuilder().WithTransport(TransportName, cfg.toMap()), opts...)
}
