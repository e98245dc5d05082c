package natsbus

import "github.com/trickstertwo/hlbus"

// Use builds a Bus over NATS through the transport registry and installs
// it as the default. It panics when the server is unreachable.
func Use(cfg Config, opts ...hlbus.Option) *hlbus.Bus {
	return hlbus.Use("natsbus", hlbus.NewBusBuilder().WithTransport(TransportName, cfg.toMap()), opts...)
}
