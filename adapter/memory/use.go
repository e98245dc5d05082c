package memory

import "github.com/trickstertwo/hlbus"

// Use builds a Bus over a fresh in-memory transport and installs it as the
// default.
//
//	bus := memory.Use(memory.Config{BufferSize: 4096},
//	    hlbus.WithLogger(logger),
//	    hlbus.WithRequestTimeout(2*time.Second),
//	)
func Use(cfg Config, opts ...hlbus.Option) *hlbus.Bus {
	return hlbus.Use("memory", hlbus.NewBusBuilder().WithTransportInstance(NewTransport(cfg)), opts...)
}
