package service

import (
	"fmt"

	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/hlbus"
	"github.com/trickstertwo/hlbus/adapter/memory"
	"github.com/trickstertwo/hlbus/adapter/natsbus"
	"github.com/trickstertwo/hlbus/adapter/redispubsub"
	"github.com/trickstertwo/hlbus/internal/config"
)

// OpenTransport connects the transport named by cfg.Transport.
func OpenTransport(cfg config.Config) (hlbus.Transport, error) {
	switch cfg.Transport {
	case config.TransportNATS:
		nc := natsbus.Defaults()
		nc.URL = cfg.NATSURL
		nc.Name = "hlbus-" + cfg.Subject
		t, err := natsbus.NewTransport(nc)
		if err != nil {
			return nil, err
		}
		return t, nil
	case config.TransportRedis:
		rc := redispubsub.Defaults()
		rc.Addr = cfg.RedisAddr
		return redispubsub.NewTransport(rc)
	case config.TransportMemory:
		return memory.NewTransport(memory.Config{}), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// OpenBus builds a bus over a freshly opened transport.
func OpenBus(cfg config.Config, logger *xlog.Logger, observers ...hlbus.Observer) (*hlbus.Bus, error) {
	tr, err := OpenTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s transport: %w", cfg.Transport, err)
	}
	return hlbus.NewBusBuilder().
		WithTransportInstance(tr).
		WithLogger(logger).
		WithRequestTimeout(cfg.RequestTimeout).
		WithObserverPool(4, 4096).
		WithObserver(observers...).
		Build()
}
