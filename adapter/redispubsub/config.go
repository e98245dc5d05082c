package redispubsub

import (
	"fmt"
	"time"

	"github.com/trickstertwo/hlbus/internal/cfgmap"
)

// Config for the Redis pub/sub transport.
type Config struct {
	// Connection
	Addr          string
	Username      string
	Password      string
	DB            int
	TLS           bool
	TLSServerName string

	// ChannelPrefix is prepended to subjects to namespace channels.
	ChannelPrefix string
	// ChannelSize is the go-redis receive buffer per subscription.
	ChannelSize int
	// PingTimeout bounds the connectivity check done at construction.
	PingTimeout time.Duration
	// HealthCheckInterval is how often each subscription pings Redis. go-redis
	// reconnects a PubSub silently, so a failed ping ends the subscription with
	// hlbus.ErrConnectionLost. Non-positive disables the check.
	HealthCheckInterval time.Duration
}

// Defaults returns a Config with production-safe defaults.
func Defaults() Config {
	return Config{
		Addr:        "127.0.0.1:6379",
		ChannelSize: 256,
		PingTimeout: 2 * time.Second,

		HealthCheckInterval: 5 * time.Second,
	}
}

// Validate checks Config for production readiness.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr required")
	}
	if c.DB < 0 {
		return fmt.Errorf("config: db must be >= 0, got %d", c.DB)
	}
	if c.ChannelSize < 1 {
		return fmt.Errorf("config: channel_size must be >= 1, got %d", c.ChannelSize)
	}
	if c.PingTimeout <= 0 {
		return fmt.Errorf("config: ping_timeout must be > 0, got %v", c.PingTimeout)
	}
	return nil
}

// toMap converts Config to generic map for transport factory.
func (c Config) toMap() map[string]any {
	return map[string]any{
		"addr":            c.Addr,
		"username":        c.Username,
		"password":        c.Password,
		"db":              c.DB,
		"tls":             c.TLS,
		"tls_server_name": c.TLSServerName,
		"channel_prefix":  c.ChannelPrefix,
		"channel_size":    c.ChannelSize,
		"ping_timeout":    c.PingTimeout,

		"health_check_interval": c.HealthCheckInterval,
	}
}

// ConfigFromMap overlays the keys present in m on Defaults.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()
	cfgmap.Set(m, "addr", &c.Addr, cfgmap.NonZero[string])
	cfgmap.Set(m, "username", &c.Username)
	cfgmap.Set(m, "password", &c.Password)
	cfgmap.Set(m, "db", &c.DB)
	cfgmap.Set(m, "tls", &c.TLS)
	cfgmap.Set(m, "tls_server_name", &c.TLSServerName)
	cfgmap.Set(m, "channel_prefix", &c.ChannelPrefix)
	cfgmap.Set(m, "channel_size", &c.ChannelSize, cfgmap.Positive[int])
	cfgmap.Set(m, "ping_timeout", &c.PingTimeout, cfgmap.Positive[time.Duration])
	cfgmap.Set(m, "health_check_interval", &c.HealthCheckInterval)
	return c
}
