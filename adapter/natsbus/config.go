package natsbus

import (
	"fmt"
	"strings"
	"time"

	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/hlbus/internal/cfgmap"
)

// Config for the NATS transport.
type Config struct {
	URL      string
	Name     string
	Token    string
	User     string
	Password string

	// Reconnect policy. After MaxReconnects failed attempts the connection is
	// closed and every subscription ends with hlbus.ErrConnectionLost.
	MaxReconnects int
	ReconnectWait time.Duration
	// ConnectTimeout bounds the initial dial.
	ConnectTimeout time.Duration
	// FlushTimeout bounds the round trip that confirms a new subscription.
	FlushTimeout time.Duration

	// Logger receives connection state changes. Nil uses xlog.Default().
	Logger *xlog.Logger
}

// Defaults returns a Config with production-safe defaults.
func Defaults() Config {
	return Config{
		URL:            "nats://localhost:4222",
		Name:           "hlbus",
		MaxReconnects:  60,
		ReconnectWait:  2 * time.Second,
		ConnectTimeout: 5 * time.Second,
		FlushTimeout:   2 * time.Second,
	}
}

// Validate checks Config for production readiness.
func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("config: url required")
	}
	if c.ReconnectWait < 0 {
		return fmt.Errorf("config: reconnect_wait must be >= 0, got %v", c.ReconnectWait)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("config: connect_timeout must be > 0, got %v", c.ConnectTimeout)
	}
	if c.FlushTimeout <= 0 {
		return fmt.Errorf("config: flush_timeout must be > 0, got %v", c.FlushTimeout)
	}
	return nil
}

func (c Config) toMap() map[string]any {
	return map[string]any{
		"url":             c.URL,
		"name":            c.Name,
		"token":           c.Token,
		"user":            c.User,
		"password":        c.Password,
		"max_reconnects":  c.MaxReconnects,
		"reconnect_wait":  c.ReconnectWait,
		"connect_timeout": c.ConnectTimeout,
		"flush_timeout":   c.FlushTimeout,
		"logger":          c.Logger,
	}
}

// ConfigFromMap overlays the keys present in m on Defaults.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()
	cfgmap.Set(m, "url", &c.URL, cfgmap.NonZero[string])
	cfgmap.Set(m, "name", &c.Name, cfgmap.NonZero[string])
	cfgmap.Set(m, "token", &c.Token)
	cfgmap.Set(m, "user", &c.User)
	cfgmap.Set(m, "password", &c.Password)
	cfgmap.Set(m, "max_reconnects", &c.MaxReconnects)
	cfgmap.Set(m, "reconnect_wait", &c.ReconnectWait)
	cfgmap.Set(m, "connect_timeout", &c.ConnectTimeout)
	cfgmap.Set(m, "flush_timeout", &c.FlushTimeout)
	if l, ok := m["logger"].(*xlog.Logger); ok && l != nil {
		c.Logger = l
	}
	return c
}

func (c Config) logger() *xlog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return xlog.Default()
}
