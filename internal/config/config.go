// Package config loads service configuration from an optional YAML file and
// environment variables, in that order of precedence (environment wins).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables.
const (
	EnvNATSURL        = "NATS_URL"
	EnvSubject        = "NATS_SUBJECT"
	EnvExchangeURL    = "HYPERLIQUID_API_URL"
	EnvLogLevel       = "LOG_LEVEL"
	EnvTransport      = "HLBUS_TRANSPORT"
	EnvRedisAddr      = "REDIS_ADDR"
	EnvOpsAddr        = "HLBUS_OPS_ADDR"
	EnvConfigFile     = "HLBUS_CONFIG"
	EnvDryRun         = "HLBUS_DRY_RUN"
	EnvConcurrency    = "HLBUS_CONCURRENCY"
	EnvRequestTimeout = "HLBUS_REQUEST_TIMEOUT"
	EnvHandlerTimeout = "HLBUS_HANDLER_TIMEOUT"
	EnvRateLimit      = "HLBUS_RATE_LIMIT"
)

// Transport names accepted in Config.Transport.
const (
	TransportNATS   = "nats"
	TransportRedis  = "redis-pubsub"
	TransportMemory = "memory"
)

// Config is the service configuration.
type Config struct {
	Transport string `yaml:"transport"`
	NATSURL   string `yaml:"nats_url"`
	RedisAddr string `yaml:"redis_addr"`
	Subject   string `yaml:"subject"`

	ExchangeURL string `yaml:"exchange_url"`
	// DryRun answers commands without calling the exchange.
	DryRun bool `yaml:"dry_run"`
	// RateLimit is exchange requests per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	LogLevel   string `yaml:"log_level"`
	LogConsole bool   `yaml:"log_console"`
	// OpsAddr serves /healthz and /metrics; empty disables it.
	OpsAddr string `yaml:"ops_addr"`

	Concurrency    int           `yaml:"concurrency"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Transport:      TransportNATS,
		NATSURL:        "nats://localhost:4222",
		RedisAddr:      "127.0.0.1:6379",
		Subject:        "hyperliquid.orders",
		ExchangeURL:    "https://api.hyperliquid.xyz",
		RateLimit:      10,
		RateBurst:      5,
		LogLevel:       "info",
		OpsAddr:        ":9090",
		Concurrency:    1,
		RequestTimeout: 5 * time.Second,
		HandlerTimeout: 10 * time.Second,
	}
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom builds a Config from defaults, the YAML file named by HLBUS_CONFIG,
// and then environment overrides, and validates the result.
func LoadFrom(lookup LookupFunc) (Config, error) {
	cfg := Defaults()
	if path, ok := lookup(EnvConfigFile); ok && strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str(EnvTransport, &cfg.Transport)
	str(EnvNATSURL, &cfg.NATSURL)
	str(EnvRedisAddr, &cfg.RedisAddr)
	str(EnvSubject, &cfg.Subject)
	str(EnvExchangeURL, &cfg.ExchangeURL)
	str(EnvLogLevel, &cfg.LogLevel)
	if v, ok := lookup(EnvOpsAddr); ok {
		// empty explicitly disables the ops server
		cfg.OpsAddr = strings.TrimSpace(v)
	}

	var errs []error
	if v, ok := lookup(EnvDryRun); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvDryRun, err))
		}
		cfg.DryRun = b
	}
	if v, ok := lookup(EnvConcurrency); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvConcurrency, err))
		}
		cfg.Concurrency = n
	}
	if v, ok := lookup(EnvRateLimit); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvRateLimit, err))
		}
		cfg.RateLimit = f
	}
	for key, dst := range map[string]*time.Duration{
		EnvRequestTimeout: &cfg.RequestTimeout,
		EnvHandlerTimeout: &cfg.HandlerTimeout,
	} {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
			*dst = d
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid environment: %w", errors.Join(errs...))
	}
	return nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Transport {
	case TransportNATS:
		if _, err := url.Parse(c.NATSURL); err != nil || c.NATSURL == "" {
			errs = append(errs, fmt.Errorf("nats_url: invalid %q", c.NATSURL))
		}
	case TransportRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr: required"))
		}
	case TransportMemory:
	default:
		errs = append(errs, fmt.Errorf("transport: must be one of %s, %s, %s; got %q",
			TransportNATS, TransportRedis, TransportMemory, c.Transport))
	}
	if strings.TrimSpace(c.Subject) == "" {
		errs = append(errs, errors.New("subject: required"))
	}
	if !c.DryRun {
		u, err := url.Parse(c.ExchangeURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("exchange_url: must be an http(s) URL, got %q", c.ExchangeURL))
		}
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit: must be >= 0, got %v", c.RateLimit))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("rate_burst: must be >= 1 when rate_limit is set, got %d", c.RateBurst))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency: must be >= 1, got %d", c.Concurrency))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout: must be > 0, got %v", c.RequestTimeout))
	}
	if c.HandlerTimeout < 0 {
		errs = append(errs, fmt.Errorf("handler_timeout: must be >= 0, got %v", c.HandlerTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
