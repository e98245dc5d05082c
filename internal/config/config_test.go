package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(env(nil))
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "hyperliquid.orders", cfg.Subject)
	assert.Equal(t, "https://api.hyperliquid.xyz", cfg.ExchangeURL)
	assert.Equal(t, TransportNATS, cfg.Transport)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		EnvNATSURL:        "nats://broker:4222",
		EnvSubject:        "orders.eu",
		EnvTransport:      TransportMemory,
		EnvDryRun:         "true",
		EnvConcurrency:    "4",
		EnvRequestTimeout: "750ms",
		EnvOpsAddr:        "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "nats://broker:4222", cfg.NATSURL)
	assert.Equal(t, "orders.eu", cfg.Subject)
	assert.Equal(t, TransportMemory, cfg.Transport)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 750*time.Millisecond, cfg.RequestTimeout)
	assert.Empty(t, cfg.OpsAddr, "empty HLBUS_OPS_ADDR disables the ops server")
}

func TestLoadFrom_InvalidEnv(t *testing.T) {
	_, err := LoadFrom(env(map[string]string{
		EnvConcurrency:    "many",
		EnvRequestTimeout: "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvConcurrency)
	assert.Contains(t, err.Error(), EnvRequestTimeout)
}

func TestLoadFrom_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hlbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport: redis-pubsub
redis_addr: cache:6379
subject: from.file
handler_timeout: 3s
`), 0o600))

	cfg, err := LoadFrom(env(map[string]string{
		EnvConfigFile: path,
		EnvSubject:    "from.env",
	}))
	require.NoError(t, err)

	assert.Equal(t, TransportRedis, cfg.Transport)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.Equal(t, "from.env", cfg.Subject, "environment wins over file")
	assert.Equal(t, 3*time.Second, cfg.HandlerTimeout)
}

func TestLoadFrom_YAMLRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("subjcet: typo\n"), 0o600))

	_, err := LoadFrom(env(map[string]string{EnvConfigFile: path}))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Transport = "kafka"
	cfg.Subject = ""
	cfg.Concurrency = 0
	cfg.ExchangeURL = "ftp://nope"

	err := cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{"transport", "subject", "concurrency", "exchange_url"} {
		assert.Contains(t, err.Error(), field)
	}

	cfg = Defaults()
	cfg.DryRun = true
	cfg.ExchangeURL = ""
	assert.NoError(t, cfg.Validate(), "dry run needs no exchange URL")
}
