package natsbus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/hlbus"
)

func TestConfigFromMap(t *testing.T) {
	assert.Equal(t, Defaults(), ConfigFromMap(nil))

	c := ConfigFromMap(map[string]any{
		"url":            "nats://broker:4222",
		"max_reconnects": -1,
		"reconnect_wait": "250ms",
		"flush_timeout":  time.Second,
	})
	assert.Equal(t, "nats://broker:4222", c.URL)
	assert.Equal(t, "hlbus", c.Name)
	assert.Equal(t, -1, c.MaxReconnects)
	assert.Equal(t, 250*time.Millisecond, c.ReconnectWait)
	assert.Equal(t, time.Second, c.FlushTimeout)
	assert.Equal(t, c, ConfigFromMap(c.toMap()))
}

func TestConfigLogger(t *testing.T) {
	assert.NotNil(t, Defaults().logger())

	l := xlog.Default().With(xlog.Str("component", "nats"))
	c := ConfigFromMap(map[string]any{"logger": l})
	assert.Same(t, l, c.logger())
	assert.Same(t, l, ConfigFromMap(c.toMap()).Logger)

	assert.Nil(t, ConfigFromMap(map[string]any{"logger": "stdout"}).Logger)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Defaults().Validate())

	bad := Defaults()
	bad.URL = " "
	assert.Error(t, bad.Validate())

	bad = Defaults()
	bad.ConnectTimeout = 0
	assert.Error(t, bad.Validate())

	bad = Defaults()
	bad.FlushTimeout = 0
	assert.Error(t, bad.Validate())
}

func TestFromNATSKeepsHeaders(t *testing.T) {
	m := &nats.Msg{
		Subject: "orders",
		Reply:   "_INBOX.x",
		Data:    []byte(`{"coin":"BTC"}`),
		Header:  nats.Header{hlbus.HeaderMessageType: []string{"market_order_request"}},
	}
	raw := fromNATS(m)
	assert.Equal(t, "orders", raw.Subject)
	assert.Equal(t, "_INBOX.x", raw.ReplyTo)
	assert.Equal(t, "market_order_request", raw.Header[hlbus.HeaderMessageType])

	env, err := hlbus.DecodeMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "market_order_request", env.Header.MessageType)
	assert.Equal(t, "_INBOX.x", env.Header.ReplyTo)
}

// connect dials NATS_URL (default localhost) and skips when no server answers.
func connect(t *testing.T) *Transport {
	t.Helper()
	cfg := Defaults()
	if u := os.Getenv("NATS_URL"); u != "" {
		cfg.URL = u
	}
	cfg.ConnectTimeout = 500 * time.Millisecond
	cfg.MaxReconnects = 0
	tr, err := NewTransport(cfg)
	if err != nil {
		t.Skipf("nats server not reachable at %s: %v", cfg.URL, err)
	}
	return tr
}

func TestRequestReplyOverNATS(t *testing.T) {
	tr := connect(t)
	bus, err := hlbus.NewBusBuilder().WithTransportInstance(tr).Build()
	require.NoError(t, err)
	defer bus.Close(context.Background())

	ctx := context.Background()
	subject := "hlbus.test." + hlbus.NewID()
	stream, err := bus.Subscribe(ctx, subject)
	require.NoError(t, err)
	defer stream.Close()

	go func() {
		env, err := stream.Next(ctx)
		if err != nil {
			return
		}
		_ = bus.Reply(ctx, env, map[string]any{"status": "ok"})
	}()

	reply, err := bus.Request(ctx, subject, hlbus.MustEnvelope("market_order_request", nil), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "market_order_request.reply", reply.Header.MessageType)
}

func TestCloseEndsStreams(t *testing.T) {
	tr := connect(t)
	bus, err := hlbus.NewBusBuilder().WithTransportInstance(tr).Build()
	require.NoError(t, err)

	stream, err := bus.Subscribe(context.Background(), "hlbus.test."+hlbus.NewID())
	require.NoError(t, err)
	require.NoError(t, bus.Close(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, hlbus.ErrStreamClosed)
	assert.ErrorIs(t, stream.Err(), hlbus.ErrConnectionLost)
}
