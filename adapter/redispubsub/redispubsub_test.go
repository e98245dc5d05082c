package redispubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/hlbus"
)

func newRedisBus(t *testing.T, cfg Config) (*hlbus.Bus, *transport) {
	t.Helper()
	tr, err := NewTransport(cfg)
	require.NoError(t, err)
	bus, err := hlbus.NewBusBuilder().WithTransportInstance(tr).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close(context.Background()) })
	return bus, tr.(*transport)
}

func withAddr(addr string) Config {
	cfg := Defaults()
	cfg.Addr = addr
	return cfg
}

func next(t *testing.T, s *hlbus.Stream) (hlbus.Envelope, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.Next(ctx)
}

func TestConfigFromMap(t *testing.T) {
	c := ConfigFromMap(nil)
	assert.Equal(t, Defaults(), c)

	c = ConfigFromMap(map[string]any{
		"addr":           "redis:6380",
		"db":             2,
		"channel_prefix": "desk.",
		"channel_size":   0,
		"ping_timeout":   "500ms",
	})
	assert.Equal(t, "redis:6380", c.Addr)
	assert.Equal(t, 2, c.DB)
	assert.Equal(t, "desk.", c.ChannelPrefix)
	assert.Equal(t, 256, c.ChannelSize)
	assert.Equal(t, 500*time.Millisecond, c.PingTimeout)

	assert.Equal(t, c, ConfigFromMap(c.toMap()))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Defaults().Validate())

	bad := Defaults()
	bad.Addr = ""
	assert.Error(t, bad.Validate())

	bad = Defaults()
	bad.DB = -1
	assert.Error(t, bad.Validate())

	bad = Defaults()
	bad.ChannelSize = 0
	assert.Error(t, bad.Validate())
}

func TestNewTransportUnreachable(t *testing.T) {
	cfg := withAddr("127.0.0.1:1")
	cfg.PingTimeout = 200 * time.Millisecond
	_, err := NewTransport(cfg)
	assert.Error(t, err)
}

func TestSendSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	bus, tr := newRedisBus(t, withAddr(mr.Addr()))
	ctx := context.Background()

	stream, err := bus.Subscribe(ctx, "hyperliquid.orders")
	require.NoError(t, err)
	defer stream.Close()

	env := hlbus.MustEnvelope("market_order_request", map[string]any{"coin": "BTC", "sz": "0.1"}).
		WithCorrelationID("c-1")
	require.NoError(t, bus.Send(ctx, "hyperliquid.orders", env))

	got, err := next(t, stream)
	require.NoError(t, err)
	assert.Equal(t, env.Header, got.Header)
	assert.JSONEq(t, string(env.Payload), string(got.Payload))

	assert.Equal(t, uint64(1), tr.Stats().Published)
	assert.Equal(t, uint64(1), tr.Stats().Received)
}

func TestChannelPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := withAddr(mr.Addr())
	cfg.ChannelPrefix = "desk7."
	bus, _ := newRedisBus(t, cfg)

	stream, err := bus.Subscribe(context.Background(), "orders")
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, map[string]int{"desk7.orders": 1}, mr.PubSubNumSub("desk7.orders"))
}

func TestMalformedMessageDoesNotEndStream(t *testing.T) {
	mr := miniredis.RunT(t)
	bus, _ := newRedisBus(t, withAddr(mr.Addr()))
	ctx := context.Background()

	stream, err := bus.Subscribe(ctx, "orders")
	require.NoError(t, err)
	defer stream.Close()

	mr.Publish("orders", "not json")
	_, err = next(t, stream)
	assert.ErrorIs(t, err, hlbus.ErrMalformedEnvelope)

	env := hlbus.MustEnvelope("cancel_order_request", nil)
	require.NoError(t, bus.Send(ctx, "orders", env))
	got, err := next(t, stream)
	require.NoError(t, err)
	assert.Equal(t, env.Header.MessageID, got.Header.MessageID)
}

func TestRequestReply(t *testing.T) {
	mr := miniredis.RunT(t)
	server, _ := newRedisBus(t, withAddr(mr.Addr()))
	client, _ := newRedisBus(t, withAddr(mr.Addr()))
	ctx := context.Background()

	stream, err := server.Subscribe(ctx, "orders")
	require.NoError(t, err)
	defer stream.Close()
	go func() {
		env, err := stream.Next(ctx)
		if err != nil {
			return
		}
		_ = server.Reply(ctx, env, map[string]any{"status": "ok", "oid": 9})
	}()

	reply, err := client.Request(ctx, "orders", hlbus.MustEnvelope("market_order_request", nil), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "market_order_request.reply", reply.Header.MessageType)

	var body struct {
		Status string `json:"status"`
		OID    int    `json:"oid"`
	}
	require.NoError(t, reply.Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 9, body.OID)
}

func TestCloseEndsStreams(t *testing.T) {
	mr := miniredis.RunT(t)
	bus, tr := newRedisBus(t, withAddr(mr.Addr()))

	stream, err := bus.Subscribe(context.Background(), "orders")
	require.NoError(t, err)

	require.NoError(t, tr.Close(context.Background()))
	_, err = next(t, stream)
	assert.ErrorIs(t, err, hlbus.ErrStreamClosed)
	assert.ErrorIs(t, stream.Err(), hlbus.ErrConnectionLost)

	assert.ErrorIs(t, tr.Publish(context.Background(), "orders", &hlbus.RawMessage{}), ErrClosed)
}

func TestServerLossEndsStreams(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	cfg := withAddr(mr.Addr())
	cfg.HealthCheckInterval = 20 * time.Millisecond
	bus, _ := newRedisBus(t, cfg)

	stream, err := bus.Subscribe(context.Background(), "orders")
	require.NoError(t, err)

	mr.Close()
	_, err = next(t, stream)
	assert.ErrorIs(t, err, hlbus.ErrStreamClosed)
	assert.ErrorIs(t, stream.Err(), hlbus.ErrConnectionLost)
}

func TestRegisteredByName(t *testing.T) {
	mr := miniredis.RunT(t)
	bus, err := hlbus.NewBusBuilder().
		WithTransport(TransportName, map[string]any{"addr": mr.Addr()}).
		Build()
	require.NoError(t, err)
	assert.NoError(t, bus.Close(context.Background()))
}
