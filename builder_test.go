package hlbus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/hlbus"
	"github.com/trickstertwo/hlbus/adapter/memory"
)

func TestBuildRequiresTransport(t *testing.T) {
	_, err := hlbus.NewBusBuilder().Build()
	assert.ErrorIs(t, err, hlbus.ErrNoTransportConfigured)
}

func TestBuildUnknownTransport(t *testing.T) {
	_, err := hlbus.NewBusBuilder().WithTransport("carrier-pigeon", nil).Build()
	var ut hlbus.ErrUnknownTransport
	require.True(t, errors.As(err, &ut))
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestBuildByName(t *testing.T) {
	bus, closeFn, err := hlbus.New(func(bb *hlbus.BusBuilder) {
		bb.WithTransport(memory.TransportName, map[string]any{"buffer_size": 8}).
			WithInboxPrefix("  ").
			WithStreamBuffer(4)
	})
	require.NoError(t, err)
	defer func() { assert.NoError(t, closeFn()) }()

	inbox, err := bus.Inbox(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, `^_INBOX\.[0-9a-f-]{36}$`, inbox)
}

func TestBuildInboxPrefix(t *testing.T) {
	bus, _ := newBus(t, func(bb *hlbus.BusBuilder) { bb.WithInboxPrefix("desk7.replies.") })
	inbox, err := bus.Inbox(context.Background())
	require.NoError(t, err)
	assert.Contains(t, inbox, "desk7.replies.")
}

func TestRegisterTransportRejects(t *testing.T) {
	assert.Error(t, hlbus.RegisterTransport("", func(map[string]any) (hlbus.Transport, error) { return nil, nil }))
	assert.Error(t, hlbus.RegisterTransport("x", nil))
}

func TestDefaultFacade(t *testing.T) {
	ctx := context.Background()
	bus, _ := newBus(t)
	hlbus.SetDefault(bus)

	def, err := hlbus.Default(nil)
	require.NoError(t, err)
	assert.Same(t, bus, def)

	stream, err := bus.Subscribe(ctx, "orders")
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, hlbus.Send(ctx, "orders", hlbus.MustEnvelope("x", nil)))
	require.NoError(t, hlbus.Publish(ctx, "orders", hlbus.MustEnvelope("x", nil)))
	assert.Equal(t, uint64(1), bus.GetMetrics().Sent)
	assert.Equal(t, uint64(1), bus.GetMetrics().Published)
	assert.Panics(t, func() { hlbus.SetDefault(nil) })

	fills, err := hlbus.Subscribe(ctx, "fills")
	require.NoError(t, err)
	defer fills.Close()
	require.NoError(t, bus.Send(ctx, "fills", hlbus.MustEnvelope("fill", nil)))
	next, cancel := context.WithTimeout(ctx, waitFor)
	defer cancel()
	got, err := fills.Next(next)
	require.NoError(t, err)
	assert.Equal(t, "fill", got.Header.MessageType)
}

func TestUsePanicsWithoutTransport(t *testing.T) {
	assert.PanicsWithError(t, "desk.Use: "+hlbus.ErrNoTransportConfigured.Error(), func() {
		hlbus.Use("desk", hlbus.NewBusBuilder())
	})
}

func TestOptionsApply(t *testing.T) {
	rec := &recorder{}
	bus := hlbus.Use("memory", hlbus.NewBusBuilder().WithTransportInstance(memory.NewTransport(memory.Config{})),
		nil,
		hlbus.WithObservers(rec),
		hlbus.WithRequestTimeout(20*time.Millisecond),
	)
	defer bus.Close(context.Background())

	def, err := hlbus.Default(nil)
	require.NoError(t, err)
	assert.Same(t, bus, def)

	_, err = bus.Request(context.Background(), "nobody.home", hlbus.MustEnvelope("x", nil), 0)
	assert.ErrorIs(t, err, hlbus.ErrRequestTimeout)
	assert.Equal(t, 1, rec.count(hlbus.EventTimeout))
}
