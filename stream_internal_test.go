package hlbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lossyTransport struct {
	handle *SubscriptionHandle
}

func (t *lossyTransport) Publish(context.Context, string, *RawMessage) error { return nil }

func (t *lossyTransport) Subscribe(context.Context, string, func(*RawMessage)) (Subscription, error) {
	t.handle = NewSubscriptionHandle(nil)
	return t.handle, nil
}

func (t *lossyTransport) Close(context.Context) error { return nil }

func TestRunReleasesStreamOnTransportLoss(t *testing.T) {
	tr := &lossyTransport{}
	bus, err := NewBusBuilder().WithTransportInstance(tr).Build()
	require.NoError(t, err)
	defer bus.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := bus.Subscribe(ctx, "orders")
	require.NoError(t, err)

	tr.handle.Lost(errors.New("reset by peer"))
	err = NewDispatcher(NewRegistry(), DispatcherConfig{}).Run(ctx, stream)
	assert.ErrorIs(t, err, ErrConnectionLost)

	stream.mu.Lock()
	stop := stream.stopCtx
	stream.mu.Unlock()
	require.NotNil(t, stop)
	assert.False(t, stop(), "ctx hook already released")
	assert.ErrorIs(t, stream.Err(), ErrConnectionLost)
}
