package hlbus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserverPoolProcesses(t *testing.T) {
	pool := NewObserverPool(context.Background(), 2, 8)
	var seen atomic.Int32
	obs := ObserverFunc(func(Event) { seen.Add(1) })

	for i := 0; i < 5; i++ {
		pool.Notify(Event{Type: EventSend}, []Observer{obs})
	}
	require.NoError(t, pool.Close(time.Second))
	assert.Equal(t, int32(5), seen.Load())
	assert.Equal(t, uint64(5), pool.Stats().Processed)

	pool.Notify(Event{Type: EventSend}, []Observer{obs})
	assert.Equal(t, int32(5), seen.Load())
}

func TestObserverPoolDropsWhenFull(t *testing.T) {
	pool := NewObserverPool(context.Background(), 1, 1)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	blocking := ObserverFunc(func(Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	pool.Notify(Event{}, []Observer{blocking})
	<-started
	pool.Notify(Event{}, []Observer{blocking})
	pool.Notify(Event{}, []Observer{blocking})
	assert.Equal(t, uint64(1), pool.Stats().Dropped)

	close(release)
	require.NoError(t, pool.Close(time.Second))
}

func TestObserverPoolSurvivesPanics(t *testing.T) {
	pool := NewObserverPool(context.Background(), 1, 4)
	var seen atomic.Int32
	pool.Notify(Event{}, []Observer{ObserverFunc(func(Event) { panic("observer bug") })})
	pool.Notify(Event{}, []Observer{ObserverFunc(func(Event) { seen.Add(1) })})
	require.NoError(t, pool.Close(time.Second))
	assert.Equal(t, int32(1), seen.Load())
	assert.Equal(t, uint64(1), pool.Stats().Panicked)
	assert.Equal(t, uint64(2), pool.Stats().Processed)
}

func TestObserverPoolStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewObserverPool(ctx, 2, 4)
	var seen atomic.Int32
	obs := ObserverFunc(func(Event) { seen.Add(1) })

	pool.Notify(Event{Type: EventReceive}, []Observer{obs})
	cancel()
	require.Eventually(t, func() bool {
		pool.mu.RLock()
		defer pool.mu.RUnlock()
		return pool.closed
	}, time.Second, time.Millisecond)

	pool.Notify(Event{Type: EventReceive}, []Observer{obs})
	require.NoError(t, pool.Close(time.Second))
	assert.Equal(t, int32(1), seen.Load())
}

func TestObserverPoolCloseTimeout(t *testing.T) {
	pool := NewObserverPool(context.Background(), 1, 1)
	release := make(chan struct{})
	started := make(chan struct{})
	pool.Notify(Event{}, []Observer{ObserverFunc(func(Event) {
		close(started)
		<-release
	})})
	<-started
	assert.ErrorIs(t, pool.Close(10*time.Millisecond), ErrObserverPoolShutdownTimeout)
	close(release)
	require.NoError(t, pool.Close(time.Second))
}
