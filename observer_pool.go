package hlbus

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

type delivery struct {
	event     Event
	observers []Observer
}

// ObserverPool delivers events to observers on background workers so a slow
// observer never stalls Send, Request or Dispatch. When the queue is full the
// event is counted as dropped.
type ObserverPool struct {
	queue   chan delivery
	workers int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	stop   func() bool

	dropped   atomic.Uint64
	processed atomic.Uint64
	panicked  atomic.Uint64
}

// NewObserverPool starts workers goroutines draining a queue of bufferSize
// events. Canceling ctx shuts the pool down as Close does.
func NewObserverPool(ctx context.Context, workers, bufferSize int) *ObserverPool {
	if workers < 1 {
		workers = 4
	}
	if bufferSize < 1 {
		bufferSize = 1000
	}
	op := &ObserverPool{
		queue:   make(chan delivery, bufferSize),
		workers: workers,
	}
	for range workers {
		op.wg.Go(op.drain)
	}
	op.stop = context.AfterFunc(ctx, op.shutdown)
	return op
}

// Notify queues e for observers without blocking.
func (op *ObserverPool) Notify(e Event, observers []Observer) {
	if len(observers) == 0 {
		return
	}
	op.mu.RLock()
	defer op.mu.RUnlock()
	if op.closed {
		return
	}
	select {
	case op.queue <- delivery{event: e, observers: slices.Clone(observers)}:
	default:
		op.dropped.Add(1)
	}
}

// drain runs until the queue is closed and empty.
func (op *ObserverPool) drain() {
	for d := range op.queue {
		for _, obs := range d.observers {
			if obs != nil {
				op.deliver(obs, d.event)
			}
		}
		op.processed.Add(1)
	}
}

func (op *ObserverPool) deliver(obs Observer, e Event) {
	defer func() {
		if recover() != nil {
			op.panicked.Add(1)
		}
	}()
	obs.OnEvent(e)
}

// shutdown stops intake; workers exit after the queued events.
func (op *ObserverPool) shutdown() {
	op.mu.Lock()
	defer op.mu.Unlock()
	if !op.closed {
		op.closed = true
		close(op.queue)
	}
}

// Close stops intake and waits up to timeout for queued events to be delivered.
func (op *ObserverPool) Close(timeout time.Duration) error {
	op.stop()
	op.shutdown()

	done := make(chan struct{})
	go func() {
		op.wg.Wait()
		close(done)
	}()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		return ErrObserverPoolShutdownTimeout
	}
}

// Stats returns queue and delivery counters.
func (op *ObserverPool) Stats() PoolStats {
	return PoolStats{
		Dropped:      op.dropped.Load(),
		Processed:    op.processed.Load(),
		Panicked:     op.panicked.Load(),
		ActiveEvents: len(op.queue),
		Workers:      op.workers,
		BufferSize:   cap(op.queue),
	}
}
