package hlbus

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

var _ API = (*Bus)(nil)
var _ HealthChecker = (*Bus)(nil)

// Bus is the central Facade offering send, publish, request/reply and
// subscribe over a single Transport connection.
type Bus struct {
	transport Transport
	clock     xclock.Clock
	logger    *xlog.Logger

	requestTimeout time.Duration
	streamBuffer   int
	inboxPrefix    string

	// writeMu serializes writes on the shared connection.
	writeMu sync.Mutex

	pending  *pendingTable
	inboxMu  sync.Mutex
	inbox    string
	inboxSub Subscription

	observerPool *ObserverPool
	// observers is replaced wholesale on change; readers never lock.
	observers atomic.Pointer[[]Observer]

	metrics   *busMetrics
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// busMetrics uses lock-free atomics.
type busMetrics struct {
	sendCount         atomic.Uint64
	publishCount      atomic.Uint64
	requestCount      atomic.Uint64
	replyCount        atomic.Uint64
	replyDroppedCount atomic.Uint64
	timeoutCount      atomic.Uint64
	receiveCount      atomic.Uint64
	errorCount        atomic.Uint64
	processingNs      atomic.Int64
}

// NewEnvelope builds an envelope stamped with the bus clock.
func (b *Bus) NewEnvelope(messageType string, payload any) (Envelope, error) {
	return newEnvelope(messageType, payload, b.clock.Now())
}

// Send is a fire-and-forget publish. It returns once the transport accepted
// the bytes. Transport failures are returned as *TransportError; there is no retry.
func (b *Bus) Send(ctx context.Context, subject string, env Envelope) error {
	if err := b.emit(ctx, EventSend, subject, env); err != nil {
		return err
	}
	b.metrics.sendCount.Add(1)
	return nil
}

// Publish has the same contract as Send, for broadcast traffic with no
// single expected consumer.
func (b *Bus) Publish(ctx context.Context, subject string, env Envelope) error {
	if err := b.emit(ctx, EventPublish, subject, env); err != nil {
		return err
	}
	b.metrics.publishCount.Add(1)
	return nil
}

func (b *Bus) emit(ctx context.Context, kind EventType, subject string, env Envelope) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if subject == "" {
		return ErrInvalidSubject
	}

	data, err := Encode(env)
	if err != nil {
		b.metrics.errorCount.Add(1)
		return err
	}
	msg := &RawMessage{
		Subject: subject,
		Data:    data,
		Header:  env.Header.Metadata(),
		ReplyTo: env.Header.ReplyTo,
	}

	start := b.clock.Now()
	b.writeMu.Lock()
	err = b.transport.Publish(ctx, subject, msg)
	b.writeMu.Unlock()
	duration := b.clock.Since(start)
	b.recordProcessingTime(duration.Nanoseconds())

	if err != nil {
		b.metrics.errorCount.Add(1)
		err = &TransportError{Op: "publish", Subject: subject, Err: err}
	}
	e := eventFor(kind, subject, env.Header)
	e.Duration = duration
	e.Err = err
	b.notify(e)
	return err
}

// Subscribe opens a long-lived listener on subject. The stream ends when the
// caller closes it, ctx is canceled, or the transport ends the subscription.
func (b *Bus) Subscribe(ctx context.Context, subject string) (*Stream, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	if subject == "" {
		return nil, ErrInvalidSubject
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := newStream(subject, b.streamBuffer)
	sub, err := b.transport.Subscribe(ctx, subject, func(m *RawMessage) {
		b.metrics.receiveCount.Add(1)
		b.notify(Event{Type: EventReceive, Subject: subject})
		s.deliver(m)
	})
	if err != nil {
		b.metrics.errorCount.Add(1)
		return nil, &TransportError{Op: "subscribe", Subject: subject, Err: err}
	}
	s.sub = sub
	s.closeWith(ctx)
	return s, nil
}

// GetMetrics returns current bus metrics.
func (b *Bus) GetMetrics() Metrics {
	m := Metrics{
		Sent:                b.metrics.sendCount.Load(),
		Published:           b.metrics.publishCount.Load(),
		Requests:            b.metrics.requestCount.Load(),
		Replies:             b.metrics.replyCount.Load(),
		RepliesDropped:      b.metrics.replyDroppedCount.Load(),
		Timeouts:            b.metrics.timeoutCount.Load(),
		Received:            b.metrics.receiveCount.Load(),
		Errors:              b.metrics.errorCount.Load(),
		Pending:             b.pending.len(),
		AvgProcessingTimeMs: float64(b.metrics.processingNs.Load()) / 1e6,
	}
	if b.observerPool != nil {
		m.EventsDropped = b.observerPool.Stats().Dropped
	}
	return m
}

// Health reports bus health for liveness checks. The bus is degraded when more than
// 5% of outbound traffic failed or more than 5% of requests timed out.
func (b *Bus) Health(ctx context.Context) HealthStatus {
	hs := HealthStatus{Status: "healthy", Timestamp: b.clock.Now()}
	if b.closed.Load() {
		hs.Status, hs.Message = "unhealthy", "bus is closed"
		return hs
	}

	hs.Metrics = b.GetMetrics()
	m := hs.Metrics
	outbound := m.Sent + m.Published + m.Requests
	switch {
	case ratio(m.Errors, outbound) > 0.05:
		hs.Status, hs.Message = "degraded", "transport errors above 5% of outbound messages"
	case ratio(m.Timeouts, m.Requests) > 0.05:
		hs.Status, hs.Message = "degraded", "request timeouts above 5% of requests"
	}
	return hs
}

func ratio(n, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// Close shuts down the bus. It is idempotent. Outstanding requests fail with
// ErrBusClosed, then the inbox and transport are closed and queued observer
// events get until ctx's deadline (5s without one) to be delivered.
func (b *Bus) Close(ctx context.Context) error {
	var errs []error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.done)

		if n := b.pending.drain(); n > 0 {
			b.logger.Warn().Str("pending", strconv.Itoa(n)).Msg("hlbus: closing with outstanding requests")
		}

		b.inboxMu.Lock()
		if sub := b.inboxSub; sub != nil {
			b.inboxSub = nil
			if err := sub.Close(); err != nil {
				b.logger.Warn().Err(err).Str("subject", b.inbox).Msg("hlbus: inbox unsubscribe failed")
			}
		}
		b.inboxMu.Unlock()

		if err := b.transport.Close(ctx); err != nil {
			b.logger.Error().Err(err).Msg("hlbus: transport close failed")
			errs = append(errs, err)
		}

		if b.observerPool != nil {
			wait := 5 * time.Second
			if dl, ok := ctx.Deadline(); ok {
				wait = max(time.Until(dl), 0)
			}
			if err := b.observerPool.Close(wait); err != nil {
				b.logger.Warn().Err(err).Msg("hlbus: observer events lost on close")
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// observerSlot gives every registration its own identity, so observers of
// uncomparable types (ObserverFunc) can still be removed.
type observerSlot struct{ obs Observer }

func (s *observerSlot) OnEvent(e Event) { s.obs.OnEvent(e) }

// AddObserver registers obs for every later event. Safe for concurrent use.
func (b *Bus) AddObserver(obs Observer) { b.Observe(obs) }

// Observe registers obs and returns a func that unregisters exactly this
// registration. Calling it more than once is harmless.
func (b *Bus) Observe(obs Observer) (remove func()) {
	if obs == nil {
		return func() {}
	}
	slot := &observerSlot{obs: obs}
	b.updateObservers(func(cur []Observer) []Observer { return append(slices.Clone(cur), slot) })
	return func() { b.removeWhere(func(o Observer) bool { return o == Observer(slot) }) }
}

// RemoveObserver unregisters the first registration of obs. Observers whose
// dynamic type is not comparable, such as ObserverFunc, are never matched;
// remove those with the func returned by Observe.
func (b *Bus) RemoveObserver(obs Observer) {
	if obs == nil || !reflect.TypeOf(obs).Comparable() {
		return
	}
	b.removeWhere(func(o Observer) bool {
		s := o.(*observerSlot)
		return reflect.TypeOf(s.obs) == reflect.TypeOf(obs) && s.obs == obs
	})
}

func (b *Bus) removeWhere(match func(Observer) bool) {
	b.updateObservers(func(cur []Observer) []Observer {
		i := slices.IndexFunc(cur, match)
		if i < 0 {
			return cur
		}
		return slices.Delete(slices.Clone(cur), i, i+1)
	})
}

func (b *Bus) updateObservers(fn func([]Observer) []Observer) {
	for {
		old := b.observers.Load()
		var cur []Observer
		if old != nil {
			cur = *old
		}
		next := fn(cur)
		if b.observers.CompareAndSwap(old, &next) {
			return
		}
	}
}

// notify hands e to the observer pool when configured, inline otherwise.
func (b *Bus) notify(e Event) {
	p := b.observers.Load()
	if p == nil || len(*p) == 0 {
		return
	}
	if b.observerPool != nil {
		if !b.closed.Load() {
			b.observerPool.Notify(e, *p)
		}
		return
	}
	for _, o := range *p {
		o.OnEvent(e)
	}
}

// recordProcessingTime keeps an exponential moving average of transport write time.
func (b *Bus) recordProcessingTime(ns int64) {
	const alpha = 0.2
	current := b.metrics.processingNs.Load()
	if current == 0 {
		b.metrics.processingNs.Store(ns)
		return
	}
	newAvg := int64(float64(ns)*alpha + float64(current)*(1-alpha))
	b.metrics.processingNs.Store(newAvg)
}
