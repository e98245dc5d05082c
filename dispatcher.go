package hlbus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
	"golang.org/x/sync/errgroup"
)

// DispatchState is the lifecycle of a dispatch loop.
type DispatchState int32

const (
	StateIdle DispatchState = iota
	StateListening
	StateStopped
)

func (s DispatchState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("DispatchState(%d)", int32(s))
	}
}

// ErrDispatcherUsed is returned when Run is called on a dispatcher that has
// already run; dispatch loops are not restartable.
var ErrDispatcherUsed = errors.New("hlbus: dispatcher already started")

// DispatcherConfig configures a Dispatcher. Zero values select defaults.
type DispatcherConfig struct {
	Logger *xlog.Logger
	Clock  xclock.Clock
	// Middlewares wrap every handler, outermost first.
	Middlewares []Middleware
	// Concurrency > 1 processes messages of one stream concurrently; completion
	// order is then not guaranteed. The default processes sequentially.
	Concurrency int
	// Observer receives dispatch events.
	Observer Observer
}

// DispatchStats counts per-message outcomes.
type DispatchStats struct {
	Dispatched uint64
	Failed     uint64
	Unknown    uint64
	Malformed  uint64
	Expired    uint64
}

// Dispatcher routes envelopes to the handler registered for their type.
type Dispatcher struct {
	registry *Registry
	cfg      DispatcherConfig
	state    atomic.Int32

	dispatched atomic.Uint64
	failed     atomic.Uint64
	unknown    atomic.Uint64
	malformed  atomic.Uint64
	expired    atomic.Uint64
}

// NewDispatcher builds a dispatcher over reg.
func NewDispatcher(reg *Registry, cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = xlog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = xclock.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Dispatcher{registry: reg, cfg: cfg}
}

// NewDispatcher builds a dispatcher sharing the bus logger, clock and observers.
func (b *Bus) NewDispatcher(reg *Registry, cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = b.logger
	}
	if cfg.Clock == nil {
		cfg.Clock = b.clock
	}
	if cfg.Observer == nil {
		cfg.Observer = ObserverFunc(b.notify)
	}
	return NewDispatcher(reg, cfg)
}

// State returns the current loop state.
func (d *Dispatcher) State() DispatchState { return DispatchState(d.state.Load()) }

// Stats returns per-message outcome counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Dispatched: d.dispatched.Load(),
		Failed:     d.failed.Load(),
		Unknown:    d.unknown.Load(),
		Malformed:  d.malformed.Load(),
		Expired:    d.expired.Load(),
	}
}

// Dispatch invokes the handler registered for env's message type. Unknown
// types return *UnknownMessageTypeError without invoking anything; handler
// errors and panics return *HandlerFailure. Every error is scoped to env.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) (err error) {
	h := env.Header
	handler, ok := d.registry.Lookup(h.MessageType)
	if !ok {
		d.unknown.Add(1)
		uerr := &UnknownMessageTypeError{MessageType: h.MessageType, MessageID: h.MessageID}
		d.cfg.Logger.Warn().
			Str("message_type", h.MessageType).
			Str("message_id", h.MessageID).
			Msg("hlbus: no handler registered; message dropped")
		d.observe(eventFor(EventUnknownType, SubjectFromContext(ctx), h), uerr)
		return uerr
	}

	now := d.cfg.Clock.Now()
	if h.Expired(now) {
		d.expired.Add(1)
		xerr := fmt.Errorf("%w: message %s (%s)", ErrExpired, h.MessageID, h.MessageType)
		d.cfg.Logger.Warn().
			Str("message_type", h.MessageType).
			Str("message_id", h.MessageID).
			Msg("hlbus: expired message dropped")
		d.observe(eventFor(EventHandlerError, SubjectFromContext(ctx), h), xerr)
		return xerr
	}

	defer func() {
		if r := recover(); r != nil {
			err = d.fail(ctx, h, recovered(r), d.cfg.Clock.Since(now))
		}
	}()

	wh := Chain(RecoveryMiddleware()(handler), d.cfg.Middlewares...)
	hctx := handlerContext(ctx, d.cfg.Logger, d.cfg.Clock, h)
	if herr := wh(hctx, env); herr != nil {
		return d.fail(ctx, h, herr, d.cfg.Clock.Since(now))
	}

	d.dispatched.Add(1)
	e := eventFor(EventDispatch, SubjectFromContext(ctx), h)
	e.Duration = d.cfg.Clock.Since(now)
	d.observe(e, nil)
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, h Header, cause error, dur time.Duration) error {
	d.failed.Add(1)
	hf := &HandlerFailure{MessageType: h.MessageType, MessageID: h.MessageID, Err: cause}
	d.cfg.Logger.Error().
		Err(cause).
		Str("message_type", h.MessageType).
		Str("message_id", h.MessageID).
		Str("correlation_id", h.CorrelationID).
		Msg("hlbus: handler failed")
	e := eventFor(EventHandlerError, SubjectFromContext(ctx), h)
	e.Duration = dur
	d.observe(e, hf)
	return hf
}

// Run consumes stream until it ends: Idle -> Listening -> Stopped. Per-message
// failures are reported and never stop the loop. Run returns nil when ctx is
// canceled or the owner closed the stream, and an error wrapping
// ErrConnectionLost when the transport ended it.
func (d *Dispatcher) Run(ctx context.Context, stream *Stream) error {
	if !d.state.CompareAndSwap(int32(StateIdle), int32(StateListening)) {
		return ErrDispatcherUsed
	}
	defer d.state.Store(int32(StateStopped))

	subject := stream.Subject()
	d.cfg.Logger.Info().Str("subject", subject).Msg("hlbus: dispatcher listening")

	var g *errgroup.Group
	if d.cfg.Concurrency > 1 {
		g = &errgroup.Group{}
		g.SetLimit(d.cfg.Concurrency)
	}
	mctx := WithSubject(ctx, subject)

	err := func() error {
		for {
			env, err := stream.Next(ctx)
			switch {
			case err == nil:
				if g == nil {
					_ = d.Dispatch(mctx, env)
					continue
				}
				g.Go(func() error {
					_ = d.Dispatch(mctx, env)
					return nil
				})
			case errors.Is(err, ErrStreamClosed):
				_ = stream.Close()
				return stream.Err()
			case ctx.Err() != nil:
				_ = stream.Close()
				return nil
			default:
				d.malformed.Add(1)
				d.cfg.Logger.Warn().Err(err).Str("subject", subject).Msg("hlbus: malformed message dropped")
				d.observe(Event{Type: EventDecodeError, Subject: subject}, err)
			}
		}
	}()
	if g != nil {
		_ = g.Wait()
	}

	if err != nil {
		d.cfg.Logger.Error().Err(err).Str("subject", subject).Msg("hlbus: dispatcher stopped")
		return err
	}
	d.cfg.Logger.Info().Str("subject", subject).Msg("hlbus: dispatcher stopped")
	return nil
}

func (d *Dispatcher) observe(e Event, err error) {
	if d.cfg.Observer == nil {
		return
	}
	e.Err = err
	d.cfg.Observer.OnEvent(e)
}
