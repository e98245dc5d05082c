package hlbus

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

const (
	DefaultRequestTimeout = 5 * time.Second
	DefaultStreamBuffer   = 64
	DefaultInboxPrefix    = "_INBOX."
)

// BusBuilder assembles a Bus. Exactly one transport source is required:
// a ready instance wins over a registered name.
type BusBuilder struct {
	transport   Transport
	transportBy string
	transportCf map[string]any

	logger    *xlog.Logger
	clock     xclock.Clock
	observers []Observer
	// pool stays zero for inline observer delivery.
	pool struct{ workers, buffer int }

	requestTimeout time.Duration
	streamBuffer   int
	inboxPrefix    string
}

// NewBusBuilder returns a builder carrying the package defaults.
func NewBusBuilder() *BusBuilder {
	return &BusBuilder{
		requestTimeout: DefaultRequestTimeout,
		streamBuffer:   DefaultStreamBuffer,
		inboxPrefix:    DefaultInboxPrefix,
	}
}

// WithTransport selects a transport registered under name; see RegisterTransport.
func (bb *BusBuilder) WithTransport(name string, cfg map[string]any) *BusBuilder {
	bb.transportBy, bb.transportCf = name, cfg
	return bb
}

// WithTransportInstance uses t as is, typically one built by an adapter's Use.
func (bb *BusBuilder) WithTransportInstance(t Transport) *BusBuilder {
	bb.transport = t
	return bb
}

func (bb *BusBuilder) WithObserver(obs ...Observer) *BusBuilder {
	for _, o := range obs {
		if o != nil {
			bb.observers = append(bb.observers, o)
		}
	}
	return bb
}

// WithObserverPool delivers observer events on workers goroutines through a
// queue of bufferSize; see ObserverPool.
func (bb *BusBuilder) WithObserverPool(workers, bufferSize int) *BusBuilder {
	if workers < 1 {
		workers = 4
	}
	bb.pool.workers, bb.pool.buffer = workers, bufferSize
	return bb
}

func (bb *BusBuilder) WithLogger(l *xlog.Logger) *BusBuilder {
	bb.logger = l
	return bb
}

func (bb *BusBuilder) WithClock(c xclock.Clock) *BusBuilder {
	bb.clock = c
	return bb
}

// WithRequestTimeout sets the wait of Request calls that pass no timeout.
// Non-positive values keep the current setting.
func (bb *BusBuilder) WithRequestTimeout(d time.Duration) *BusBuilder {
	if d > 0 {
		bb.requestTimeout = d
	}
	return bb
}

// WithStreamBuffer sets how many undelivered messages a Stream holds before
// the transport callback blocks. Zero makes streams unbuffered.
func (bb *BusBuilder) WithStreamBuffer(n int) *BusBuilder {
	if n >= 0 {
		bb.streamBuffer = n
	}
	return bb
}

// WithInboxPrefix sets the prefix of the per-bus reply subject. Blank
// prefixes are ignored.
func (bb *BusBuilder) WithInboxPrefix(prefix string) *BusBuilder {
	if p := strings.TrimSpace(prefix); p != "" {
		bb.inboxPrefix = p
	}
	return bb
}

func (bb *BusBuilder) resolveTransport() (Transport, error) {
	if bb.transport != nil {
		return bb.transport, nil
	}
	if bb.transportBy == "" {
		return nil, ErrNoTransportConfigured
	}
	return NewTransport(bb.transportBy, bb.transportCf)
}

// Build creates the Bus. A LoggingObserver on the bus logger is installed
// first unless one was added explicitly.
func (bb *BusBuilder) Build() (*Bus, error) {
	tr, err := bb.resolveTransport()
	if err != nil {
		return nil, err
	}

	b := &Bus{
		transport:      tr,
		clock:          cmp.Or[xclock.Clock](bb.clock, xclock.Default()),
		logger:         cmp.Or(bb.logger, xlog.Default()),
		requestTimeout: bb.requestTimeout,
		streamBuffer:   bb.streamBuffer,
		inboxPrefix:    bb.inboxPrefix,
		pending:        newPendingTable(),
		metrics:        &busMetrics{},
		done:           make(chan struct{}),
	}
	if bb.pool.workers > 0 {
		b.observerPool = NewObserverPool(context.Background(), bb.pool.workers, bb.pool.buffer)
	}

	if !slices.ContainsFunc(bb.observers, func(o Observer) bool { _, ok := o.(LoggingObserver); return ok }) {
		b.AddObserver(LoggingObserver{Logger: b.logger})
	}
	for _, o := range bb.observers {
		b.AddObserver(o)
	}
	return b, nil
}

// New builds a Bus through init and returns it with a close func bound to
// context.Background.
func New(init func(b *BusBuilder)) (*Bus, func() error, error) {
	bb := NewBusBuilder()
	if init != nil {
		init(bb)
	}
	bus, err := bb.Build()
	if err != nil {
		return nil, nil, err
	}
	return bus, func() error { return bus.Close(context.Background()) }, nil
}
