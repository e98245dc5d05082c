package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/hlbus"
	"github.com/trickstertwo/hlbus/internal/cfgmap"
)

const TransportName = "memory"

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("hlbus/memory: transport is closed")

func init() {
	if err := hlbus.RegisterTransport(TransportName, func(cfg map[string]any) (hlbus.Transport, error) {
		return NewTransport(ConfigFromMap(cfg)), nil
	}); err != nil {
		panic(fmt.Errorf("hlbus/memory: failed to register transport: %w", err))
	}
}

// Config controls memory transport behavior.
type Config struct {
	// BufferSize is the per-subscription queue size (default: 1024).
	BufferSize int
	// PublishTimeout bounds how long Publish waits on a full subscriber queue
	// (default: DefaultPublishTimeout); negative waits until ctx is done. The
	// bus holds its write lock meanwhile, so replies queue behind a stalled
	// subscriber for at most this long.
	PublishTimeout time.Duration
}

// DefaultPublishTimeout applies when Config.PublishTimeout is zero.
const DefaultPublishTimeout = 5 * time.Second

// ConfigFromMap reads buffer_size and publish_timeout; BufferSize is at least 1.
func ConfigFromMap(m map[string]any) Config {
	c := Config{BufferSize: 1024, PublishTimeout: DefaultPublishTimeout}
	cfgmap.Set(m, "buffer_size", &c.BufferSize)
	cfgmap.Set(m, "publish_timeout", &c.PublishTimeout)
	c.BufferSize = max(c.BufferSize, 1)
	return c
}

// Transport implements hlbus.Transport with in-process fan-out (dev/testing).
// Every subscriber of a subject receives every message, in publish order.
// Transport headers are carried through so both framing paths are exercised.
type Transport struct {
	cfg Config

	mu       sync.RWMutex
	subjects map[string]map[uint64]*subscriber
	nextID   uint64

	closed atomic.Bool

	metrics *transportMetrics
}

type transportMetrics struct {
	published  atomic.Uint64
	delivered  atomic.Uint64
	unrouted   atomic.Uint64
	subscribed atomic.Uint64
}

var _ hlbus.Transport = (*Transport)(nil)

// NewTransport creates a new in-memory transport.
func NewTransport(cfg Config) *Transport {
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1024
	}
	if cfg.PublishTimeout == 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	return &Transport{
		cfg:      cfg,
		subjects: make(map[string]map[uint64]*subscriber),
		metrics:  &transportMetrics{},
	}
}

type subscriber struct {
	queue  chan *hlbus.RawMessage
	handle *hlbus.SubscriptionHandle
}

// Publish fans msg out to every current subscriber of subject. With no
// subscribers the message is dropped, as on a real broker.
func (t *Transport) Publish(ctx context.Context, subject string, msg *hlbus.RawMessage) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if msg == nil {
		return nil
	}

	t.mu.RLock()
	subs := make([]*subscriber, 0, len(t.subjects[subject]))
	for _, s := range t.subjects[subject] {
		subs = append(subs, s)
	}
	t.mu.RUnlock()

	t.metrics.published.Add(1)
	if len(subs) == 0 {
		t.metrics.unrouted.Add(1)
		return nil
	}

	var timeout <-chan time.Time
	if t.cfg.PublishTimeout > 0 {
		timer := time.NewTimer(t.cfg.PublishTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for _, s := range subs {
		m := *msg
		m.Subject = subject
		select {
		case s.queue <- &m:
			continue
		default:
		}
		// queue full: block to preserve ordering
		select {
		case s.queue <- &m:
		case <-s.handle.Done():
		case <-timeout:
			return fmt.Errorf("hlbus/memory: subscriber queue full on %q", subject)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers handler for subject. One goroutine per subscription
// runs handler sequentially.
func (t *Transport) Subscribe(ctx context.Context, subject string, handler func(*hlbus.RawMessage)) (hlbus.Subscription, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if handler == nil {
		return nil, errors.New("hlbus/memory: nil handler")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.nextID++
	id := t.nextID
	s := &subscriber{queue: make(chan *hlbus.RawMessage, t.cfg.BufferSize)}
	s.handle = hlbus.NewSubscriptionHandle(func() error {
		t.unsubscribe(subject, id)
		return nil
	})
	if t.subjects[subject] == nil {
		t.subjects[subject] = make(map[uint64]*subscriber)
	}
	t.subjects[subject][id] = s
	t.mu.Unlock()
	t.metrics.subscribed.Add(1)

	go t.worker(s, handler)
	return s.handle, nil
}

func (t *Transport) worker(s *subscriber, handler func(*hlbus.RawMessage)) {
	for {
		select {
		case <-s.handle.Done():
			return
		case m := <-s.queue:
			t.metrics.delivered.Add(1)
			handler(m)
		}
	}
}

func (t *Transport) unsubscribe(subject string, id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs := t.subjects[subject]
	delete(subs, id)
	if len(subs) == 0 {
		delete(t.subjects, subject)
	}
}

// Disconnect ends every subscription as if the connection dropped. The
// transport stays usable for new subscriptions.
func (t *Transport) Disconnect(cause error) {
	t.mu.RLock()
	var handles []*hlbus.SubscriptionHandle
	for _, subs := range t.subjects {
		for _, s := range subs {
			handles = append(handles, s.handle)
		}
	}
	t.mu.RUnlock()

	for _, h := range handles {
		h.Lost(cause)
	}
}

// Close ends all subscriptions with hlbus.ErrConnectionLost and rejects further use.
func (t *Transport) Close(_ context.Context) error {
	if t.closed.Swap(true) {
		return nil
	}
	t.Disconnect(ErrClosed)
	return nil
}

// Subscribers returns the number of live subscriptions on subject.
func (t *Transport) Subscribers(subject string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subjects[subject])
}

// Stats returns transport telemetry.
type Stats struct {
	Published  uint64
	Delivered  uint64
	Unrouted   uint64
	Subscribed uint64
}

// Stats returns current transport metrics.
func (t *Transport) Stats() Stats {
	return Stats{
		Published:  t.metrics.published.Load(),
		Delivered:  t.metrics.delivered.Load(),
		Unrouted:   t.metrics.unrouted.Load(),
		Subscribed: t.metrics.subscribed.Load(),
	}
}
