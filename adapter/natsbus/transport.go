// Package natsbus provides a NATS core adapter for hlbus. Envelope header
// fields travel both embedded in the body and as NATS message headers, so
// peers that only read one form interoperate.
package natsbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/hlbus"
)

const TransportName = "nats"

func init() {
	if err := hlbus.RegisterTransport(TransportName, func(cfg map[string]any) (hlbus.Transport, error) {
		t, err := NewTransport(ConfigFromMap(cfg))
		if err != nil {
			return nil, err
		}
		return t, nil
	}); err != nil {
		panic(fmt.Errorf("hlbus: failed to register transport %q: %w", TransportName, err))
	}
}

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("hlbus/natsbus: transport is closed")

// Transport implements hlbus.Transport over a single *nats.Conn.
type Transport struct {
	cfg    Config
	conn   *nats.Conn
	logger *xlog.Logger

	mu   sync.Mutex
	subs map[*hlbus.SubscriptionHandle]*nats.Subscription

	closed    atomic.Bool
	published atomic.Uint64
	received  atomic.Uint64
}

var _ hlbus.Transport = (*Transport)(nil)

// NewTransport dials the NATS server.
func NewTransport(cfg Config) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Transport{
		cfg:    cfg,
		logger: cfg.logger(),
		subs:   make(map[*hlbus.SubscriptionHandle]*nats.Subscription),
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			t.logger.Warn().Err(err).Str("url", cfg.URL).Msg("hlbus/natsbus: disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			t.logger.Info().Str("url", nc.ConnectedUrl()).Msg("hlbus/natsbus: reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			t.connectionClosed(nc.LastError())
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("hlbus/natsbus: connect %s: %w", cfg.URL, err)
	}
	t.conn = nc
	return t, nil
}

// Publish hands the message to the NATS client. It does not wait for the
// server; a flush happens on the client's own schedule.
func (t *Transport) Publish(ctx context.Context, subject string, msg *hlbus.RawMessage) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg == nil {
		return nil
	}
	nm := &nats.Msg{
		Subject: subject,
		Reply:   msg.ReplyTo,
		Data:    msg.Data,
	}
	if len(msg.Header) > 0 {
		nm.Header = make(nats.Header, len(msg.Header))
		for k, v := range msg.Header {
			nm.Header[k] = []string{v}
		}
	}
	if err := t.conn.PublishMsg(nm); err != nil {
		return err
	}
	t.published.Add(1)
	return nil
}

// Subscribe registers handler on subject. NATS runs handler on one goroutine
// per subscription, in arrival order. The server round trip is confirmed
// before returning.
func (t *Transport) Subscribe(ctx context.Context, subject string, handler func(*hlbus.RawMessage)) (hlbus.Subscription, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if handler == nil {
		return nil, errors.New("hlbus/natsbus: nil handler")
	}

	ns, err := t.conn.Subscribe(subject, func(m *nats.Msg) {
		t.received.Add(1)
		handler(fromNATS(m))
	})
	if err != nil {
		return nil, err
	}

	fctx, cancel := context.WithTimeout(ctx, t.cfg.FlushTimeout)
	defer cancel()
	if err := t.conn.FlushWithContext(fctx); err != nil {
		_ = ns.Unsubscribe()
		return nil, err
	}

	var h *hlbus.SubscriptionHandle
	h = hlbus.NewSubscriptionHandle(func() error {
		t.mu.Lock()
		delete(t.subs, h)
		t.mu.Unlock()
		if err := ns.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
			return err
		}
		return nil
	})
	t.mu.Lock()
	t.subs[h] = ns
	t.mu.Unlock()
	return h, nil
}

func fromNATS(m *nats.Msg) *hlbus.RawMessage {
	raw := &hlbus.RawMessage{Subject: m.Subject, Data: m.Data, ReplyTo: m.Reply}
	if len(m.Header) > 0 {
		raw.Header = make(map[string]string, len(m.Header))
		for k, vals := range m.Header {
			if len(vals) > 0 {
				raw.Header[k] = vals[0]
			}
		}
	}
	return raw
}

// connectionClosed ends every live subscription once the client gave up.
func (t *Transport) connectionClosed(cause error) {
	t.mu.Lock()
	handles := make([]*hlbus.SubscriptionHandle, 0, len(t.subs))
	for h := range t.subs {
		handles = append(handles, h)
	}
	t.mu.Unlock()

	if len(handles) > 0 && !t.closed.Load() {
		t.logger.Error().Err(cause).Str("url", t.cfg.URL).Msg("hlbus/natsbus: connection closed")
	}
	if cause == nil {
		cause = nats.ErrConnectionClosed
	}
	for _, h := range handles {
		h.Lost(cause)
	}
}

// Close drains nothing and closes the connection; live subscriptions end
// with hlbus.ErrConnectionLost.
func (t *Transport) Close(_ context.Context) error {
	if t.closed.Swap(true) {
		return nil
	}
	t.conn.Close()
	// ClosedHandler runs asynchronously; end subscriptions now
	t.connectionClosed(ErrClosed)
	return nil
}

// Conn exposes the underlying connection for health checks.
func (t *Transport) Conn() *nats.Conn { return t.conn }
