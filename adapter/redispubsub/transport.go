package redispubsub

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/hlbus"
)

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("hlbus/redispubsub: transport is closed")

type transport struct {
	cfg    Config
	client *redis.Client

	mu   sync.Mutex
	subs map[*hlbus.SubscriptionHandle]struct{}

	closed atomic.Bool

	metrics *transportMetrics
}

type transportMetrics struct {
	published     atomic.Uint64
	received      atomic.Uint64
	publishErrors atomic.Uint64
}

// Stats is transport telemetry.
type Stats struct {
	Published     uint64
	Received      uint64
	PublishErrors uint64
}

// NewTransport connects to Redis and verifies the connection with PING.
func NewTransport(cfg Config) (hlbus.Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Protocol:     2,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}

	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion:    tls.VersionTLS12,
			ServerName:    cfg.TLSServerName,
			Renegotiation: tls.RenegotiateNever,
		}
	}

	client := redis.NewClient(opts)
	if err := ping(client, cfg.PingTimeout); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &transport{
		cfg:     cfg,
		client:  client,
		subs:    make(map[*hlbus.SubscriptionHandle]struct{}),
		metrics: &transportMetrics{},
	}, nil
}

func (t *transport) channel(subject string) string { return t.cfg.ChannelPrefix + subject }

// Publish sends the encoded envelope with PUBLISH. Transport headers are not
// carried; the body already embeds them.
func (t *transport) Publish(ctx context.Context, subject string, msg *hlbus.RawMessage) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if msg == nil {
		return nil
	}
	if err := t.client.Publish(ctx, t.channel(subject), msg.Data).Err(); err != nil {
		t.metrics.publishErrors.Add(1)
		return err
	}
	t.metrics.published.Add(1)
	return nil
}

// Subscribe issues SUBSCRIBE and waits for the server confirmation before
// returning, so messages published afterwards are not missed.
func (t *transport) Subscribe(ctx context.Context, subject string, handler func(*hlbus.RawMessage)) (hlbus.Subscription, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if handler == nil {
		return nil, errors.New("hlbus/redispubsub: nil handler")
	}

	ps := t.client.Subscribe(ctx, t.channel(subject))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	h := hlbus.NewSubscriptionHandle(ps.Close)
	t.mu.Lock()
	t.subs[h] = struct{}{}
	t.mu.Unlock()

	ch := ps.Channel(redis.WithChannelSize(t.cfg.ChannelSize))
	if t.cfg.HealthCheckInterval > 0 {
		go t.watch(ps, h)
	}
	go func() {
		defer t.forget(h)
		for m := range ch {
			t.metrics.received.Add(1)
			handler(&hlbus.RawMessage{Subject: subject, Data: []byte(m.Payload)})
		}
		// channel closes only when the PubSub was closed; a no-op if the owner or watch did it
		h.Lost(errors.New("redis pubsub channel closed"))
	}()
	return h, nil
}

// watch pings through ps until the subscription ends. The first failed ping
// ends it with hlbus.ErrConnectionLost.
func (t *transport) watch(ps *redis.PubSub, h *hlbus.SubscriptionHandle) {
	tick := time.NewTicker(t.cfg.HealthCheckInterval)
	defer tick.Stop()
	for {
		select {
		case <-h.Done():
			return
		case <-tick.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.PingTimeout)
		err := ps.Ping(ctx)
		cancel()
		if err != nil && !t.closed.Load() {
			h.Lost(fmt.Errorf("redis pubsub ping: %w", err))
			return
		}
	}
}

func (t *transport) forget(h *hlbus.SubscriptionHandle) {
	t.mu.Lock()
	delete(t.subs, h)
	t.mu.Unlock()
}

// Close ends every subscription with hlbus.ErrConnectionLost and closes the client.
func (t *transport) Close(_ context.Context) error {
	if t.closed.Swap(true) {
		return nil
	}

	t.mu.Lock()
	handles := make([]*hlbus.SubscriptionHandle, 0, len(t.subs))
	for h := range t.subs {
		handles = append(handles, h)
	}
	t.mu.Unlock()
	for _, h := range handles {
		h.Lost(ErrClosed)
	}

	return t.client.Close()
}

// Stats returns current transport metrics.
func (t *transport) Stats() Stats {
	return Stats{
		Published:     t.metrics.published.Load(),
		Received:      t.metrics.received.Load(),
		PublishErrors: t.metrics.publishErrors.Load(),
	}
}

func ping(c *redis.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res, err := c.Ping(ctx).Result()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("redis ping timeout: %w", err)
		}
		return err
	}

	if strings.ToUpper(res) != "PONG" {
		return fmt.Errorf("unexpected redis ping result: %s", res)
	}

	return nil
}
