// Package exchange submits validated commands to the trading venue.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"golang.org/x/time/rate"

	"github.com/trickstertwo/hlbus/message"
)

// ErrRejected is returned when the venue answered with an error status.
var ErrRejected = errors.New("exchange: command rejected")

// Client executes one command and reports the venue's answer.
type Client interface {
	Submit(ctx context.Context, cmd message.Payload) (message.Result, error)
}

// DryRun answers every command with success without contacting anything.
// Orders get sequential ids.
type DryRun struct {
	nextOID atomic.Uint64
}

var _ Client = (*DryRun)(nil)

func (d *DryRun) Submit(_ context.Context, cmd message.Payload) (message.Result, error) {
	if err := cmd.Validate(); err != nil {
		return message.Result{Status: message.StatusError, Message: err.Error()}, err
	}
	res := message.Result{Status: message.StatusOK, Message: "dry run: " + cmd.MessageType()}
	switch cmd.(type) {
	case message.Order, *message.Order:
		res.OrderID = d.nextOID.Add(1)
	}
	return res, nil
}

// HTTPConfig configures HTTPClient.
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
	// RateLimit is requests per second; 0 disables limiting.
	RateLimit float64
	RateBurst int
	Clock     xclock.Clock
}

// HTTPClient posts commands as JSON to <BaseURL>/exchange.
type HTTPClient struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	clock    xclock.Clock
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient validates cfg and builds a client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("exchange: base URL required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = xclock.Default()
	}
	c := &HTTPClient{
		endpoint: base + "/exchange",
		http:     &http.Client{Timeout: cfg.Timeout},
		clock:    cfg.Clock,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

type request struct {
	Type   string          `json:"type"`
	Action message.Payload `json:"action"`
	Nonce  int64           `json:"nonce"`
}

type response struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
	OrderID  uint64          `json:"oid,omitempty"`
}

// Submit waits for a rate-limit token, posts cmd and decodes the answer.
func (c *HTTPClient) Submit(ctx context.Context, cmd message.Payload) (message.Result, error) {
	if err := cmd.Validate(); err != nil {
		return message.Result{Status: message.StatusError, Message: err.Error()}, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return message.Result{}, fmt.Errorf("exchange: rate limit: %w", err)
		}
	}

	body, err := json.Marshal(request{Type: cmd.MessageType(), Action: cmd, Nonce: c.clock.Now().UnixMilli()})
	if err != nil {
		return message.Result{}, fmt.Errorf("exchange: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return message.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return message.Result{}, fmt.Errorf("exchange: post: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return message.Result{}, fmt.Errorf("exchange: read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return message.Result{Status: message.StatusError, Message: strings.TrimSpace(string(raw))},
			fmt.Errorf("%w: http %d", ErrRejected, resp.StatusCode)
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return message.Result{}, fmt.Errorf("exchange: decode: %w", err)
	}
	if out.Status != message.StatusOK {
		msg := strings.Trim(string(out.Response), `"`)
		return message.Result{Status: message.StatusError, Message: msg}, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return message.Result{Status: message.StatusOK, OrderID: out.OrderID}, nil
}
