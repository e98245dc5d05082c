package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/hlbus"
	"github.com/trickstertwo/hlbus/metrics"
)

type fakeSource struct{ m hlbus.Metrics }

func (f fakeSource) GetMetrics() hlbus.Metrics { return f.m }

func TestObserver_CountsEvents(t *testing.T) {
	o := metrics.NewObserver(nil)

	o.OnEvent(hlbus.Event{Type: hlbus.EventSend, MessageType: "market_order_request", Duration: time.Millisecond})
	o.OnEvent(hlbus.Event{Type: hlbus.EventSend, MessageType: "market_order_request"})
	o.OnEvent(hlbus.Event{Type: hlbus.EventHandlerError, MessageType: "cancel_order_request", Err: errors.New("boom")})

	count, err := testutil.GatherAndCount(o.Registry(), "hlbus_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per (event, message_type)")

	count, err = testutil.GatherAndCount(o.Registry(), "hlbus_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestObserver_HandlerExposesGauges(t *testing.T) {
	o := metrics.NewObserver(nil)
	o.WatchBus(fakeSource{m: hlbus.Metrics{Pending: 3}})
	o.OnEvent(hlbus.Event{Type: hlbus.EventDecodeError, Err: errors.New("bad")})

	srv := httptest.NewServer(o.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, "hlbus_pending_requests 3"), text)
	assert.Contains(t, text, `hlbus_events_total{event="decode_error",message_type="unknown"} 1`)
}
