package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/hlbus/message"
)

func TestDryRun_AssignsOrderIDs(t *testing.T) {
	var d DryRun
	ctx := context.Background()

	r1, err := d.Submit(ctx, message.MarketOrder("ETH", true, decimal.RequireFromString("0.1")))
	require.NoError(t, err)
	r2, err := d.Submit(ctx, message.MarketOrder("ETH", false, decimal.RequireFromString("0.1")))
	require.NoError(t, err)

	assert.True(t, r1.OK())
	assert.Equal(t, uint64(1), r1.OrderID)
	assert.Equal(t, uint64(2), r2.OrderID)

	r3, err := d.Submit(ctx, message.SetReferrer{Code: "ABC"})
	require.NoError(t, err)
	assert.Zero(t, r3.OrderID)
}

func TestDryRun_RejectsInvalid(t *testing.T) {
	var d DryRun
	res, err := d.Submit(context.Background(), message.SetReferrer{})
	require.ErrorIs(t, err, message.ErrInvalid)
	assert.Equal(t, message.StatusError, res.Status)
}

func TestHTTPClient_Submit(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/exchange", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"ok","oid":77}`))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL + "/", Timeout: time.Second})
	require.NoError(t, err)

	res, err := c.Submit(context.Background(), message.LimitOrder("BTC", true,
		decimal.RequireFromString("0.01"), decimal.RequireFromString("50000")))
	require.NoError(t, err)
	assert.Equal(t, uint64(77), res.OrderID)
	assert.JSONEq(t, `"limit_order_request"`, string(got["type"]))
}

func TestHTTPClient_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"err","response":"insufficient margin"}`))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	res, err := c.Submit(context.Background(), message.CancelByOrderID("BTC", 9))
	require.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, "insufficient margin", res.Message)
}

func TestHTTPClient_RateLimitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, RateLimit: 0.001, RateBurst: 1})
	require.NoError(t, err)

	cmd := message.SetReferrer{Code: "X"}
	_, err = c.Submit(context.Background(), cmd)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Submit(ctx, cmd)
	assert.Error(t, err, "second call waits far longer than the deadline")
}
