package message

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addr = "0x1234567890abcdef1234567890abcdef12345678"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestOrderKinds(t *testing.T) {
	m := MarketOrder("BTC", true, d("0.5"))
	assert.Equal(t, TypeMarketOrder, m.MessageType())
	assert.Equal(t, TIFIoc, m.TIF)
	assert.False(t, m.IsLimit())
	assert.NoError(t, m.Validate())

	l := LimitOrder("ETH", false, d("2"), d("1800.25")).WithCloid("0xabc").WithReduceOnly(true)
	assert.Equal(t, TypeLimitOrder, l.MessageType())
	assert.Equal(t, TIFGtc, l.TIF)
	assert.True(t, l.ReduceOnly)
	assert.NoError(t, l.Validate())
	assert.NoError(t, l.WithTIF(TIFAlo).Validate())
}

func TestOrderWireFormat(t *testing.T) {
	data, err := json.Marshal(LimitOrder("ETH", true, d("1.5"), d("1800")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"limit_order","coin":"ETH","is_buy":true,"sz":"1.5","limit_px":"1800","reduce_only":false,"tif":"Gtc"}`, string(data))
}

func TestValidationFailures(t *testing.T) {
	oid := uint64(7)
	px := d("-1")
	cases := map[string]Payload{
		"order no coin":         MarketOrder(" ", true, d("1")),
		"order zero size":       MarketOrder("BTC", true, decimal.Zero),
		"order bad tif":         MarketOrder("BTC", true, d("1")).WithTIF("Fok"),
		"market with price":     Order{Action: ActionMarketOrder, Coin: "BTC", Size: d("1"), LimitPrice: func() *decimal.Decimal { p := d("1"); return &p }(), TIF: TIFIoc},
		"limit without price":   Order{Action: ActionLimitOrder, Coin: "BTC", Size: d("1"), TIF: TIFGtc},
		"limit negative price":  Order{Coin: "BTC", Size: d("1"), LimitPrice: &px, TIF: TIFGtc},
		"unknown action":        Order{Action: "twap", Coin: "BTC", Size: d("1"), TIF: TIFGtc},
		"cancel both ids":       CancelOrder{Coin: "BTC", OrderID: &oid, Cloid: "0x1"},
		"cancel no id":          CancelOrder{Coin: "BTC"},
		"modify nothing":        ModifyByOrderID(7),
		"modify no id":          ModifyOrder{}.WithSize(d("1")),
		"modify negative size":  ModifyByCloid("0x1").WithSize(d("-2")),
		"leverage zero":         UpdateLeverage{Coin: "BTC"},
		"leverage too high":     UpdateLeverage{Coin: "BTC", Leverage: MaxLeverage + 1},
		"transfer bad address":  Transfer{Coin: "USDC", Amount: d("10"), Destination: "0x12"},
		"withdraw zero":         Withdraw{Coin: "USDC", Amount: decimal.Zero, Destination: addr},
		"class transfer zero":   ClassTransfer{},
		"vault zero usd":        VaultTransfer{IsDeposit: true},
		"vault bad address":     VaultTransfer{USD: 5, VaultAddress: "vault"},
		"spot no token":         SpotTransfer{Amount: d("1"), Destination: addr},
		"margin zero":           UpdateIsolatedMargin{Coin: "BTC"},
		"agent bad address":     ApproveAgent{AgentAddress: "nope"},
		"referrer empty":        SetReferrer{Code: " "},
		"builder fee no pct":    ApproveBuilderFee{Builder: addr, MaxFeeRate: "0.001"},
		"builder fee negative":  ApproveBuilderFee{Builder: addr, MaxFeeRate: "-1%"},
		"builder fee bad rate":  ApproveBuilderFee{Builder: addr, MaxFeeRate: "lots%"},
		"builder fee bad addr":  ApproveBuilderFee{Builder: "0x", MaxFeeRate: "0.1%"},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, p.Validate(), ErrInvalid)
		})
	}
}

func TestValidPayloads(t *testing.T) {
	for _, p := range []Payload{
		CancelByOrderID("BTC", 7),
		CancelByCloid("BTC", "0x1"),
		ModifyByOrderID(7).WithPrice(d("101.5")),
		UpdateLeverage{Coin: "BTC", Leverage: 20, IsCross: true},
		Transfer{Coin: "USDC", Amount: d("10"), Destination: addr},
		Withdraw{Coin: "USDC", Amount: d("10"), Destination: addr},
		ClassTransfer{Amount: d("5"), ToPerp: true},
		VaultTransfer{USD: 5_000_000, VaultAddress: addr},
		SpotTransfer{Amount: d("1"), Destination: addr, Token: "PURR"},
		UpdateIsolatedMargin{Coin: "BTC", Amount: d("-3")},
		ApproveAgent{AgentAddress: addr},
		SetReferrer{Code: "DESK7"},
		ApproveBuilderFee{Builder: addr, MaxFeeRate: "0.001%"},
	} {
		assert.NoError(t, p.Validate(), p.MessageType())
	}
}

func TestEveryTypeHasPrototype(t *testing.T) {
	require.Len(t, Types(), len(prototypes))
	for _, mt := range Types() {
		p, err := New(mt)
		require.NoError(t, err, mt)
		if mt != TypeLimitOrder {
			assert.Equal(t, mt, p.MessageType())
		}
	}
	_, err := New("twap_request")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestParse(t *testing.T) {
	p, err := Parse(TypeMarketOrder, []byte(`{"coin":"BTC","is_buy":true,"sz":"0.1","tif":"Ioc"}`))
	require.NoError(t, err)
	o, ok := p.(*Order)
	require.True(t, ok)
	assert.True(t, o.Size.Equal(d("0.1")))

	_, err = Parse(TypeMarketOrder, []byte(`{"coin":"BTC","sz":"1","limit_px":"10","tif":"Gtc"}`))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Parse(TypeCancelOrder, []byte(`{"coin":"BTC"`))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Parse(TypeCancelOrder, []byte(`{"coin":"BTC"}`))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Parse("twap_request", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestResult(t *testing.T) {
	assert.True(t, Result{Status: StatusOK}.OK())
	assert.False(t, Result{Status: StatusError, Message: "rejected"}.OK())

	data, err := json.Marshal(Result{Status: StatusOK, OrderID: 12})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","oid":12}`, string(data))
}

func TestOrderDefaultTIF(t *testing.T) {
	var m Order
	require.NoError(t, json.Unmarshal([]byte(`{"action":"market_order","coin":"BTC","is_buy":true,"sz":"0.01"}`), &m))
	assert.Equal(t, TIFIoc, m.TIF)
	assert.NoError(t, m.Validate())

	var l Order
	require.NoError(t, json.Unmarshal([]byte(`{"coin":"ETH","sz":"1","limit_px":"1800"}`), &l))
	assert.Equal(t, TIFGtc, l.TIF)
	assert.NoError(t, l.Validate())

	var a Order
	require.NoError(t, json.Unmarshal([]byte(`{"coin":"ETH","sz":"1","limit_px":"1800","tif":"Alo"}`), &a))
	assert.Equal(t, TIFAlo, a.TIF)

	p, err := Parse(TypeMarketOrder, []byte(`{"coin":"BTC","is_buy":true,"sz":"0.1"}`))
	require.NoError(t, err)
	assert.Equal(t, TIFIoc, p.(*Order).TIF)
}
