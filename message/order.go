package message

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Order actions.
const (
	ActionMarketOrder = "market_order"
	ActionLimitOrder  = "limit_order"
)

// Time in force values.
const (
	TIFIoc = "Ioc"
	TIFGtc = "Gtc"
	TIFAlo = "Alo"
)

// Order places a market or limit order. A limit price makes it a limit order.
type Order struct {
	Action     string           `json:"action"`
	Coin       string           `json:"coin"`
	IsBuy      bool             `json:"is_buy"`
	Size       decimal.Decimal  `json:"sz"`
	LimitPrice *decimal.Decimal `json:"limit_px,omitempty"`
	ReduceOnly bool             `json:"reduce_only"`
	Cloid      string           `json:"cloid,omitempty"`
	TIF        string           `json:"tif"`
}

// MarketOrder is an immediate-or-cancel order at market.
func MarketOrder(coin string, isBuy bool, size decimal.Decimal) Order {
	return Order{
		Action: ActionMarketOrder,
		Coin:   coin,
		IsBuy:  isBuy,
		Size:   size,
		TIF:    TIFIoc,
	}
}

// LimitOrder is a good-til-canceled order at price.
func LimitOrder(coin string, isBuy bool, size, price decimal.Decimal) Order {
	return Order{
		Action:     ActionLimitOrder,
		Coin:       coin,
		IsBuy:      isBuy,
		Size:       size,
		LimitPrice: &price,
		TIF:        TIFGtc,
	}
}

// UnmarshalJSON fills an omitted tif with the order kind's default: Ioc for
// market orders, Gtc for limit orders.
func (o *Order) UnmarshalJSON(data []byte) error {
	type wire Order
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*o = Order(w)
	if o.TIF == "" {
		o.TIF = o.DefaultTIF()
	}
	return nil
}

// DefaultTIF is the time in force used when none is given.
func (o Order) DefaultTIF() string {
	if o.IsLimit() {
		return TIFGtc
	}
	return TIFIoc
}

func (o Order) WithCloid(cloid string) Order {
	o.Cloid = cloid
	return o
}

func (o Order) WithReduceOnly(reduceOnly bool) Order {
	o.ReduceOnly = reduceOnly
	return o
}

func (o Order) WithTIF(tif string) Order {
	o.TIF = tif
	return o
}

// IsLimit reports whether the order carries a limit price.
func (o Order) IsLimit() bool { return o.LimitPrice != nil }

func (o Order) MessageType() string {
	if o.IsLimit() {
		return TypeLimitOrder
	}
	return TypeMarketOrder
}

func (o Order) Validate() error {
	if err := requireCoin(o.Coin); err != nil {
		return err
	}
	if !o.Size.IsPositive() {
		return invalid("sz must be positive, got %s", o.Size)
	}
	if o.LimitPrice != nil && !o.LimitPrice.IsPositive() {
		return invalid("limit_px must be positive, got %s", o.LimitPrice)
	}
	switch o.Action {
	case "":
	case ActionMarketOrder:
		if o.IsLimit() {
			return invalid("market_order must not carry limit_px")
		}
	case ActionLimitOrder:
		if !o.IsLimit() {
			return invalid("limit_order requires limit_px")
		}
	default:
		return invalid("unknown action %q", o.Action)
	}
	switch o.TIF {
	case TIFIoc, TIFGtc, TIFAlo:
	default:
		return invalid("tif must be one of Ioc, Gtc, Alo, got %q", o.TIF)
	}
	return nil
}

// CancelOrder cancels by exchange order id or by client order id.
type CancelOrder struct {
	Coin    string  `json:"coin"`
	OrderID *uint64 `json:"oid,omitempty"`
	Cloid   string  `json:"cloid,omitempty"`
}

func CancelByOrderID(coin string, oid uint64) CancelOrder {
	return CancelOrder{Coin: coin, OrderID: &oid}
}

func CancelByCloid(coin, cloid string) CancelOrder {
	return CancelOrder{Coin: coin, Cloid: cloid}
}

func (CancelOrder) MessageType() string { return TypeCancelOrder }

func (c CancelOrder) Validate() error {
	if err := requireCoin(c.Coin); err != nil {
		return err
	}
	if (c.OrderID == nil) == (c.Cloid == "") {
		return invalid("exactly one of oid or cloid required")
	}
	return nil
}

// ModifyOrder changes the size and/or price of a resting order.
type ModifyOrder struct {
	OrderID  *uint64          `json:"oid,omitempty"`
	Cloid    string           `json:"cloid,omitempty"`
	NewSize  *decimal.Decimal `json:"new_sz,omitempty"`
	NewPrice *decimal.Decimal `json:"new_px,omitempty"`
}

func ModifyByOrderID(oid uint64) ModifyOrder { return ModifyOrder{OrderID: &oid} }

func ModifyByCloid(cloid string) ModifyOrder { return ModifyOrder{Cloid: cloid} }

func (m ModifyOrder) WithSize(sz decimal.Decimal) ModifyOrder {
	m.NewSize = &sz
	return m
}

func (m ModifyOrder) WithPrice(px decimal.Decimal) ModifyOrder {
	m.NewPrice = &px
	return m
}

func (ModifyOrder) MessageType() string { return TypeModifyOrder }

func (m ModifyOrder) Validate() error {
	if (m.OrderID == nil) == (m.Cloid == "") {
		return invalid("exactly one of oid or cloid required")
	}
	if m.NewSize == nil && m.NewPrice == nil {
		return invalid("new_sz or new_px required")
	}
	if m.NewSize != nil && !m.NewSize.IsPositive() {
		return invalid("new_sz must be positive, got %s", m.NewSize)
	}
	if m.NewPrice != nil && !m.NewPrice.IsPositive() {
		return invalid("new_px must be positive, got %s", m.NewPrice)
	}
	return nil
}

// MaxLeverage bounds UpdateLeverage.
const MaxLeverage = 100

// UpdateLeverage sets cross or isolated leverage for a coin.
type UpdateLeverage struct {
	Coin     string `json:"coin"`
	Leverage uint32 `json:"leverage"`
	IsCross  bool   `json:"is_cross"`
}

func (UpdateLeverage) MessageType() string { return TypeUpdateLeverage }

func (u UpdateLeverage) Validate() error {
	if err := requireCoin(u.Coin); err != nil {
		return err
	}
	if u.Leverage < 1 || u.Leverage > MaxLeverage {
		return invalid("leverage must be within [1, %d], got %d", MaxLeverage, u.Leverage)
	}
	return nil
}
