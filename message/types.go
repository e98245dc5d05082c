// Package message defines the exchange command payloads carried on the bus.
// Every payload reports its message type and validates its own fields.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Message types.
const (
	TypeMarketOrder          = "market_order_request"
	TypeLimitOrder           = "limit_order_request"
	TypeCancelOrder          = "cancel_order_request"
	TypeModifyOrder          = "modify_order_request"
	TypeUpdateLeverage       = "update_leverage_request"
	TypeTransfer             = "transfer_request"
	TypeWithdraw             = "withdraw_request"
	TypeClassTransfer        = "class_transfer_request"
	TypeVaultTransfer        = "vault_transfer_request"
	TypeSpotTransfer         = "spot_transfer_request"
	TypeUpdateIsolatedMargin = "update_isolated_margin_request"
	TypeApproveAgent         = "approve_agent_request"
	TypeSetReferrer          = "set_referrer_request"
	TypeApproveBuilderFee    = "approve_builder_fee_request"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("message: invalid payload")

// ErrUnknownType is returned by New and Parse for unrecognized message types.
var ErrUnknownType = errors.New("message: unknown message type")

// Payload is implemented by every command in this package.
type Payload interface {
	MessageType() string
	Validate() error
}

var prototypes = map[string]func() Payload{
	TypeMarketOrder:          func() Payload { return &Order{} },
	TypeLimitOrder:           func() Payload { return &Order{} },
	TypeCancelOrder:          func() Payload { return &CancelOrder{} },
	TypeModifyOrder:          func() Payload { return &ModifyOrder{} },
	TypeUpdateLeverage:       func() Payload { return &UpdateLeverage{} },
	TypeTransfer:             func() Payload { return &Transfer{} },
	TypeWithdraw:             func() Payload { return &Withdraw{} },
	TypeClassTransfer:        func() Payload { return &ClassTransfer{} },
	TypeVaultTransfer:        func() Payload { return &VaultTransfer{} },
	TypeSpotTransfer:         func() Payload { return &SpotTransfer{} },
	TypeUpdateIsolatedMargin: func() Payload { return &UpdateIsolatedMargin{} },
	TypeApproveAgent:         func() Payload { return &ApproveAgent{} },
	TypeSetReferrer:          func() Payload { return &SetReferrer{} },
	TypeApproveBuilderFee:    func() Payload { return &ApproveBuilderFee{} },
}

// Types lists every known message type.
func Types() []string {
	return []string{
		TypeMarketOrder, TypeLimitOrder, TypeCancelOrder, TypeModifyOrder,
		TypeUpdateLeverage, TypeTransfer, TypeWithdraw, TypeClassTransfer,
		TypeVaultTransfer, TypeSpotTransfer, TypeUpdateIsolatedMargin,
		TypeApproveAgent, TypeSetReferrer, TypeApproveBuilderFee,
	}
}

// New returns an empty payload for messageType.
func New(messageType string) (Payload, error) {
	f, ok := prototypes[messageType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, messageType)
	}
	return f(), nil
}

// Parse decodes and validates a JSON payload of the given type.
func Parse(messageType string, data []byte) (Payload, error) {
	p, err := New(messageType)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if got := p.MessageType(); got != messageType {
		return nil, fmt.Errorf("%w: payload is a %s, not a %s", ErrInvalid, got, messageType)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Result is the reply payload for every command.
type Result struct {
	Status  string `json:"status"`
	OrderID uint64 `json:"oid,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// OK reports whether the command succeeded.
func (r Result) OK() bool { return r.Status == StatusOK }

var addressRE = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

func requireCoin(coin string) error {
	if strings.TrimSpace(coin) == "" {
		return invalid("coin required")
	}
	return nil
}

func requireAddress(field, addr string) error {
	if !addressRE.MatchString(addr) {
		return invalid("%s must be a 0x-prefixed 20-byte hex address, got %q", field, addr)
	}
	return nil
}
