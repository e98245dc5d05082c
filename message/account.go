package message

import (
	"strings"

	"github.com/shopspring/decimal"
)

// UpdateIsolatedMargin adds (positive) or removes (negative) isolated margin.
type UpdateIsolatedMargin struct {
	Coin   string          `json:"coin"`
	Amount decimal.Decimal `json:"amount"`
}

func (UpdateIsolatedMargin) MessageType() string { return TypeUpdateIsolatedMargin }

func (u UpdateIsolatedMargin) Validate() error {
	if err := requireCoin(u.Coin); err != nil {
		return err
	}
	if u.Amount.IsZero() {
		return invalid("amount must be non-zero")
	}
	return nil
}

// ApproveAgent authorizes an API wallet to trade for the account.
type ApproveAgent struct {
	AgentAddress string `json:"agent_address"`
	AgentName    string `json:"agent_name,omitempty"`
}

func (ApproveAgent) MessageType() string { return TypeApproveAgent }

func (a ApproveAgent) Validate() error {
	return requireAddress("agent_address", a.AgentAddress)
}

// SetReferrer applies a referral code.
type SetReferrer struct {
	Code string `json:"code"`
}

func (SetReferrer) MessageType() string { return TypeSetReferrer }

func (s SetReferrer) Validate() error {
	if strings.TrimSpace(s.Code) == "" {
		return invalid("code required")
	}
	return nil
}

// ApproveBuilderFee caps the fee a builder may charge, e.g. "0.001%".
type ApproveBuilderFee struct {
	Builder    string `json:"builder"`
	MaxFeeRate string `json:"max_fee_rate"`
}

func (ApproveBuilderFee) MessageType() string { return TypeApproveBuilderFee }

func (a ApproveBuilderFee) Validate() error {
	if err := requireAddress("builder", a.Builder); err != nil {
		return err
	}
	rate, ok := strings.CutSuffix(a.MaxFeeRate, "%")
	if !ok {
		return invalid("max_fee_rate must be a percentage, got %q", a.MaxFeeRate)
	}
	d, err := decimal.NewFromString(rate)
	if err != nil || d.IsNegative() {
		return invalid("max_fee_rate must be a non-negative percentage, got %q", a.MaxFeeRate)
	}
	return nil
}
