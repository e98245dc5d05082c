package message

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Transfer moves USD to another address on the exchange.
type Transfer struct {
	Coin        string          `json:"coin"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
}

func (Transfer) MessageType() string { return TypeTransfer }

func (t Transfer) Validate() error {
	return validateMove(t.Coin, t.Amount, t.Destination)
}

// Withdraw sends funds off the exchange to destination.
type Withdraw struct {
	Coin        string          `json:"coin"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
}

func (Withdraw) MessageType() string { return TypeWithdraw }

func (w Withdraw) Validate() error {
	return validateMove(w.Coin, w.Amount, w.Destination)
}

func validateMove(coin string, amount decimal.Decimal, dest string) error {
	if err := requireCoin(coin); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return invalid("amount must be positive, got %s", amount)
	}
	return requireAddress("destination", dest)
}

// ClassTransfer moves USD between the spot and perp wallets.
type ClassTransfer struct {
	Amount decimal.Decimal `json:"amount"`
	ToPerp bool            `json:"to_perp"`
}

func (ClassTransfer) MessageType() string { return TypeClassTransfer }

func (c ClassTransfer) Validate() error {
	if !c.Amount.IsPositive() {
		return invalid("amount must be positive, got %s", c.Amount)
	}
	return nil
}

// VaultTransfer deposits to or withdraws from a vault. USD is in micro units.
type VaultTransfer struct {
	IsDeposit    bool   `json:"is_deposit"`
	USD          uint64 `json:"usd"`
	VaultAddress string `json:"vault_address,omitempty"`
}

func (VaultTransfer) MessageType() string { return TypeVaultTransfer }

func (v VaultTransfer) Validate() error {
	if v.USD == 0 {
		return invalid("usd must be positive")
	}
	if v.VaultAddress != "" {
		return requireAddress("vault_address", v.VaultAddress)
	}
	return nil
}

// SpotTransfer sends a spot token to another address.
type SpotTransfer struct {
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
	Token       string          `json:"token"`
}

func (SpotTransfer) MessageType() string { return TypeSpotTransfer }

func (s SpotTransfer) Validate() error {
	if strings.TrimSpace(s.Token) == "" {
		return invalid("token required")
	}
	if !s.Amount.IsPositive() {
		return invalid("amount must be positive, got %s", s.Amount)
	}
	return requireAddress("destination", s.Destination)
}
