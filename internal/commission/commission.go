// Package commission splits an order amount between the platform and the seller.
package commission

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrInvalidRate   = errors.New("commission rate must be in [0, 1)")
)

type Ownership string

const (
	SellerOwned   Ownership = "seller"
	PlatformOwned Ownership = "platform"
)

type Split struct {
	Rate             decimal.Decimal `json:"commissionRate"`
	CommissionAmount decimal.Decimal `json:"commissionAmount"`
	SellerAmount     decimal.Decimal `json:"sellerAmount"`
}

// Calculator is deterministic: the same amount and ownership always produce
// the same split. Commission is truncated to MinorUnits decimals and the
// remainder goes to the seller.
type Calculator struct {
	Rate       decimal.Decimal
	MinorUnits int32
}

func NewCalculator(rate decimal.Decimal, minorUnits int32) (*Calculator, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidRate, rate)
	}
	if minorUnits < 0 {
		minorUnits = 0
	}
	return &Calculator{Rate: rate, MinorUnits: minorUnits}, nil
}

func (c *Calculator) Split(amount decimal.Decimal, owner Ownership) (Split, error) {
	return SplitAt(amount, c.rateFor(owner), c.MinorUnits)
}

func (c *Calculator) rateFor(owner Ownership) decimal.Decimal {
	if owner == PlatformOwned {
		return decimal.Zero
	}
	return c.Rate
}

// SplitAt recomputes a split with an explicit rate, used when auditing a
// stored order against the rate it was created with.
func SplitAt(amount, rate decimal.Decimal, minorUnits int32) (Split, error) {
	if !amount.IsPositive() {
		return Split{}, fmt.Errorf("%w: got %s", ErrInvalidAmount, amount)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Split{}, fmt.Errorf("%w: got %s", ErrInvalidRate, rate)
	}

	fee := amount.Mul(rate).Truncate(minorUnits)
	return Split{
		Rate:             rate,
		CommissionAmount: fee,
		SellerAmount:     amount.Sub(fee),
	}, nil
}

// ToMinorUnits converts a decimal amount into integer minor units (kobo, cents),
// rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal, minorUnits int32) int64 {
	return amount.Round(minorUnits).Shift(minorUnits).IntPart()
}
