// Package rate splits a gross charge into the platform fee and coach earnings.
package rate

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNegativeAmount = errors.New("gross amount must not be negative")

type Split struct {
	GrossCents         int64 `json:"gross_cents"`
	PlatformFeeCents   int64 `json:"platform_fee_cents"`
	CoachEarningsCents int64 `json:"coach_earnings_cents"`
}

type Calculator struct {
	feePercent decimal.Decimal
}

func NewCalculator(platformFeePercent float64) *Calculator {
	return &Calculator{feePercent: decimal.NewFromFloat(platformFeePercent)}
}

// Split rounds the fee half-up to the cent; earnings take the remainder so the
// parts always add back to gross.
func (c *Calculator) Split(grossCents int64) (Split, error) {
	if grossCents < 0 {
		return Split{}, ErrNegativeAmount
	}
	fee := decimal.NewFromInt(grossCents).
		Mul(c.feePercent).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()

	return Split{
		GrossCents:         grossCents,
		PlatformFeeCents:   fee,
		CoachEarningsCents: grossCents - fee,
	}, nil
}

func (c *Calculator) FeePercent() float64 {
	f, _ := c.feePercent.Float64()
	return f
}
