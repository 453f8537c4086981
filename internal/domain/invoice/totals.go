package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"coachbook/internal/pkg/apperr"
)

var hundred = decimal.NewFromInt(100)

type Totals struct {
	SubtotalCents  int64
	TaxAmountCents int64
	DiscountCents  int64
	TotalCents     int64
}

func roundCents(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// ComputeTotals fills in each item's amount and tax and returns the document
// totals. An invoice level tax rate wins over per item rates.
func ComputeTotals(items []Item, taxRate decimal.Decimal, discountCents int64) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, ErrNoItems
	}
	if taxRate.IsNegative() || discountCents < 0 {
		return Totals{}, apperr.Validation("tax rate and discount must not be negative")
	}

	var subtotal, itemTax int64
	for i := range items {
		it := &items[i]
		if !it.Quantity.IsPositive() || it.UnitPriceCents < 0 || it.DiscountCents < 0 || it.TaxRate.IsNegative() {
			return Totals{}, apperr.Validation("item %d: quantity must be positive and amounts non-negative", i+1)
		}
		gross := roundCents(it.Quantity.Mul(decimal.NewFromInt(it.UnitPriceCents)))
		it.AmountCents = gross - it.DiscountCents
		if it.AmountCents < 0 {
			return Totals{}, apperr.Validation("item %d: discount exceeds line amount", i+1)
		}
		it.TaxAmountCents = roundCents(decimal.NewFromInt(it.AmountCents).Mul(it.TaxRate).Div(hundred))
		if it.SortOrder == 0 {
			it.SortOrder = i + 1
		}
		subtotal += it.AmountCents
		itemTax += it.TaxAmountCents
	}

	tax := itemTax
	if !taxRate.IsZero() {
		tax = roundCents(decimal.NewFromInt(subtotal).Mul(taxRate).Div(hundred))
	}

	total := subtotal + tax - discountCents
	if total < 0 {
		return Totals{}, ErrNegativeTotal
	}
	return Totals{
		SubtotalCents:  subtotal,
		TaxAmountCents: tax,
		DiscountCents:  discountCents,
		TotalCents:     total,
	}, nil
}

// applyPayment adds amount to inv and settles its status. It reports whether
// the payment pushed the balance below zero.
func applyPayment(inv *Invoice, amount int64, at time.Time, allowOverpayment bool) (bool, error) {
	if amount <= 0 {
		return false, apperr.Validation("amount_cents must be positive")
	}
	paid := inv.AmountPaidCents + amount
	balance := inv.TotalCents - paid
	if balance < 0 && !allowOverpayment {
		return false, ErrOverpayment
	}

	inv.AmountPaidCents = paid
	inv.BalanceDueCents = balance
	switch {
	case balance <= 0:
		inv.Status = StatusPaid
		inv.PaidDate = &at
	case paid > 0:
		inv.Status = StatusPartiallyPaid
	}
	return balance < 0, nil
}
