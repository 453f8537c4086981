package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FormatAmount renders cents as a fixed two-decimal string ("90.00").
func FormatAmount(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// NewIdempotencyKey returns prefix-<unix millis>-<random suffix>.
func NewIdempotencyKey(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// proportional returns round(part * total / whole) using decimal arithmetic.
func proportional(total, part, whole int64) int64 {
	if whole == 0 {
		return 0
	}
	return decimal.NewFromInt(total).
		Mul(decimal.NewFromInt(part)).
		Div(decimal.NewFromInt(whole)).
		Round(0).
		IntPart()
}
