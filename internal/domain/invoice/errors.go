package invoice

import (
	"errors"
	"fmt"

	"coachbook/internal/pkg/apperr"
)

var (
	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrRecurringNotFound = errors.New("recurring invoice not found")
	ErrUnknownFrequency  = errors.New("unknown recurring frequency")

	ErrNoItems       = fmt.Errorf("%w: invoice needs at least one item", apperr.ErrValidation)
	ErrNegativeTotal = fmt.Errorf("%w: invoice total cannot be negative", apperr.ErrValidation)
	ErrOverpayment   = fmt.Errorf("%w: payment exceeds balance due", apperr.ErrConflict)
)
